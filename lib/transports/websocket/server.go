package websocket

import (
	"context"
	"fmt"
	"net"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	lib_context "github.com/HORNET-Storage/trunk-relay/lib/context"
	"github.com/HORNET-Storage/trunk-relay/lib/logging"
	"github.com/HORNET-Storage/trunk-relay/lib/relay"
	"github.com/HORNET-Storage/trunk-relay/lib/types"
)

// BuildServer wires the relay endpoints: the websocket protocol and the
// relay information document on "/", and prometheus metrics on "/metrics".
// Every connection's context derives from ctx, so cancelling it drops all
// clients.
func BuildServer(ctx context.Context, r *relay.Context) *fiber.App {
	app := newApp(r.Config.Server)

	if r.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(r.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	// Middleware for handling relay information requests
	app.Use(handleRelayInfoRequests(r))

	app.Use("/", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals(lib_context.RemoteAddress, remoteAddress(c))
			c.Locals(lib_context.UserAgent, c.Get(fiber.HeaderUserAgent))
		}
		return c.Next()
	})

	app.Get("/", websocket.New(func(c *websocket.Conn) {
		remote, _ := c.Locals(lib_context.RemoteAddress).(string)

		client := r.Switchboard.Register(ctx, remote)
		defer r.Switchboard.Unregister(client)

		if limit := r.Config.Limits.MaxMessageBytes; limit > 0 {
			c.SetReadLimit(int64(limit))
		}

		serveConnection(c, client, r)
	}))

	return app
}

// StartServer listens on the configured bind address and port until the app
// is shut down.
func StartServer(app *fiber.App, r *relay.Context) error {
	addr := net.JoinHostPort(r.Config.Server.BindAddress, fmt.Sprint(r.Config.Server.Port))
	logging.Info("Relay listening", map[string]interface{}{"address": addr})
	return app.Listen(addr)
}

func newApp(cfg types.ServerConfig) *fiber.App {
	return fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ProxyHeader:             cfg.ProxyHeader,
		EnableTrustedProxyCheck: true,
		TrustedProxies:          cfg.TrustedProxies,
	})
}

// remoteAddress prefers the proxy header only when the peer is a trusted proxy
func remoteAddress(c *fiber.Ctx) string {
	header := c.App().Config().ProxyHeader
	if header != "" && c.IsProxyTrusted() && c.Get(header) != "" {
		return c.IP()
	}
	return c.Context().RemoteAddr().String()
}

func handleRelayInfoRequests(r *relay.Context) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodGet && c.Get(fiber.HeaderAccept) == "application/nostr+json" {
			c.Set("Access-Control-Allow-Origin", "*")
			c.Set(fiber.HeaderContentType, "application/nostr+json")
			return c.JSON(GetRelayInfo(r))
		}
		return c.Next()
	}
}

func GetRelayInfo(r *relay.Context) NIP11RelayInfo {
	cfg := r.Config
	return NIP11RelayInfo{
		Name:          cfg.Relay.Name,
		Description:   cfg.Relay.Description,
		Pubkey:        cfg.Relay.PubKey,
		Contact:       cfg.Relay.Contact,
		SupportedNIPs: cfg.Relay.SupportedNIPs,
		Software:      cfg.Relay.Software,
		Version:       cfg.Relay.Version,
		Limitation: &Limitation{
			MaxMessageLength: cfg.Limits.MaxMessageBytes,
			MaxSubidLength:   maxSubscriptionIDLength,
			MaxLimit:         cfg.Limits.QueryLimit,
		},
	}
}
