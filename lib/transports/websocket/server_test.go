package websocket

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	fastws "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HORNET-Storage/trunk-relay/lib/bridge"
	"github.com/HORNET-Storage/trunk-relay/lib/config"
	"github.com/HORNET-Storage/trunk-relay/lib/metrics"
	"github.com/HORNET-Storage/trunk-relay/lib/relay"
	"github.com/HORNET-Storage/trunk-relay/lib/signing"
	"github.com/HORNET-Storage/trunk-relay/lib/stores/events/gorm/sqlite"
	"github.com/HORNET-Storage/trunk-relay/lib/types"
)

type testServer struct {
	relay *relay.Context
	url   string
}

func startServer(t *testing.T) *testServer {
	t.Helper()

	v := viper.New()
	config.SetDefaults(v)
	v.Set("limits.outbound_queue", 64)
	cfg, err := config.Load(v)
	require.NoError(t, err)

	store, err := sqlite.InitStore(filepath.Join(t.TempDir(), "events.db"), cfg.Database, cfg.Limits.QueryLimit)
	require.NoError(t, err)

	b := bridge.New(bridge.NewMemoryTransport(), bridge.JSONCodec{}, cfg.Bridge.Channel)
	r := relay.New(cfg, store, b, metrics.New())

	ctx, cancel := context.WithCancel(context.Background())
	_, err = r.Start(ctx)
	require.NoError(t, err)

	app := BuildServer(ctx, r)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.Listener(ln)

	t.Cleanup(func() {
		cancel()
		app.ShutdownWithTimeout(5 * time.Second)
		r.Close()
	})

	return &testServer{relay: r, url: "ws://" + ln.Addr().String() + "/"}
}

func (s *testServer) dial(t *testing.T) *fastws.Conn {
	t.Helper()

	conn, _, err := fastws.DefaultDialer.Dial(s.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *fastws.Conn, frame ...interface{}) {
	t.Helper()
	var json = jsoniter.ConfigCompatibleWithStandardLibrary

	data, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(fastws.TextMessage, data))
}

func receive(t *testing.T, conn *fastws.Conn) []interface{} {
	t.Helper()
	var json = jsoniter.ConfigCompatibleWithStandardLibrary

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame []interface{}
	require.NoError(t, json.Unmarshal(data, &frame))
	require.NotEmpty(t, frame)
	return frame
}

func expectClose(t *testing.T, conn *fastws.Conn) *fastws.CloseError {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *fastws.CloseError
		require.True(t, errors.As(err, &closeErr), "expected a close frame, got %v", err)
		return closeErr
	}
}

// barrier waits until every frame sent before it has been handled
func barrier(t *testing.T, conn *fastws.Conn) {
	t.Helper()
	send(t, conn, "CLOSE", "barrier")
	frame := receive(t, conn)
	require.Equal(t, "NOTICE", frame[0])
}

func signedEvent(t *testing.T, kind uint16, content string, tags types.Tags) *types.Event {
	t.Helper()

	key, err := signing.GeneratePrivateKey()
	require.NoError(t, err)

	event := &types.Event{
		CreatedAt: time.Now().Unix(),
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
	require.NoError(t, signing.Sign(event, key))
	return event
}

func TestEventIsAcknowledged(t *testing.T) {
	server := startServer(t)
	conn := server.dial(t)

	event := signedEvent(t, 1, "hello", nil)
	send(t, conn, "EVENT", event)

	assert.Equal(t, []interface{}{"OK", event.ID, true, ""}, receive(t, conn))

	send(t, conn, "EVENT", event)
	assert.Equal(t, []interface{}{"OK", event.ID, false, "duplicate: event already received"}, receive(t, conn))
}

func TestInvalidEventIsRejectedWithoutClosing(t *testing.T) {
	server := startServer(t)
	conn := server.dial(t)

	event := signedEvent(t, 1, "hello", nil)
	event.Content = "tampered"
	send(t, conn, "EVENT", event)

	frame := receive(t, conn)
	assert.Equal(t, "OK", frame[0])
	assert.Equal(t, event.ID, frame[1])
	assert.Equal(t, false, frame[2])
	assert.True(t, strings.HasPrefix(frame[3].(string), "invalid: "), frame[3])

	// connection is still usable
	barrier(t, conn)
}

func TestReqReplaysStoredEventsThenEOSE(t *testing.T) {
	server := startServer(t)
	conn := server.dial(t)

	event := signedEvent(t, 1, "stored", types.Tags{{"t", "trunk"}})
	send(t, conn, "EVENT", event)
	require.Equal(t, true, receive(t, conn)[2])

	send(t, conn, "REQ", "history", map[string]interface{}{"#t": []string{"trunk"}})

	frame := receive(t, conn)
	require.Equal(t, "EVENT", frame[0])
	assert.Equal(t, "history", frame[1])
	assert.Equal(t, event.ID, frame[2].(map[string]interface{})["id"])

	assert.Equal(t, []interface{}{"EOSE", "history"}, receive(t, conn))
}

func TestReqWithZeroLimitOnlySendsEOSE(t *testing.T) {
	server := startServer(t)
	conn := server.dial(t)

	send(t, conn, "EVENT", signedEvent(t, 1, "stored", nil))
	require.Equal(t, true, receive(t, conn)[2])

	send(t, conn, "REQ", "live", map[string]interface{}{"limit": 0})
	assert.Equal(t, []interface{}{"EOSE", "live"}, receive(t, conn))
}

func TestLiveEventsReachOtherConnections(t *testing.T) {
	server := startServer(t)
	subscriber := server.dial(t)
	publisher := server.dial(t)

	send(t, subscriber, "REQ", "notes", map[string]interface{}{"kinds": []int{1}})
	require.Equal(t, []interface{}{"EOSE", "notes"}, receive(t, subscriber))
	barrier(t, subscriber)

	reaction := signedEvent(t, 7, "+", nil)
	send(t, publisher, "EVENT", reaction)
	require.Equal(t, true, receive(t, publisher)[2])

	note := signedEvent(t, 1, "live", nil)
	send(t, publisher, "EVENT", note)
	require.Equal(t, true, receive(t, publisher)[2])

	frame := receive(t, subscriber)
	require.Equal(t, "EVENT", frame[0])
	assert.Equal(t, "notes", frame[1])
	assert.Equal(t, note.ID, frame[2].(map[string]interface{})["id"])
}

func TestEphemeralEventsAreNotReplayed(t *testing.T) {
	server := startServer(t)
	conn := server.dial(t)

	event := signedEvent(t, 20001, "typing", nil)
	send(t, conn, "EVENT", event)
	require.Equal(t, []interface{}{"OK", event.ID, true, ""}, receive(t, conn))

	send(t, conn, "REQ", "history", map[string]interface{}{"ids": []string{event.ID}})
	assert.Equal(t, []interface{}{"EOSE", "history"}, receive(t, conn))
}

func TestCloseUnknownSubscriptionSendsNotice(t *testing.T) {
	server := startServer(t)
	conn := server.dial(t)

	send(t, conn, "CLOSE", "missing")
	assert.Equal(t, []interface{}{"NOTICE", "no subscription found to close under id missing"}, receive(t, conn))
}

func TestCloseRemovesSubscription(t *testing.T) {
	server := startServer(t)
	conn := server.dial(t)

	send(t, conn, "REQ", "sub", map[string]interface{}{})
	require.Equal(t, []interface{}{"EOSE", "sub"}, receive(t, conn))

	send(t, conn, "CLOSE", "sub")
	barrier(t, conn)

	send(t, conn, "CLOSE", "sub")
	assert.Equal(t, "NOTICE", receive(t, conn)[0])
}

func TestMalformedFramesCloseWithProtocolError(t *testing.T) {
	frames := map[string]string{
		"not json":        `not json`,
		"object":          `{"kind":1}`,
		"empty array":     `[]`,
		"unknown label":   `["AUTH","x"]`,
		"missing filter":  `["REQ","sub"]`,
		"subscription id": `["REQ","` + strings.Repeat("x", 65) + `",{}]`,
		"tag key":         `["REQ","sub",{"#tt":["x"]}]`,
	}

	server := startServer(t)
	for name, frame := range frames {
		t.Run(name, func(t *testing.T) {
			conn := server.dial(t)
			require.NoError(t, conn.WriteMessage(fastws.TextMessage, []byte(frame)))

			closeErr := expectClose(t, conn)
			assert.Equal(t, fastws.CloseProtocolError, closeErr.Code)
			assert.True(t, strings.HasPrefix(closeErr.Text, "invalid message: "), closeErr.Text)
		})
	}
}

func TestDisconnectUnregistersClient(t *testing.T) {
	server := startServer(t)
	conn := server.dial(t)

	send(t, conn, "REQ", "sub", map[string]interface{}{})
	require.Equal(t, []interface{}{"EOSE", "sub"}, receive(t, conn))
	require.Equal(t, 1, server.relay.Switchboard.Len())

	conn.Close()

	assert.Eventually(t, func() bool {
		return server.relay.Switchboard.Len() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRemoteAddressIgnoresUntrustedProxyHeader(t *testing.T) {
	cases := []struct {
		name   string
		server types.ServerConfig
		want   func(got string) bool
	}{
		{
			name:   "no proxy header configured",
			server: types.ServerConfig{},
			want:   func(got string) bool { return strings.HasPrefix(got, "127.0.0.1:") },
		},
		{
			name:   "peer is not a trusted proxy",
			server: types.ServerConfig{ProxyHeader: fiber.HeaderXForwardedFor, TrustedProxies: []string{"10.0.0.1"}},
			want:   func(got string) bool { return strings.HasPrefix(got, "127.0.0.1:") },
		},
		{
			name:   "peer is a trusted proxy",
			server: types.ServerConfig{ProxyHeader: fiber.HeaderXForwardedFor, TrustedProxies: []string{"127.0.0.1"}},
			want:   func(got string) bool { return got == "203.0.113.9" },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newApp(tc.server)
			app.Get("/", func(c *fiber.Ctx) error {
				return c.SendString(remoteAddress(c))
			})

			ln, err := net.Listen("tcp", "127.0.0.1:0")
			require.NoError(t, err)
			go app.Listener(ln)
			defer app.ShutdownWithTimeout(5 * time.Second)

			req, err := http.NewRequest(http.MethodGet, "http://"+ln.Addr().String()+"/", nil)
			require.NoError(t, err)
			req.Header.Set(fiber.HeaderXForwardedFor, "203.0.113.9")

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.True(t, tc.want(string(body)), "remote address %q", body)
		})
	}
}
