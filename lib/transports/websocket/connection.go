package websocket

import (
	"context"
	"errors"

	"github.com/gofiber/contrib/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/HORNET-Storage/trunk-relay/lib/logging"
	"github.com/HORNET-Storage/trunk-relay/lib/relay"
	"github.com/HORNET-Storage/trunk-relay/lib/switchboard"
)

// serveConnection runs the reader and the writer of one connection and
// returns when both have stopped. Either side ends the other through the
// client: the reader by closing the client, the writer by closing the socket.
func serveConnection(conn *websocket.Conn, client *switchboard.Client, r *relay.Context) {
	var g errgroup.Group

	g.Go(func() error {
		return readLoop(conn, client, r)
	})
	g.Go(func() error {
		return writeLoop(conn, client)
	})

	if err := g.Wait(); err != nil {
		logging.Debug("Connection ended", map[string]interface{}{
			"client": client.ID,
			"remote": client.RemoteAddr,
			"error":  err,
		})
	}
}

func readLoop(conn *websocket.Conn, client *switchboard.Client, r *relay.Context) error {
	ctx := client.Context()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// peer went away or the writer closed the socket
			client.CloseWith(switchboard.CloseNormal, "")
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return err
			}
			return nil
		}

		if err := dispatch(ctx, client, r, data); err != nil {
			var protoErr *ProtocolError
			switch {
			case errors.As(err, &protoErr):
				logging.Info("Closing connection after protocol error", map[string]interface{}{
					"client": client.ID,
					"remote": client.RemoteAddr,
					"reason": protoErr.Reason,
				})
				client.CloseWith(switchboard.CloseProtocolError, protoErr.Error())
			case errors.Is(err, switchboard.ErrClientGone), errors.Is(err, context.Canceled):
				client.CloseWith(switchboard.CloseNormal, "")
			default:
				logging.Error("Closing connection after internal error", map[string]interface{}{
					"client": client.ID,
					"error":  err,
				})
				client.CloseWith(switchboard.CloseInternalError, "error: internal server error")
			}
			return err
		}
	}
}

// dispatch handles one frame. Frames of one connection are handled strictly
// in order because the reader waits for each to finish.
func dispatch(ctx context.Context, client *switchboard.Client, r *relay.Context, data []byte) error {
	envelope, err := ParseEnvelope(data)
	if err != nil {
		return err
	}

	switch env := envelope.(type) {
	case *EventEnvelope:
		return handleEventMessage(ctx, client, r, env)
	case *ReqEnvelope:
		return handleReqMessage(ctx, client, r, env)
	case *CloseEnvelope:
		return handleCloseMessage(ctx, client, env)
	default:
		return protocolError("unsupported frame %s", envelope.Label())
	}
}
