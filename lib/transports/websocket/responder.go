package websocket

import (
	"context"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/HORNET-Storage/trunk-relay/lib/logging"
	"github.com/HORNET-Storage/trunk-relay/lib/switchboard"
	"github.com/HORNET-Storage/trunk-relay/lib/types"
)

const (
	writeWait = 10 * time.Second

	// close reasons must fit a control frame
	maxCloseReason = 123
)

// writeLoop drains the client's outbound queue to the socket. When the client
// is shut down it flushes what is already queued, sends the close frame the
// client was closed with, and closes the socket, which also ends the reader.
func writeLoop(conn *websocket.Conn, client *switchboard.Client) error {
	defer conn.Close()

	for {
		select {
		case frame := <-client.Outbound():
			if err := writeFrame(conn, frame); err != nil {
				client.CloseWith(switchboard.CloseNormal, "")
				return err
			}

		case <-client.Context().Done():
			flush(conn, client)

			code, reason := client.CloseReason()
			if len(reason) > maxCloseReason {
				reason = reason[:maxCloseReason]
			}
			conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
			return nil
		}
	}
}

func flush(conn *websocket.Conn, client *switchboard.Client) {
	for {
		select {
		case frame := <-client.Outbound():
			if err := writeFrame(conn, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, frame []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func sendOK(ctx context.Context, client *switchboard.Client, eventID string, accepted bool, message string) error {
	frame, err := types.EncodeOK(eventID, accepted, message)
	if err != nil {
		return err
	}
	return client.Send(ctx, frame)
}

func sendEOSE(ctx context.Context, client *switchboard.Client, subscriptionID string) error {
	frame, err := types.EncodeEOSE(subscriptionID)
	if err != nil {
		return err
	}
	return client.Send(ctx, frame)
}

func sendNotice(ctx context.Context, client *switchboard.Client, message string) error {
	frame, err := types.EncodeNotice(message)
	if err != nil {
		return err
	}
	logging.Debug("Sending notice", map[string]interface{}{"client": client.ID, "notice": message})
	return client.Send(ctx, frame)
}
