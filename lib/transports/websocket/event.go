package websocket

import (
	"context"

	"github.com/HORNET-Storage/trunk-relay/lib/handlers/nostr/universal"
	"github.com/HORNET-Storage/trunk-relay/lib/relay"
	"github.com/HORNET-Storage/trunk-relay/lib/switchboard"
)

// handleEventMessage runs the ingest pipeline and acknowledges with OK.
// Rejections are reported in the OK frame and never end the connection.
func handleEventMessage(ctx context.Context, client *switchboard.Client, r *relay.Context, env *EventEnvelope) error {
	id, err := r.Ingest.Handle(ctx, env.Event)
	return sendOK(ctx, client, id, err == nil, universal.Reason(err))
}
