package websocket

import (
	"context"

	jsoniter "github.com/json-iterator/go"

	"github.com/HORNET-Storage/trunk-relay/lib/handlers/nostr/universal"
	"github.com/HORNET-Storage/trunk-relay/lib/logging"
	"github.com/HORNET-Storage/trunk-relay/lib/relay"
	"github.com/HORNET-Storage/trunk-relay/lib/switchboard"
	"github.com/HORNET-Storage/trunk-relay/lib/types"
)

// handleReqMessage replays stored matches, sends EOSE and only then installs
// the live subscription. An event accepted while this runs may therefore be
// delivered twice.
func handleReqMessage(ctx context.Context, client *switchboard.Client, r *relay.Context, env *ReqEnvelope) error {
	var json = jsoniter.ConfigCompatibleWithStandardLibrary

	events, err := r.Store.QueryEvents(ctx, env.Filters)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Error("Failed to query events", map[string]interface{}{
			"client":       client.ID,
			"subscription": env.SubscriptionID,
			"error":        err,
		})
		return sendNotice(ctx, client, universal.ReasonInternal)
	}

	for _, event := range events {
		raw, err := json.Marshal(event)
		if err != nil {
			return err
		}
		frame, err := types.EncodeEventFrame(env.SubscriptionID, raw)
		if err != nil {
			return err
		}
		if err := client.Send(ctx, frame); err != nil {
			return err
		}
	}

	if err := sendEOSE(ctx, client, env.SubscriptionID); err != nil {
		return err
	}

	client.Subscribe(env.SubscriptionID, env.Filters)
	return nil
}
