package websocket

import (
	"context"
	"fmt"

	"github.com/HORNET-Storage/trunk-relay/lib/switchboard"
)

func handleCloseMessage(ctx context.Context, client *switchboard.Client, env *CloseEnvelope) error {
	if client.Unsubscribe(env.SubscriptionID) {
		return nil
	}
	return sendNotice(ctx, client, fmt.Sprintf("no subscription found to close under id %s", env.SubscriptionID))
}
