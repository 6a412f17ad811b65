package stores

import (
	"context"
	"errors"
	"strconv"

	"github.com/HORNET-Storage/trunk-relay/lib/types"
)

// ErrDuplicate is returned by StoreEvent when a regular event with the same id
// is already stored.
var ErrDuplicate = errors.New("event already stored")

// EventStore persists events according to their persistence class and answers
// historical queries. Implementations must make Replace atomic: concurrent
// writers for the same replacement key leave exactly one row, and readers
// never observe the key without a row once one writer has been accepted.
type EventStore interface {
	// StoreEvent appends a regular event
	StoreEvent(ctx context.Context, event *types.Event) error

	// ReplaceEvent removes every stored event sharing the replacement key of
	// event and stores event in its place, in one transaction.
	ReplaceEvent(ctx context.Context, event *types.Event) error

	// QueryEvents returns stored events matching any of the filters
	QueryEvents(ctx context.Context, filters types.Filters) ([]*types.Event, error)

	Close() error
}

// ReplaceKey returns the uniqueness key for replaceable and parameterized
// replaceable events, and false for every other class.
func ReplaceKey(event *types.Event) (string, bool) {
	switch types.Classify(event.Kind) {
	case types.Replaceable:
		return event.PubKey + ":" + strconv.Itoa(int(event.Kind)), true
	case types.ParameterizedReplaceable:
		return event.PubKey + ":" + strconv.Itoa(int(event.Kind)) + ":" + types.EffectiveDTag(event.Tags), true
	default:
		return "", false
	}
}
