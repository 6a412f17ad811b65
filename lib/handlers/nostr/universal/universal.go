package universal

import (
	"context"
	"errors"
	"fmt"

	"github.com/HORNET-Storage/trunk-relay/lib/logging"
	"github.com/HORNET-Storage/trunk-relay/lib/metrics"
	"github.com/HORNET-Storage/trunk-relay/lib/signing"
	"github.com/HORNET-Storage/trunk-relay/lib/stores"
	"github.com/HORNET-Storage/trunk-relay/lib/types"
)

// Client facing reasons. Internal failures never leak their cause.
const (
	ReasonDuplicate = "duplicate: event already received"
	ReasonInternal  = "error: internal server error"
)

type ErrorKind int

const (
	InvalidInput ErrorKind = iota
	Duplicate
	Internal
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidInput:
		return "invalid"
	case Duplicate:
		return "duplicate"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// IngestError is a rejected event. It always carries the event id so the
// caller can build an OK acknowledgement from it.
type IngestError struct {
	Kind    ErrorKind
	EventID string
	Reason  string
	Err     error
}

func (e *IngestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("event %s rejected (%s): %v", e.EventID, e.Kind, e.Err)
	}
	return fmt.Sprintf("event %s rejected (%s): %s", e.EventID, e.Kind, e.Reason)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

// Publisher hands an accepted event to the fan-out bridge
type Publisher interface {
	Publish(ctx context.Context, event *types.Event) error
}

// Handler validates, classifies, persists and publishes inbound events
type Handler struct {
	store     stores.EventStore
	publisher Publisher
	metrics   *metrics.Metrics
}

func NewHandler(store stores.EventStore, publisher Publisher, m *metrics.Metrics) *Handler {
	return &Handler{
		store:     store,
		publisher: publisher,
		metrics:   m,
	}
}

// Handle runs one event through the pipeline and returns its id, or an
// *IngestError describing why it was rejected.
func (h *Handler) Handle(ctx context.Context, event *types.Event) (string, error) {
	err := h.handle(ctx, event)
	if err != nil {
		var ingestErr *IngestError
		if errors.As(err, &ingestErr) {
			h.metrics.EventResult(ingestErr.Kind.String())
		}
		return event.ID, err
	}

	h.metrics.EventResult(metrics.ResultAccepted)
	return event.ID, nil
}

func (h *Handler) handle(ctx context.Context, event *types.Event) error {
	if err := signing.Verify(event); err != nil {
		var verr *signing.VerificationError
		if errors.As(err, &verr) {
			return &IngestError{
				Kind:    InvalidInput,
				EventID: event.ID,
				Reason:  fmt.Sprintf("invalid: %s: %s", verr.Field, verr.Detail),
				Err:     err,
			}
		}
		return h.internal(event, err)
	}

	class := types.Classify(event.Kind)

	switch class {
	case types.Ephemeral:
		// never persisted
	case types.Replaceable, types.ParameterizedReplaceable:
		if err := h.store.ReplaceEvent(ctx, event); err != nil {
			if errors.Is(err, stores.ErrDuplicate) {
				return h.duplicate(event, err)
			}
			return h.internal(event, err)
		}
	default:
		if err := h.store.StoreEvent(ctx, event); err != nil {
			if errors.Is(err, stores.ErrDuplicate) {
				return h.duplicate(event, err)
			}
			return h.internal(event, err)
		}
	}

	h.metrics.EventStored(class.String())
	logging.Debug("Event accepted", map[string]interface{}{
		"id":    event.ID,
		"kind":  event.Kind,
		"class": class.String(),
	})

	if err := h.publisher.Publish(ctx, event); err != nil {
		if class == types.Ephemeral {
			return h.internal(event, fmt.Errorf("failed to publish: %w", err))
		}
		// the event is committed; a retry would only be reported as a duplicate
		logging.Warn("Stored event was not fanned out", map[string]interface{}{
			"id":    event.ID,
			"error": err.Error(),
		})
	}

	return nil
}

func (h *Handler) duplicate(event *types.Event, err error) error {
	return &IngestError{Kind: Duplicate, EventID: event.ID, Reason: ReasonDuplicate, Err: err}
}

func (h *Handler) internal(event *types.Event, err error) error {
	logging.Error("Failed to ingest event", map[string]interface{}{
		"id":    event.ID,
		"kind":  event.Kind,
		"error": err,
	})
	return &IngestError{Kind: Internal, EventID: event.ID, Reason: ReasonInternal, Err: err}
}

// Reason returns the OK message for the outcome of Handle
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var ingestErr *IngestError
	if errors.As(err, &ingestErr) {
		return ingestErr.Reason
	}
	return ReasonInternal
}
