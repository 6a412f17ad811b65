package websocket

import (
	"fmt"

	"github.com/HORNET-Storage/trunk-relay/lib/types"
)

// NIP11RelayInfo is the relay information document served to HTTP requests
// that accept application/nostr+json.
type NIP11RelayInfo struct {
	Name          string      `json:"name,omitempty"`
	Description   string      `json:"description,omitempty"`
	Pubkey        string      `json:"pubkey,omitempty"`
	Contact       string      `json:"contact,omitempty"`
	SupportedNIPs []int       `json:"supported_nips,omitempty"`
	Software      string      `json:"software,omitempty"`
	Version       string      `json:"version,omitempty"`
	Limitation    *Limitation `json:"limitation,omitempty"`
}

type Limitation struct {
	MaxMessageLength int `json:"max_message_length,omitempty"`
	MaxSubidLength   int `json:"max_subid_length,omitempty"`
	MaxLimit         int `json:"max_limit,omitempty"`
}

// Envelope is one parsed client to relay frame
type Envelope interface {
	Label() string
}

type EventEnvelope struct {
	Event *types.Event
}

func (*EventEnvelope) Label() string { return "EVENT" }

type ReqEnvelope struct {
	SubscriptionID string
	Filters        types.Filters
}

func (*ReqEnvelope) Label() string { return "REQ" }

type CloseEnvelope struct {
	SubscriptionID string
}

func (*CloseEnvelope) Label() string { return "CLOSE" }

// ProtocolError is a frame the relay cannot interpret. It ends the connection.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "invalid message: " + e.Reason
}

func protocolError(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}
