package websocket

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/HORNET-Storage/trunk-relay/lib/types"
)

const maxSubscriptionIDLength = 64

// ParseEnvelope decodes a client frame. Anything that is not a well formed
// EVENT, REQ or CLOSE frame yields a *ProtocolError.
func ParseEnvelope(data []byte) (Envelope, error) {
	var json = jsoniter.ConfigCompatibleWithStandardLibrary

	var frame []jsoniter.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, protocolError("frame is not a JSON array")
	}
	if len(frame) == 0 {
		return nil, protocolError("empty frame")
	}

	var label string
	if err := json.Unmarshal(frame[0], &label); err != nil {
		return nil, protocolError("frame label is not a string")
	}

	switch label {
	case "EVENT":
		if len(frame) != 2 {
			return nil, protocolError("EVENT takes exactly one event, got %d elements", len(frame)-1)
		}
		event := &types.Event{}
		if err := json.Unmarshal(frame[1], event); err != nil {
			return nil, protocolError("malformed event")
		}
		return &EventEnvelope{Event: event}, nil

	case "REQ":
		if len(frame) < 3 {
			return nil, protocolError("REQ needs a subscription id and at least one filter")
		}
		id, err := parseSubscriptionID(frame[1])
		if err != nil {
			return nil, err
		}
		filters := make(types.Filters, len(frame)-2)
		for i, raw := range frame[2:] {
			if err := json.Unmarshal(raw, &filters[i]); err != nil {
				return nil, protocolError("filter %d: %v", i, err)
			}
		}
		return &ReqEnvelope{SubscriptionID: id, Filters: filters}, nil

	case "CLOSE":
		if len(frame) != 2 {
			return nil, protocolError("CLOSE takes exactly one subscription id")
		}
		id, err := parseSubscriptionID(frame[1])
		if err != nil {
			return nil, err
		}
		return &CloseEnvelope{SubscriptionID: id}, nil

	default:
		return nil, protocolError("unknown frame label %q", label)
	}
}

func parseSubscriptionID(raw jsoniter.RawMessage) (string, error) {
	var json = jsoniter.ConfigCompatibleWithStandardLibrary

	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", protocolError("subscription id is not a string")
	}
	if id == "" || len(id) > maxSubscriptionIDLength {
		return "", protocolError("subscription id must be 1 to %d characters", maxSubscriptionIDLength)
	}
	return id, nil
}
