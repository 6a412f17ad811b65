// Nostr event and related types
package types

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// Tag is a single ordered tag, typically [name, value, ...]
type Tag []string

// Name returns the first element of the tag or "" for an empty tag
func (tag Tag) Name() string {
	if len(tag) == 0 {
		return ""
	}
	return tag[0]
}

// Value returns the second element of the tag or "" when missing
func (tag Tag) Value() string {
	if len(tag) < 2 {
		return ""
	}
	return tag[1]
}

type Tags []Tag

// Find returns the first tag with the given name
func (tags Tags) Find(name string) (Tag, bool) {
	for _, tag := range tags {
		if tag.Name() == name {
			return tag, true
		}
	}
	return nil, false
}

// Event is an immutable, signed nostr event as received on the wire
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      uint16 `json:"kind"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// eventJSON mirrors Event so that decoding can normalise null tags
type eventJSON Event

func (e *Event) UnmarshalJSON(data []byte) error {
	var json = jsoniter.ConfigCompatibleWithStandardLibrary

	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	if raw.Tags == nil {
		raw.Tags = Tags{}
	}
	*e = Event(raw)
	return nil
}

func (e Event) MarshalJSON() ([]byte, error) {
	var json = jsoniter.ConfigCompatibleWithStandardLibrary

	raw := eventJSON(e)
	if raw.Tags == nil {
		raw.Tags = Tags{}
	}
	return json.Marshal(raw)
}

func (e *Event) String() string {
	return fmt.Sprintf("event{id=%s kind=%d pubkey=%s}", e.ID, e.Kind, e.PubKey)
}
