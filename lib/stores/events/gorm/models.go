package gorm

import (
	"encoding/hex"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"gorm.io/datatypes"

	"github.com/HORNET-Storage/trunk-relay/lib/types"
)

// EventRecord is the stored row of a kept event. ReplaceKey is only set for
// replaceable and parameterized replaceable kinds and is unique, which lets
// the database reject a second row for the same key.
type EventRecord struct {
	ID         []byte         `gorm:"column:id;primaryKey"`
	PubKey     []byte         `gorm:"column:pubkey;not null;index:idx_events_pubkey_kind,priority:1"`
	Timestamp  int64          `gorm:"column:created_at;not null;index:idx_events_created_at"`
	Kind       int            `gorm:"column:kind;not null;index:idx_events_pubkey_kind,priority:2;index:idx_events_kind"`
	Tags       datatypes.JSON `gorm:"column:tags;not null"`
	Content    string         `gorm:"column:content;not null"`
	Sig        []byte         `gorm:"column:sig;not null"`
	ReplaceKey *string        `gorm:"column:replace_key;uniqueIndex:idx_events_replace_key"`
}

func (EventRecord) TableName() string {
	return "events"
}

func newEventRecord(event *types.Event) (*EventRecord, error) {
	var json = jsoniter.ConfigCompatibleWithStandardLibrary

	id, err := hex.DecodeString(event.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to decode id: %w", err)
	}
	pubkey, err := hex.DecodeString(event.PubKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode pubkey: %w", err)
	}
	sig, err := hex.DecodeString(event.Sig)
	if err != nil {
		return nil, fmt.Errorf("failed to decode sig: %w", err)
	}

	tags := event.Tags
	if tags == nil {
		tags = types.Tags{}
	}
	encodedTags, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}

	return &EventRecord{
		ID:        id,
		PubKey:    pubkey,
		Timestamp: event.CreatedAt,
		Kind:      int(event.Kind),
		Tags:      datatypes.JSON(encodedTags),
		Content:   event.Content,
		Sig:       sig,
	}, nil
}

func (r *EventRecord) toEvent() (*types.Event, error) {
	var json = jsoniter.ConfigCompatibleWithStandardLibrary

	tags := types.Tags{}
	if len(r.Tags) > 0 {
		if err := json.Unmarshal(r.Tags, &tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags of %x: %w", r.ID, err)
		}
		if tags == nil {
			tags = types.Tags{}
		}
	}

	return &types.Event{
		ID:        hex.EncodeToString(r.ID),
		PubKey:    hex.EncodeToString(r.PubKey),
		CreatedAt: r.Timestamp,
		Kind:      uint16(r.Kind),
		Tags:      tags,
		Content:   r.Content,
		Sig:       hex.EncodeToString(r.Sig),
	}, nil
}
