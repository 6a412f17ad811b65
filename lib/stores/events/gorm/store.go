package gorm

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/HORNET-Storage/trunk-relay/lib/stores"
	"github.com/HORNET-Storage/trunk-relay/lib/types"
)

// GormEventStore keeps events in a single "events" table on SQLite or
// PostgreSQL.
type GormEventStore struct {
	DB *gorm.DB

	dialect Dialect
	ceiling int
}

var _ stores.EventStore = (*GormEventStore)(nil)

// NewStore migrates the schema on db and returns a store whose queries never
// return more than ceiling rows.
func NewStore(db *gorm.DB, ceiling int) (*GormEventStore, error) {
	store := &GormEventStore{
		DB:      db,
		dialect: Dialect(db.Dialector.Name()),
		ceiling: ceiling,
	}

	if err := store.Init(); err != nil {
		return nil, err
	}

	return store, nil
}

// Init creates or updates the events table
func (store *GormEventStore) Init() error {
	if err := store.DB.AutoMigrate(&EventRecord{}); err != nil {
		return fmt.Errorf("failed to migrate database schema: %v", err)
	}
	return nil
}

func (store *GormEventStore) Dialect() Dialect {
	return store.dialect
}

// StoreEvent inserts a regular event. A row with the same id already present
// yields stores.ErrDuplicate and leaves the stored row untouched.
func (store *GormEventStore) StoreEvent(ctx context.Context, event *types.Event) error {
	record, err := newEventRecord(event)
	if err != nil {
		return err
	}

	result := store.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(record)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return stores.ErrDuplicate
	}

	return nil
}

// ReplaceEvent deletes every row sharing the replacement key of event and
// inserts event, inside one transaction. The upsert on replace_key covers a
// concurrent writer that committed the same key between our delete and insert.
func (store *GormEventStore) ReplaceEvent(ctx context.Context, event *types.Event) error {
	key, ok := stores.ReplaceKey(event)
	if !ok {
		return fmt.Errorf("kind %d is not replaceable", event.Kind)
	}

	record, err := newEventRecord(event)
	if err != nil {
		return err
	}
	record.ReplaceKey = &key

	err = store.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("replace_key = ?", key).Delete(&EventRecord{}).Error; err != nil {
			return err
		}

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "replace_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"id", "pubkey", "created_at", "kind", "tags", "content", "sig"}),
		}).Create(record).Error
	})

	return translate(err)
}

// QueryEvents runs the compiled form of filters
func (store *GormEventStore) QueryEvents(ctx context.Context, filters types.Filters) ([]*types.Event, error) {
	if Limit(filters, store.ceiling) == 0 {
		return []*types.Event{}, nil
	}

	query, args := Compile(store.dialect, filters, store.ceiling)

	var records []EventRecord
	if err := store.DB.WithContext(ctx).Raw(query, args...).Scan(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	events := make([]*types.Event, 0, len(records))
	for i := range records {
		event, err := records[i].toEvent()
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, nil
}

// Count returns the number of stored rows
func (store *GormEventStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := store.DB.WithContext(ctx).Model(&EventRecord{}).Count(&count).Error
	return count, err
}

func (store *GormEventStore) Close() error {
	sqlDB, err := store.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return stores.ErrDuplicate
	}
	return err
}
