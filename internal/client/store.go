// Package client implements the disconnected client's price subsystem: a
// freshness-aware local cache with a deferred-fetch queue, a batch loader
// that coalesces pending fetches into one request per source type, and a
// propagator that patches already-materialized views after price mutations.
//
// Everything here runs on a single UI goroutine; reads and queue mutations
// are synchronous relative to each other, so no locking is needed.
package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/the-medo/swu-collection-sub005/internal/models"
)

// CacheEntry mirrors a server price row plus FetchedAt, the client receipt
// timestamp. FetchedAt is distinct from the server's UpdatedAt: staleness is
// measured against when the client last pulled the row, not when the server
// last recomputed it.
type CacheEntry struct {
	VariantID  string            `gorm:"primaryKey;column:variant_id"`
	SourceType models.SourceType `gorm:"primaryKey;column:source_type"`

	CardID          string           `gorm:"column:card_id"`
	SourceLink      string           `gorm:"column:source_link"`
	SourceProductID *string          `gorm:"column:source_product_id"`
	UpdatedAt       *time.Time       `gorm:"column:updated_at"`
	Data            json.RawMessage  `gorm:"column:data"`
	Price           *decimal.Decimal `gorm:"column:price"`

	FetchedAt time.Time `gorm:"column:fetched_at"`
}

func (CacheEntry) TableName() string { return "local_price_cache" }

// Key returns the composite "variantId|sourceType" key for this entry.
func (e *CacheEntry) Key() string {
	return models.PriceKey(e.VariantID, e.SourceType)
}

// QueueEntry is a pending request to refresh one price.
type QueueEntry struct {
	VariantID  string            `gorm:"primaryKey;column:variant_id"`
	SourceType models.SourceType `gorm:"primaryKey;column:source_type"`

	CardID  string     `gorm:"column:card_id"`
	AddedAt *time.Time `gorm:"column:added_at"`
}

func (QueueEntry) TableName() string { return "price_fetch_queue" }

type schemaVersion struct {
	ID      int `gorm:"primaryKey"`
	Version int
}

func (schemaVersion) TableName() string { return "schema_version" }

// migrationStep is one pure, idempotent schema upgrade applied at startup.
type migrationStep struct {
	Version int
	Apply   func(db *gorm.DB) error
}

func migrationSteps() []migrationStep {
	return []migrationStep{
		{
			Version: 1,
			Apply: func(db *gorm.DB) error {
				return db.AutoMigrate(&CacheEntry{}, &QueueEntry{})
			},
		},
	}
}

// Store is the client-resident durable store backing the price cache and the
// fetch queue, an explicit key-value-style store with versioned migrations.
type Store struct {
	db *gorm.DB
}

// OpenStore opens (or creates) the store at path and applies any pending
// migration steps. Use ":memory:" for an ephemeral store.
func OpenStore(path string) (*Store, error) {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	store := &Store{db: gdb}
	if err := store.migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	if err := s.db.AutoMigrate(&schemaVersion{}); err != nil {
		return fmt.Errorf("failed to prepare schema version table: %w", err)
	}

	var current schemaVersion
	if err := s.db.FirstOrCreate(&current, schemaVersion{ID: 1}).Error; err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, step := range migrationSteps() {
		if step.Version <= current.Version {
			continue
		}
		if err := step.Apply(s.db); err != nil {
			return fmt.Errorf("migration step %d failed: %w", step.Version, err)
		}
		current.Version = step.Version
		if err := s.db.Save(&current).Error; err != nil {
			return fmt.Errorf("failed to record schema version %d: %w", step.Version, err)
		}
	}
	return nil
}
