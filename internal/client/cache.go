package client

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/the-medo/swu-collection-sub005/internal/models"
)

// StaleAfter is the staleness threshold: entries older than this are still
// served but are re-queued for a refresh.
const StaleAfter = 12 * time.Hour

// PriceCache is the freshness-aware local price cache plus its deferred
// fetch queue. Stale reads follow stale-while-revalidate: the old value is
// returned immediately and a queue entry requests a refresh in the
// background.
type PriceCache struct {
	store *Store
	now   func() time.Time
}

func NewPriceCache(store *Store) *PriceCache {
	return &PriceCache{store: store, now: time.Now}
}

// Get looks up a cached price. A miss enqueues a fetch and returns nil; a
// stale hit enqueues a fetch and still returns the stale entry.
func (c *PriceCache) Get(cardID, variantID string, source models.SourceType) (*CacheEntry, error) {
	var entry CacheEntry
	err := c.store.db.
		Where("variant_id = ? AND source_type = ?", variantID, source).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := c.enqueue(cardID, variantID, source); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read price cache: %w", err)
	}

	if c.now().Sub(entry.FetchedAt) > StaleAfter {
		if err := c.enqueue(cardID, variantID, source); err != nil {
			return nil, err
		}
	}
	return &entry, nil
}

// Put overwrites entries by identity and unconditionally removes each
// written identity's queue entry, including duplicates enqueued while the
// fetch was in flight.
func (c *PriceCache) Put(entries []*CacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	err := c.store.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "variant_id"},
			{Name: "source_type"},
		},
		UpdateAll: true,
	}).Create(entries).Error
	if err != nil {
		return fmt.Errorf("failed to write price cache: %w", err)
	}

	for _, entry := range entries {
		err := c.store.db.
			Where("variant_id = ? AND source_type = ?", entry.VariantID, entry.SourceType).
			Delete(&QueueEntry{}).Error
		if err != nil {
			return fmt.Errorf("failed to clear fetch queue entry: %w", err)
		}
	}
	return nil
}

// DrainQueue returns all pending fetch entries ordered by AddedAt ascending,
// nulls last. Entries stay queued until a Put resolves them.
func (c *PriceCache) DrainQueue() ([]*QueueEntry, error) {
	entries := make([]*QueueEntry, 0)
	err := c.store.db.
		Order("added_at IS NULL, added_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read fetch queue: %w", err)
	}
	return entries, nil
}

// QueueLen reports the number of pending fetch entries.
func (c *PriceCache) QueueLen() (int, error) {
	var count int64
	if err := c.store.db.Model(&QueueEntry{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count fetch queue: %w", err)
	}
	return int(count), nil
}

// enqueue records a pending fetch. An already-queued identity keeps its
// original AddedAt so FIFO ordering is preserved across repeated reads.
func (c *PriceCache) enqueue(cardID, variantID string, source models.SourceType) error {
	now := c.now()
	entry := &QueueEntry{
		VariantID:  variantID,
		SourceType: source,
		CardID:     cardID,
		AddedAt:    &now,
	}
	err := c.store.db.Clauses(clause.OnConflict{DoNothing: true}).Create(entry).Error
	if err != nil {
		return fmt.Errorf("failed to enqueue price fetch: %w", err)
	}
	return nil
}
