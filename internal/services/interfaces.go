package services

import (
	"context"
	"time"

	"github.com/the-medo/swu-collection-sub005/internal/models"
)

// CardPriceService defines the canonical price store operations.
type CardPriceService interface {
	// CreateSource upserts the admin-managed configuration columns of a row
	// (source link, external product id). Derived columns are untouched.
	CreateSource(ctx context.Context, price *models.CardPrice) (*models.CardPrice, error)
	Get(ctx context.Context, cardID, variantID string, source models.SourceType) (*models.CardPrice, error)
	Delete(ctx context.Context, cardID, variantID string, source models.SourceType) error
	// BulkLoad returns the rows for the requested variant ids and one source
	// type. Missing ids are simply absent from the result.
	BulkLoad(ctx context.Context, source models.SourceType, variantIDs []string) ([]*models.CardPrice, error)
	History(ctx context.Context, filter *models.CardPriceHistoryFilter) ([]*models.CardPriceHistory, error)
	// FetchPriceNow refreshes a single row immediately via its scrape source.
	FetchPriceNow(ctx context.Context, cardID, variantID string, source models.SourceType) (*models.CardPrice, error)
}

// ScrapeAdapter fetches one reference page and extracts its price fields.
type ScrapeAdapter interface {
	FetchItem(ctx context.Context, sourceLink string) (*models.NormalizedPrice, error)
}

// BulkFeedAdapter downloads a source's full group listing and per-group price
// rows, persisting every raw payload before normalization.
type BulkFeedAdapter interface {
	SourceType() models.SourceType
	FetchAll(ctx context.Context, runDate time.Time) (models.NormalizedMap, error)
}

// PairingEngine joins a normalized map against canonical rows carrying a
// matching external product id and performs the batched upsert plus history
// insert.
type PairingEngine interface {
	PairAndUpsert(ctx context.Context, source models.SourceType, normalized models.NormalizedMap, runAt time.Time) ([]*models.CardPrice, error)
}

// IngestionService orchestrates one full adapter run for a source.
type IngestionService interface {
	RunIngestion(ctx context.Context, source models.SourceType, force bool) (*IngestionResult, error)
}

// IngestionResult summarizes one ingestion run.
type IngestionResult struct {
	Source       models.SourceType   `json:"source_type"`
	Day          string              `json:"day"`
	FromArtifact bool                `json:"from_artifact"`
	Paired       int                 `json:"paired"`
	Prices       []*models.CardPrice `json:"prices"`
}

// BlobStore is durable storage for raw ingestion artifacts, keyed by a dated
// path. Artifacts are write-once: uploads overwrite, nothing deletes.
type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte) error
	Download(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}
