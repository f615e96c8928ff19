package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/the-medo/swu-collection-sub005/internal/models"
	"github.com/the-medo/swu-collection-sub005/internal/retry"
)

// BatchLoader drains the fetch queue (or an explicit key set), grouped into
// one bulk-load request per source type. Groups are independent: a failed
// group does not block prices for other groups.
type BatchLoader struct {
	baseURL  string
	client   *resty.Client
	cache    *PriceCache
	logger   *zap.Logger
	retryCfg retry.Config
	now      func() time.Time
}

func NewBatchLoader(baseURL string, cache *PriceCache, logger *zap.Logger) *BatchLoader {
	client := resty.New()
	client.SetTimeout(30 * time.Second)

	return &BatchLoader{
		baseURL:  baseURL,
		client:   client,
		cache:    cache,
		logger:   logger,
		retryCfg: retry.DefaultConfig(),
		now:      time.Now,
	}
}

type bulkLoadRequest struct {
	SourceType models.SourceType `json:"sourceType"`
	VariantIDs []string          `json:"variantIds"`
}

type bulkLoadResponse struct {
	Success bool               `json:"success"`
	Data    []models.CardPrice `json:"data"`
}

// DrainQueue loads every queued identity. After a successful drain each
// requested id has a cache entry (real or placeholder) and is gone from the
// queue.
func (l *BatchLoader) DrainQueue(ctx context.Context) error {
	entries, err := l.cache.DrainQueue()
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, models.PriceKey(e.VariantID, e.SourceType))
	}
	return l.LoadKeys(ctx, keys)
}

// LoadKeys fetches the given composite "variantId|sourceType" keys. Keys
// with an unrecognized source type are dropped silently; remaining keys are
// partitioned into one request per source type.
func (l *BatchLoader) LoadKeys(ctx context.Context, keys []string) error {
	groups := models.GroupVariantIDsBySource(keys)

	var errs []error
	for source, variantIDs := range groups {
		if err := l.loadGroup(ctx, source, variantIDs); err != nil {
			l.logger.Warn("batch group failed",
				zap.String("source_type", string(source)),
				zap.Int("variant_ids", len(variantIDs)),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", source, err))
		}
	}
	return errors.Join(errs...)
}

func (l *BatchLoader) loadGroup(ctx context.Context, source models.SourceType, variantIDs []string) error {
	var found []models.CardPrice

	err := retry.WithBackoff(ctx, l.retryCfg, l.logger, "bulk-load "+string(source), func() error {
		var body bulkLoadResponse
		resp, err := l.client.R().
			SetContext(ctx).
			SetBody(&bulkLoadRequest{SourceType: source, VariantIDs: variantIDs}).
			SetResult(&body).
			Post(l.baseURL + "/card-prices/bulk-load")
		if err != nil {
			return fmt.Errorf("bulk-load request failed: %w", err)
		}
		if resp.StatusCode() == http.StatusNotFound {
			return &retry.Terminal{Err: fmt.Errorf("bulk-load endpoint returned 404")}
		}
		if resp.StatusCode() != http.StatusOK {
			return fmt.Errorf("bulk-load returned status %d", resp.StatusCode())
		}
		found = body.Data
		return nil
	})
	if err != nil {
		return err
	}

	now := l.now()
	byVariant := make(map[string]*models.CardPrice, len(found))
	for i := range found {
		byVariant[found[i].VariantID] = &found[i]
	}

	entries := make([]*CacheEntry, 0, len(variantIDs))
	for _, variantID := range variantIDs {
		if row, ok := byVariant[variantID]; ok {
			entries = append(entries, &CacheEntry{
				VariantID:       row.VariantID,
				SourceType:      row.SourceType,
				CardID:          row.CardID,
				SourceLink:      row.SourceLink,
				SourceProductID: row.SourceProductID,
				UpdatedAt:       row.UpdatedAt,
				Data:            row.Data,
				Price:           row.Price,
				FetchedAt:       now,
			})
			continue
		}
		// Queried and confirmed absent, as opposed to never checked.
		at := now
		entries = append(entries, &CacheEntry{
			VariantID:  variantID,
			SourceType: source,
			UpdatedAt:  &at,
			FetchedAt:  now,
		})
	}

	return l.cache.Put(entries)
}
