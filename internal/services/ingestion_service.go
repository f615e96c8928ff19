package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/the-medo/swu-collection-sub005/internal/errors"
	"github.com/the-medo/swu-collection-sub005/internal/models"
)

// IngestionServiceImpl orchestrates one adapter run: pull the feed, persist
// the merged normalized artifact, pair it against the canonical store. When
// the day's artifact already exists it is reused instead of re-fetching the
// feed, unless force is set.
type IngestionServiceImpl struct {
	adapters map[models.SourceType]BulkFeedAdapter
	blobs    BlobStore
	pairing  PairingEngine
	logger   *zap.Logger
	now      func() time.Time
}

func NewIngestionService(adapters []BulkFeedAdapter, blobs BlobStore, pairing PairingEngine, logger *zap.Logger) IngestionService {
	bySource := make(map[models.SourceType]BulkFeedAdapter, len(adapters))
	for _, a := range adapters {
		bySource[a.SourceType()] = a
	}
	return &IngestionServiceImpl{
		adapters: bySource,
		blobs:    blobs,
		pairing:  pairing,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *IngestionServiceImpl) RunIngestion(ctx context.Context, source models.SourceType, force bool) (*IngestionResult, error) {
	adapter, ok := s.adapters[source]
	if !ok {
		return nil, &apperrors.ErrUnsupportedSource{SourceType: string(source)}
	}

	runAt := s.now()
	day := artifactDay(runAt)
	artifact := normalizedKey(source, day)

	var merged models.NormalizedMap
	fromArtifact := false

	if !force {
		if exists, err := s.blobs.Exists(ctx, artifact); err == nil && exists {
			raw, err := s.blobs.Download(ctx, artifact)
			if err != nil {
				return nil, fmt.Errorf("failed to load normalized artifact: %w", err)
			}
			if err := json.Unmarshal(raw, &merged); err != nil {
				return nil, fmt.Errorf("failed to decode normalized artifact: %w", err)
			}
			fromArtifact = true
			s.logger.Info("reusing same-day normalized artifact",
				zap.String("source_type", string(source)),
				zap.String("day", day),
				zap.Int("products", len(merged)))
		}
	}

	if merged == nil {
		var err error
		merged, err = adapter.FetchAll(ctx, runAt)
		if err != nil {
			return nil, fmt.Errorf("ingestion aborted: %w", err)
		}

		raw, err := json.Marshal(merged)
		if err != nil {
			return nil, fmt.Errorf("failed to encode normalized artifact: %w", err)
		}
		if err := s.blobs.Upload(ctx, artifact, raw); err != nil {
			return nil, fmt.Errorf("failed to store normalized artifact: %w", err)
		}
	}

	prices, err := s.pairing.PairAndUpsert(ctx, source, merged, runAt)
	if err != nil {
		return nil, err
	}

	return &IngestionResult{
		Source:       source,
		Day:          day,
		FromArtifact: fromArtifact,
		Paired:       len(prices),
		Prices:       prices,
	}, nil
}
