package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	"github.com/the-medo/swu-collection-sub005/internal/db"
	"github.com/the-medo/swu-collection-sub005/internal/models"
)

// upsertBatchSize bounds the size of each upsert/insert transaction.
const upsertBatchSize = 100

// PairingEngineImpl joins a day's normalized map against canonical rows that
// carry a matching external product id and writes the result in batches.
//
// The upsert overwrites only the derived columns (updated_at, data, price);
// source_link and source_product_id are admin-managed configuration and a
// concurrent admin edit must never be lost to an ingestion pass.
type PairingEngineImpl struct {
	db     *db.DB
	logger *zap.Logger
}

func NewPairingEngine(database *db.DB, logger *zap.Logger) PairingEngine {
	return &PairingEngineImpl{db: database, logger: logger}
}

func (e *PairingEngineImpl) PairAndUpsert(ctx context.Context, source models.SourceType, normalized models.NormalizedMap, runAt time.Time) ([]*models.CardPrice, error) {
	var rows []*models.CardPrice
	err := e.db.WithContext(ctx).
		Where("source_type = ? AND source_product_id IS NOT NULL", source).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load canonical rows: %w", err)
	}

	runAt = runAt.UTC().Truncate(time.Second)

	var upserts []*models.CardPrice
	var history []*models.CardPriceHistory
	for _, row := range rows {
		np, ok := normalized[*row.SourceProductID]
		if !ok {
			// Source no longer lists this product, or the pairing key is stale.
			continue
		}

		payload, err := np.DataPayload(source)
		if err != nil {
			e.logger.Warn("skipping row with unbuildable payload",
				zap.String("card_id", row.CardID),
				zap.String("variant_id", row.VariantID),
				zap.Error(err))
			continue
		}
		price := np.FallbackPrice(source)

		at := runAt
		row.UpdatedAt = &at
		row.Data = payload
		p := price
		row.Price = &p

		upserts = append(upserts, row)
		history = append(history, &models.CardPriceHistory{
			CardID:     row.CardID,
			VariantID:  row.VariantID,
			SourceType: row.SourceType,
			CreatedAt:  runAt,
			Data:       payload,
			Price:      price,
		})
	}

	for start := 0; start < len(upserts); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(upserts) {
			end = len(upserts)
		}
		err := e.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "card_id"},
				{Name: "variant_id"},
				{Name: "source_type"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"updated_at", "data", "price"}),
		}).Create(upserts[start:end]).Error
		if err != nil {
			return nil, fmt.Errorf("failed to upsert price batch: %w", err)
		}
	}

	if len(history) > 0 {
		if err := e.db.WithContext(ctx).CreateInBatches(history, upsertBatchSize).Error; err != nil {
			return nil, fmt.Errorf("failed to insert history batch: %w", err)
		}
	}

	e.logger.Info("pairing run complete",
		zap.String("source_type", string(source)),
		zap.Int("canonical_rows", len(rows)),
		zap.Int("paired", len(upserts)))

	return upserts, nil
}
