package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/the-medo/swu-collection-sub005/internal/db"
	apperrors "github.com/the-medo/swu-collection-sub005/internal/errors"
	"github.com/the-medo/swu-collection-sub005/internal/models"
)

type CardPriceServiceImpl struct {
	db      *db.DB
	scraper ScrapeAdapter
	logger  *zap.Logger
}

func NewCardPriceService(database *db.DB, scraper ScrapeAdapter, logger *zap.Logger) CardPriceService {
	return &CardPriceServiceImpl{db: database, scraper: scraper, logger: logger}
}

// CreateSource registers (or reconfigures) a price source for a card variant.
// Only the configuration columns are written; derived columns stay as they
// are so a re-registration does not wipe already-fetched price data.
func (s *CardPriceServiceImpl) CreateSource(ctx context.Context, price *models.CardPrice) (*models.CardPrice, error) {
	if err := price.Validate(); err != nil {
		return nil, &apperrors.ErrValidation{Field: "price", Message: err.Error()}
	}

	row := &models.CardPrice{
		CardID:          price.CardID,
		VariantID:       price.VariantID,
		SourceType:      price.SourceType,
		SourceLink:      price.SourceLink,
		SourceProductID: price.SourceProductID,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "card_id"},
			{Name: "variant_id"},
			{Name: "source_type"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"source_link", "source_product_id"}),
	}).Create(row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert price source: %w", err)
	}

	return s.Get(ctx, price.CardID, price.VariantID, price.SourceType)
}

func (s *CardPriceServiceImpl) Get(ctx context.Context, cardID, variantID string, source models.SourceType) (*models.CardPrice, error) {
	var row models.CardPrice
	err := s.db.WithContext(ctx).
		Where("card_id = ? AND variant_id = ? AND source_type = ?", cardID, variantID, source).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperrors.ErrNotFound{Entity: "card price"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get card price: %w", err)
	}
	return &row, nil
}

// Delete removes a price row by full identity. History rows are kept.
func (s *CardPriceServiceImpl) Delete(ctx context.Context, cardID, variantID string, source models.SourceType) error {
	res := s.db.WithContext(ctx).
		Where("card_id = ? AND variant_id = ? AND source_type = ?", cardID, variantID, source).
		Delete(&models.CardPrice{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete card price: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return &apperrors.ErrNotFound{Entity: "card price"}
	}
	return nil
}

func (s *CardPriceServiceImpl) BulkLoad(ctx context.Context, source models.SourceType, variantIDs []string) ([]*models.CardPrice, error) {
	if !source.Valid() {
		return nil, &apperrors.ErrValidation{Field: "source_type", Message: "unknown source type"}
	}
	if len(variantIDs) == 0 {
		return []*models.CardPrice{}, nil
	}

	rows := make([]*models.CardPrice, 0, len(variantIDs))
	err := s.db.WithContext(ctx).
		Where("source_type = ? AND variant_id IN ?", source, variantIDs).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to bulk load prices: %w", err)
	}
	return rows, nil
}

func (s *CardPriceServiceImpl) History(ctx context.Context, filter *models.CardPriceHistoryFilter) ([]*models.CardPriceHistory, error) {
	if err := filter.Validate(); err != nil {
		return nil, &apperrors.ErrValidation{Field: "filter", Message: err.Error()}
	}

	since := time.Now().UTC().AddDate(0, 0, -filter.EffectiveDays())

	q := s.db.WithContext(ctx).Where("created_at >= ?", since)
	if filter.CardID != "" {
		q = q.Where("card_id = ?", filter.CardID)
	}
	if filter.VariantID != "" {
		q = q.Where("variant_id = ?", filter.VariantID)
	}
	if filter.SourceType != nil {
		q = q.Where("source_type = ?", *filter.SourceType)
	}

	rows := make([]*models.CardPriceHistory, 0)
	if err := q.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	if len(rows) == 0 {
		return nil, &apperrors.ErrNotFound{Entity: "price history"}
	}
	return rows, nil
}

// FetchPriceNow refreshes a single row immediately. Only the scrape source
// supports on-demand refresh; other sources get an unsupported error the
// handler turns into a success-shaped failure payload.
func (s *CardPriceServiceImpl) FetchPriceNow(ctx context.Context, cardID, variantID string, source models.SourceType) (*models.CardPrice, error) {
	if source != models.SourceCardmarket {
		return nil, &apperrors.ErrUnsupportedSource{SourceType: string(source)}
	}

	row, err := s.Get(ctx, cardID, variantID, source)
	if err != nil {
		return nil, err
	}

	normalized, err := s.scraper.FetchItem(ctx, row.SourceLink)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch price: %w", err)
	}

	payload, err := normalized.DataPayload(source)
	if err != nil {
		return nil, fmt.Errorf("failed to build price payload: %w", err)
	}
	price := normalized.FallbackPrice(source)
	now := time.Now().UTC().Truncate(time.Second)

	err = s.db.WithContext(ctx).Model(&models.CardPrice{}).
		Where("card_id = ? AND variant_id = ? AND source_type = ?", cardID, variantID, source).
		Updates(map[string]interface{}{
			"updated_at": now,
			"data":       payload,
			"price":      price,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to store fetched price: %w", err)
	}

	historyRow := &models.CardPriceHistory{
		CardID:     cardID,
		VariantID:  variantID,
		SourceType: source,
		CreatedAt:  now,
		Data:       payload,
		Price:      price,
	}
	if err := s.db.WithContext(ctx).Create(historyRow).Error; err != nil {
		return nil, fmt.Errorf("failed to append price history: %w", err)
	}

	row.UpdatedAt = &now
	row.Data = payload
	row.Price = &price
	return row, nil
}
