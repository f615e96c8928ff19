package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/the-medo/swu-collection-sub005/internal/errors"
	"github.com/the-medo/swu-collection-sub005/internal/models"
)

type stubScraper struct {
	result   *models.NormalizedPrice
	err      error
	lastLink string
}

func (s *stubScraper) FetchItem(ctx context.Context, sourceLink string) (*models.NormalizedPrice, error) {
	s.lastLink = sourceLink
	return s.result, s.err
}

func newTestPriceService(t *testing.T, scraper ScrapeAdapter) CardPriceService {
	t.Helper()
	return NewCardPriceService(setupPriceDB(t), scraper, zap.NewNop())
}

func TestCreateSourcePreservesDerivedColumns(t *testing.T) {
	database := setupPriceDB(t)
	svc := NewCardPriceService(database, &stubScraper{}, zap.NewNop())
	ctx := context.Background()

	row, err := svc.CreateSource(ctx, &models.CardPrice{
		CardID:     "c1",
		VariantID:  "v1",
		SourceType: models.SourceTCGplayer,
		SourceLink: "https://example.com/v1",
	})
	require.NoError(t, err)
	assert.Nil(t, row.Price)

	// Simulate an ingestion run filling the derived columns.
	now := time.Now().UTC().Truncate(time.Second)
	price := decimal.RequireFromString("2.50")
	require.NoError(t, database.Model(&models.CardPrice{}).
		Where("variant_id = ?", "v1").
		Updates(map[string]interface{}{
			"updated_at": now,
			"data":       []byte(`{"subType":"Normal"}`),
			"price":      price,
		}).Error)

	// Re-registering only rewrites the configuration columns.
	row, err = svc.CreateSource(ctx, &models.CardPrice{
		CardID:          "c1",
		VariantID:       "v1",
		SourceType:      models.SourceTCGplayer,
		SourceLink:      "https://example.com/v1-moved",
		SourceProductID: strptr("101"),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/v1-moved", row.SourceLink)
	require.NotNil(t, row.SourceProductID)
	assert.Equal(t, "101", *row.SourceProductID)
	require.NotNil(t, row.Price)
	assert.True(t, row.Price.Equal(price))
}

func TestCreateSourceValidation(t *testing.T) {
	svc := newTestPriceService(t, &stubScraper{})

	_, err := svc.CreateSource(context.Background(), &models.CardPrice{
		CardID:     "c1",
		VariantID:  "v1",
		SourceType: "ebay",
	})
	var validation *apperrors.ErrValidation
	assert.True(t, errors.As(err, &validation))
}

func TestGetAndDelete(t *testing.T) {
	svc := newTestPriceService(t, &stubScraper{})
	ctx := context.Background()

	_, err := svc.CreateSource(ctx, &models.CardPrice{
		CardID:     "c1",
		VariantID:  "v1",
		SourceType: models.SourceCardmarket,
		SourceLink: "https://example.com/v1",
	})
	require.NoError(t, err)

	row, err := svc.Get(ctx, "c1", "v1", models.SourceCardmarket)
	require.NoError(t, err)
	assert.Equal(t, "c1", row.CardID)

	var notFound *apperrors.ErrNotFound
	_, err = svc.Get(ctx, "c1", "v1", models.SourceTCGplayer)
	assert.True(t, errors.As(err, &notFound))

	require.NoError(t, svc.Delete(ctx, "c1", "v1", models.SourceCardmarket))
	err = svc.Delete(ctx, "c1", "v1", models.SourceCardmarket)
	assert.True(t, errors.As(err, &notFound))
}

func TestBulkLoadMissingIDsAbsent(t *testing.T) {
	svc := newTestPriceService(t, &stubScraper{})
	ctx := context.Background()

	for _, variantID := range []string{"v1", "v2"} {
		_, err := svc.CreateSource(ctx, &models.CardPrice{
			CardID:     "c-" + variantID,
			VariantID:  variantID,
			SourceType: models.SourceTCGplayer,
			SourceLink: "https://example.com/" + variantID,
		})
		require.NoError(t, err)
	}

	rows, err := svc.BulkLoad(ctx, models.SourceTCGplayer, []string{"v1", "v2", "v404"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	// Empty input short-circuits to an empty result, not an error.
	rows, err = svc.BulkLoad(ctx, models.SourceTCGplayer, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = svc.BulkLoad(ctx, "ebay", []string{"v1"})
	var validation *apperrors.ErrValidation
	assert.True(t, errors.As(err, &validation))
}

func TestHistoryFiltering(t *testing.T) {
	database := setupPriceDB(t)
	svc := NewCardPriceService(database, &stubScraper{}, zap.NewNop())
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	rows := []*models.CardPriceHistory{
		{CardID: "c1", VariantID: "v1", SourceType: models.SourceTCGplayer, CreatedAt: now.AddDate(0, 0, -2), Data: []byte(`{}`), Price: decimal.RequireFromString("1.00")},
		{CardID: "c1", VariantID: "v1", SourceType: models.SourceTCGplayer, CreatedAt: now.AddDate(0, 0, -1), Data: []byte(`{}`), Price: decimal.RequireFromString("2.00")},
		{CardID: "c1", VariantID: "v1", SourceType: models.SourceCardmarket, CreatedAt: now.AddDate(0, 0, -1), Data: []byte(`{}`), Price: decimal.RequireFromString("0.35")},
		{CardID: "c1", VariantID: "v1", SourceType: models.SourceTCGplayer, CreatedAt: now.AddDate(0, 0, -45), Data: []byte(`{}`), Price: decimal.RequireFromString("9.00")},
	}
	require.NoError(t, database.Create(rows).Error)

	st := models.SourceTCGplayer
	got, err := svc.History(ctx, &models.CardPriceHistoryFilter{VariantID: "v1", SourceType: &st})
	require.NoError(t, err)
	// Default window is 30 days, so the 45-day-old row is excluded.
	require.Len(t, got, 2)
	// Oldest first.
	assert.True(t, got[0].Price.Equal(decimal.RequireFromString("1.00")))
	assert.True(t, got[1].Price.Equal(decimal.RequireFromString("2.00")))

	got, err = svc.History(ctx, &models.CardPriceHistoryFilter{VariantID: "v1", Days: 60})
	require.NoError(t, err)
	assert.Len(t, got, 4)

	_, err = svc.History(ctx, &models.CardPriceHistoryFilter{Days: 7})
	var validation *apperrors.ErrValidation
	assert.True(t, errors.As(err, &validation))

	// No matching rows is a typed not-found, not an empty list.
	var notFound *apperrors.ErrNotFound
	_, err = svc.History(ctx, &models.CardPriceHistoryFilter{VariantID: "v-none"})
	assert.True(t, errors.As(err, &notFound))
}

func TestFetchPriceNow(t *testing.T) {
	database := setupPriceDB(t)
	scraper := &stubScraper{
		result: &models.NormalizedPrice{Scrape: &models.CardmarketData{
			AvailableItems: 12,
			Avg1:           decimal.RequireFromString("0.42"),
			Listings: []models.CardmarketListing{
				{Price: decimal.RequireFromString("0.25"), Quantity: 3},
			},
		}},
	}
	svc := NewCardPriceService(database, scraper, zap.NewNop())
	ctx := context.Background()

	_, err := svc.CreateSource(ctx, &models.CardPrice{
		CardID:     "c1",
		VariantID:  "v1",
		SourceType: models.SourceCardmarket,
		SourceLink: "https://example.com/v1",
	})
	require.NoError(t, err)

	row, err := svc.FetchPriceNow(ctx, "c1", "v1", models.SourceCardmarket)
	require.NoError(t, err)
	require.NotNil(t, row.Price)
	// Cheapest listing wins over the 1-day average.
	assert.True(t, row.Price.Equal(decimal.RequireFromString("0.25")))
	assert.Equal(t, "https://example.com/v1", scraper.lastLink)

	var historyCount int64
	require.NoError(t, database.Model(&models.CardPriceHistory{}).Count(&historyCount).Error)
	assert.EqualValues(t, 1, historyCount)
}

func TestFetchPriceNowErrors(t *testing.T) {
	svc := newTestPriceService(t, &stubScraper{err: errors.New("scrape failed")})
	ctx := context.Background()

	var unsupported *apperrors.ErrUnsupportedSource
	_, err := svc.FetchPriceNow(ctx, "c1", "v1", models.SourceTCGplayer)
	assert.True(t, errors.As(err, &unsupported))

	var notFound *apperrors.ErrNotFound
	_, err = svc.FetchPriceNow(ctx, "c1", "v1", models.SourceCardmarket)
	assert.True(t, errors.As(err, &notFound))
}
