package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/the-medo/swu-collection-sub005/internal/models"
	"github.com/the-medo/swu-collection-sub005/internal/retry"
)

func fastRetry() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = 2
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	return cfg
}

func newTestLoader(t *testing.T, baseURL string) (*BatchLoader, *PriceCache) {
	t.Helper()
	cache := NewPriceCache(openTestStore(t))
	loader := NewBatchLoader(baseURL, cache, zap.NewNop())
	loader.retryCfg = fastRetry()
	return loader, cache
}

func bulkLoadHandler(t *testing.T, prices map[models.SourceType][]models.CardPrice) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/card-prices/bulk-load", r.URL.Path)

		var req bulkLoadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		requested := make(map[string]bool, len(req.VariantIDs))
		for _, id := range req.VariantIDs {
			requested[id] = true
		}
		found := make([]models.CardPrice, 0)
		for _, row := range prices[req.SourceType] {
			if requested[row.VariantID] {
				found = append(found, row)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(bulkLoadResponse{Success: true, Data: found})
	}
}

func serverPrice(cardID, variantID string, source models.SourceType, price string) models.CardPrice {
	p := decimal.RequireFromString(price)
	updated := time.Date(2026, 8, 28, 3, 0, 0, 0, time.UTC)
	return models.CardPrice{
		CardID:     cardID,
		VariantID:  variantID,
		SourceType: source,
		SourceLink: "https://example.com/" + variantID,
		UpdatedAt:  &updated,
		Data:       []byte(`{"subType":"Normal"}`),
		Price:      &p,
	}
}

func TestBatchLoaderDrainQueue(t *testing.T) {
	ts := httptest.NewServer(bulkLoadHandler(t, map[models.SourceType][]models.CardPrice{
		models.SourceTCGplayer:  {serverPrice("c1", "v1", models.SourceTCGplayer, "2.50")},
		models.SourceCardmarket: {serverPrice("c2", "v2", models.SourceCardmarket, "0.35")},
	}))
	defer ts.Close()

	loader, cache := newTestLoader(t, ts.URL)

	// Three misses: two resolvable, one the server has never heard of.
	for _, miss := range []struct {
		cardID, variantID string
		source            models.SourceType
	}{
		{"c1", "v1", models.SourceTCGplayer},
		{"c2", "v2", models.SourceCardmarket},
		{"c3", "v3", models.SourceTCGplayer},
	} {
		_, err := cache.Get(miss.cardID, miss.variantID, miss.source)
		require.NoError(t, err)
	}

	require.NoError(t, loader.DrainQueue(context.Background()))

	n, err := cache.QueueLen()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	entry, err := cache.Get("c1", "v1", models.SourceTCGplayer)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.Price.Equal(decimal.RequireFromString("2.50")))
	assert.Equal(t, "c1", entry.CardID)

	// The absent id gets a placeholder: present, checked, no price.
	placeholder, err := cache.Get("c3", "v3", models.SourceTCGplayer)
	require.NoError(t, err)
	require.NotNil(t, placeholder)
	assert.Nil(t, placeholder.Price)
	assert.NotNil(t, placeholder.UpdatedAt)

	n, err = cache.QueueLen()
	require.NoError(t, err)
	assert.Equal(t, 0, n, "placeholder hits must not re-enqueue")
}

func TestLoadKeysDropsUnknownSources(t *testing.T) {
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		bulkLoadHandler(t, map[models.SourceType][]models.CardPrice{
			models.SourceCardmarket: {serverPrice("c1", "v1", models.SourceCardmarket, "0.35")},
		})(w, r)
	}))
	defer ts.Close()

	loader, cache := newTestLoader(t, ts.URL)

	err := loader.LoadKeys(context.Background(), []string{"v1|cardmarket", "v2|unknownsource"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, requests.Load(), "unknown source must not produce a request")

	entry, err := cache.Get("c1", "v1", models.SourceCardmarket)
	require.NoError(t, err)
	require.NotNil(t, entry)
}

func TestLoadKeysGroupFailureIsIsolated(t *testing.T) {
	var tcgAttempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req bulkLoadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.SourceType == models.SourceTCGplayer {
			tcgAttempts.Add(1)
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(bulkLoadResponse{
			Success: true,
			Data:    []models.CardPrice{serverPrice("c1", "v1", models.SourceCardmarket, "0.35")},
		})
	}))
	defer ts.Close()

	loader, cache := newTestLoader(t, ts.URL)

	err := loader.LoadKeys(context.Background(), []string{"v1|cardmarket", "v2|tcgplayer"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tcgplayer")

	// A 404 is terminal: no retries.
	assert.EqualValues(t, 1, tcgAttempts.Load())

	// The healthy group still landed in the cache.
	entry, getErr := cache.Get("c1", "v1", models.SourceCardmarket)
	require.NoError(t, getErr)
	require.NotNil(t, entry)
	assert.True(t, entry.Price.Equal(decimal.RequireFromString("0.35")))
}

func TestLoadKeysRetriesTransientErrors(t *testing.T) {
	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		var req bulkLoadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(bulkLoadResponse{
			Success: true,
			Data:    []models.CardPrice{serverPrice("c1", "v1", models.SourceTCGplayer, "2.50")},
		})
	}))
	defer ts.Close()

	loader, cache := newTestLoader(t, ts.URL)

	require.NoError(t, loader.LoadKeys(context.Background(), []string{"v1|tcgplayer"}))
	assert.EqualValues(t, 2, attempts.Load())

	entry, err := cache.Get("c1", "v1", models.SourceTCGplayer)
	require.NoError(t, err)
	require.NotNil(t, entry)
}
