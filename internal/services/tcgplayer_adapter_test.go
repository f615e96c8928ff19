package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memBlobStore is an in-memory BlobStore for tests.
type memBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: make(map[string][]byte)}
}

func (s *memBlobStore) Upload(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = data
	return nil
}

func (s *memBlobStore) Download(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", key)
	}
	return data, nil
}

func (s *memBlobStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[key]
	return ok, nil
}

func TestTCGplayerAdapterFetchAll(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/groups":
			fmt.Fprint(w, `{"results":[{"groupId":1,"name":"Spark of Rebellion"},{"groupId":2,"name":"Shadows of the Galaxy"}]}`)
		case "/1/prices":
			fmt.Fprint(w, `{"results":[
				{"productId":101,"lowPrice":1.00,"midPrice":2.50,"subTypeName":"Normal"},
				{"productId":102,"marketPrice":9.75,"subTypeName":"Foil"}
			]}`)
		case "/2/prices":
			fmt.Fprint(w, `{"results":[{"productId":201,"highPrice":4.20}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	blobs := newMemBlobStore()
	adapter := NewTCGplayerAdapter(ts.URL, blobs, zap.NewNop())

	runDate := time.Date(2026, 8, 28, 4, 0, 0, 0, time.UTC)
	merged, err := adapter.FetchAll(context.Background(), runDate)
	require.NoError(t, err)

	require.Len(t, merged, 3)
	assert.True(t, merged["101"].Mid.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, "Foil", merged["102"].SubType)
	assert.True(t, merged["102"].Market.Equal(decimal.RequireFromString("9.75")))
	assert.True(t, merged["201"].High.Equal(decimal.RequireFromString("4.2")))

	// Raw payloads are persisted before normalization.
	for _, key := range []string{
		"tcgplayer/2026-08-28/groups.json",
		"tcgplayer/2026-08-28/group-1.json",
		"tcgplayer/2026-08-28/group-2.json",
	} {
		exists, err := blobs.Exists(context.Background(), key)
		require.NoError(t, err)
		assert.True(t, exists, "expected blob %s", key)
	}
}

func TestTCGplayerAdapterPartialFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/groups":
			fmt.Fprint(w, `{"results":[{"groupId":1,"name":"ok"},{"groupId":2,"name":"broken"}]}`)
		case "/1/prices":
			fmt.Fprint(w, `{"results":[{"productId":101,"lowPrice":1.00}]}`)
		default:
			http.Error(w, "upstream error", http.StatusBadGateway)
		}
	}))
	defer ts.Close()

	adapter := NewTCGplayerAdapter(ts.URL, newMemBlobStore(), zap.NewNop())

	// One group failing is logged and skipped; the merged map reflects the
	// groups that succeeded.
	merged, err := adapter.FetchAll(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.NotNil(t, merged["101"])
}

func TestTCGplayerAdapterGroupIndexFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	adapter := NewTCGplayerAdapter(ts.URL, newMemBlobStore(), zap.NewNop())

	// A failed group index aborts the whole run.
	_, err := adapter.FetchAll(context.Background(), time.Now())
	assert.Error(t, err)
}

var _ BulkFeedAdapter = (*TCGplayerAdapter)(nil)
var _ ScrapeAdapter = (*CardmarketAdapter)(nil)
var _ BlobStore = (*FSBlobStore)(nil)
var _ BlobStore = (*memBlobStore)(nil)
