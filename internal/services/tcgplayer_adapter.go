package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/the-medo/swu-collection-sub005/internal/models"
)

// TCGplayerAdapter ingests a bulk price feed: one group listing plus one
// price file per group. Every raw payload is uploaded to the blob store
// before normalization so a run leaves an inspectable trace even when it
// fails halfway.
type TCGplayerAdapter struct {
	baseURL string
	client  *resty.Client
	blobs   BlobStore
	logger  *zap.Logger
}

func NewTCGplayerAdapter(baseURL string, blobs BlobStore, logger *zap.Logger) *TCGplayerAdapter {
	client := resty.New()
	client.SetTimeout(30 * time.Second)

	return &TCGplayerAdapter{
		baseURL: baseURL,
		client:  client,
		blobs:   blobs,
		logger:  logger,
	}
}

func (a *TCGplayerAdapter) SourceType() models.SourceType { return models.SourceTCGplayer }

type tcgGroup struct {
	GroupID int    `json:"groupId"`
	Name    string `json:"name"`
}

type tcgGroupList struct {
	Results []tcgGroup `json:"results"`
}

type tcgPriceRow struct {
	ProductID      int              `json:"productId"`
	LowPrice       *decimal.Decimal `json:"lowPrice"`
	MidPrice       *decimal.Decimal `json:"midPrice"`
	HighPrice      *decimal.Decimal `json:"highPrice"`
	MarketPrice    *decimal.Decimal `json:"marketPrice"`
	DirectLowPrice *decimal.Decimal `json:"directLowPrice"`
	SubTypeName    string           `json:"subTypeName"`
}

type tcgPriceList struct {
	Results []tcgPriceRow `json:"results"`
}

// FetchAll downloads the group index and each group's prices, merging all
// rows into one normalized map keyed by external product id. A single
// group's failure is logged and skipped; a failed group index aborts the run.
func (a *TCGplayerAdapter) FetchAll(ctx context.Context, runDate time.Time) (models.NormalizedMap, error) {
	day := artifactDay(runDate)

	rawGroups, err := a.fetchRaw(ctx, a.baseURL+"/groups")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch group index: %w", err)
	}
	if err := a.blobs.Upload(ctx, rawGroupIndexKey(a.SourceType(), day), rawGroups); err != nil {
		return nil, fmt.Errorf("failed to store group index: %w", err)
	}

	var groups tcgGroupList
	if err := json.Unmarshal(rawGroups, &groups); err != nil {
		return nil, fmt.Errorf("failed to decode group index: %w", err)
	}

	merged := make(models.NormalizedMap)
	for _, group := range groups.Results {
		// Sequential on purpose: one in-flight request against the provider.
		if err := a.ingestGroup(ctx, day, group, merged); err != nil {
			a.logger.Warn("skipping group after fetch failure",
				zap.Int("group_id", group.GroupID),
				zap.String("group_name", group.Name),
				zap.Error(err))
		}
	}

	return merged, nil
}

func (a *TCGplayerAdapter) ingestGroup(ctx context.Context, day string, group tcgGroup, merged models.NormalizedMap) error {
	raw, err := a.fetchRaw(ctx, fmt.Sprintf("%s/%d/prices", a.baseURL, group.GroupID))
	if err != nil {
		return err
	}
	if err := a.blobs.Upload(ctx, rawGroupKey(a.SourceType(), day, group.GroupID), raw); err != nil {
		return fmt.Errorf("failed to store group payload: %w", err)
	}

	var prices tcgPriceList
	if err := json.Unmarshal(raw, &prices); err != nil {
		return fmt.Errorf("failed to decode group payload: %w", err)
	}

	for _, row := range prices.Results {
		merged[strconv.Itoa(row.ProductID)] = &models.NormalizedPrice{
			Low:       row.LowPrice,
			Mid:       row.MidPrice,
			High:      row.HighPrice,
			Market:    row.MarketPrice,
			DirectLow: row.DirectLowPrice,
			SubType:   row.SubTypeName,
		}
	}

	a.logger.Info("ingested price group",
		zap.Int("group_id", group.GroupID),
		zap.String("group_name", group.Name),
		zap.Int("rows", len(prices.Results)))
	return nil
}

func (a *TCGplayerAdapter) fetchRaw(ctx context.Context, url string) ([]byte, error) {
	resp, err := a.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}
