package models

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// NormalizedPrice is the common shape every source adapter produces, keyed by
// the external product id. Bulk feeds populate the scalar fields; the scrape
// adapter populates Scrape with the full page extract.
type NormalizedPrice struct {
	Low       *decimal.Decimal `json:"low,omitempty"`
	Mid       *decimal.Decimal `json:"mid,omitempty"`
	High      *decimal.Decimal `json:"high,omitempty"`
	Market    *decimal.Decimal `json:"market,omitempty"`
	DirectLow *decimal.Decimal `json:"directLow,omitempty"`
	SubType   string           `json:"subType,omitempty"`

	Scrape *CardmarketData `json:"scrape,omitempty"`
}

// NormalizedMap is one ingestion run's merged output: external product id to
// normalized price fields.
type NormalizedMap map[string]*NormalizedPrice

// FallbackPrice computes the single canonical price for a source via its
// fallback priority chain. First non-null wins; everything absent yields zero.
func (n *NormalizedPrice) FallbackPrice(source SourceType) decimal.Decimal {
	switch source {
	case SourceCardmarket:
		if n.Scrape != nil {
			if len(n.Scrape.Listings) > 0 {
				return n.Scrape.Listings[0].Price
			}
			if !n.Scrape.Avg1.IsZero() {
				return n.Scrape.Avg1
			}
		}
		return decimal.Zero
	default:
		for _, v := range []*decimal.Decimal{n.Market, n.Mid, n.Low, n.High, n.DirectLow} {
			if v != nil {
				return *v
			}
		}
		return decimal.Zero
	}
}

// DataPayload builds the opaque data blob persisted alongside the canonical
// price. The full normalized fields are kept so history preserves detail
// beyond the single indexed scalar.
func (n *NormalizedPrice) DataPayload(source SourceType) (json.RawMessage, error) {
	switch source {
	case SourceCardmarket:
		if n.Scrape == nil {
			return nil, errors.New("cardmarket payload missing scrape data")
		}
		return json.Marshal(n.Scrape)
	case SourceTCGplayer, SourceInternal:
		return json.Marshal(TcgplayerData{
			Low:       n.Low,
			Mid:       n.Mid,
			High:      n.High,
			Market:    n.Market,
			DirectLow: n.DirectLow,
			SubType:   n.SubType,
		})
	default:
		return nil, fmt.Errorf("unknown source type: %q", source)
	}
}

// CardmarketListing is one individual listing row from the scraped page,
// seller-agnostic.
type CardmarketListing struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// CardmarketData is the scrape adapter's page extract.
type CardmarketData struct {
	AvailableItems int                 `json:"availableItems"`
	FromPrice      decimal.Decimal     `json:"fromPrice"`
	PriceTrend     decimal.Decimal     `json:"priceTrend"`
	Avg1           decimal.Decimal     `json:"avg1"`
	Avg7           decimal.Decimal     `json:"avg7"`
	Avg30          decimal.Decimal     `json:"avg30"`
	Listings       []CardmarketListing `json:"listings,omitempty"`
}

func (d *CardmarketData) Validate() error {
	if d.AvailableItems < 0 {
		return errors.New("availableItems must not be negative")
	}
	if len(d.Listings) > 3 {
		return errors.New("at most three listings are kept")
	}
	for _, l := range d.Listings {
		if l.Price.IsNegative() || l.Quantity < 0 {
			return errors.New("listing price and quantity must not be negative")
		}
	}
	return nil
}

// TcgplayerData is the bulk feed's per-product price row as persisted into the
// data column.
type TcgplayerData struct {
	Low       *decimal.Decimal `json:"low,omitempty"`
	Mid       *decimal.Decimal `json:"mid,omitempty"`
	High      *decimal.Decimal `json:"high,omitempty"`
	Market    *decimal.Decimal `json:"market,omitempty"`
	DirectLow *decimal.Decimal `json:"directLow,omitempty"`
	SubType   string           `json:"subType,omitempty"`
}
