package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// CardPrice is the current known price for one (card, variant, source) triple.
//
// SourceLink and SourceProductID are admin-managed configuration; UpdatedAt,
// Data and Price are derived by ingestion and are all-or-nothing: all null
// until the first successful fetch, then always populated together.
type CardPrice struct {
	CardID     string     `json:"card_id" gorm:"primaryKey;column:card_id;type:varchar(64)"`
	VariantID  string     `json:"variant_id" gorm:"primaryKey;column:variant_id;type:varchar(64)"`
	SourceType SourceType `json:"source_type" gorm:"primaryKey;column:source_type;type:varchar(20)"`

	SourceLink      string  `json:"source_link" gorm:"column:source_link;type:text;not null"`
	SourceProductID *string `json:"source_product_id,omitempty" gorm:"column:source_product_id;type:varchar(64)"`

	UpdatedAt *time.Time       `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime:false"`
	Data      json.RawMessage  `json:"data,omitempty" gorm:"column:data;type:jsonb"`
	Price     *decimal.Decimal `json:"price,omitempty" gorm:"column:price;type:decimal(12,2)"`
}

func (CardPrice) TableName() string { return "card_prices" }

// Key returns the composite client-side cache key for this row.
func (p *CardPrice) Key() string {
	return PriceKey(p.VariantID, p.SourceType)
}

func (p *CardPrice) Validate() error {
	if p.CardID == "" {
		return errors.New("card_id is required")
	}
	if p.VariantID == "" {
		return errors.New("variant_id is required")
	}
	if !p.SourceType.Valid() {
		return errors.New("source_type is invalid")
	}
	// Derived columns move together.
	populated := p.UpdatedAt != nil
	if (p.Price != nil) != populated || (len(p.Data) > 0) != populated {
		return errors.New("updated_at, data and price must be set together")
	}
	return nil
}

// CardPriceHistory is one appended snapshot of a computed price. Rows are
// never updated or deleted; the table is a time series, not deduplicated, so
// identity is a surrogate id rather than the (identity, created_at) tuple.
type CardPriceHistory struct {
	ID         int64      `json:"id" gorm:"primaryKey;column:id;autoIncrement"`
	CardID     string     `json:"card_id" gorm:"column:card_id;type:varchar(64);not null;index:idx_price_history_identity"`
	VariantID  string     `json:"variant_id" gorm:"column:variant_id;type:varchar(64);not null;index:idx_price_history_identity"`
	SourceType SourceType `json:"source_type" gorm:"column:source_type;type:varchar(20);not null;index:idx_price_history_identity"`
	CreatedAt  time.Time  `json:"created_at" gorm:"column:created_at;not null"`

	Data  json.RawMessage `json:"data" gorm:"column:data;type:jsonb;not null"`
	Price decimal.Decimal `json:"price" gorm:"column:price;type:decimal(12,2);not null"`
}

func (CardPriceHistory) TableName() string { return "card_price_history" }

// CardPriceHistoryFilter narrows a history query. At least one of CardID and
// VariantID must be set; Days is clamped to 1..60 with a default of 30.
type CardPriceHistoryFilter struct {
	CardID     string
	VariantID  string
	SourceType *SourceType
	Days       int
}

const (
	HistoryDaysDefault = 30
	HistoryDaysMax     = 60
)

func (f *CardPriceHistoryFilter) Validate() error {
	if f.CardID == "" && f.VariantID == "" {
		return errors.New("card_id or variant_id is required")
	}
	if f.SourceType != nil && !f.SourceType.Valid() {
		return errors.New("source_type is invalid")
	}
	if f.Days < 0 || f.Days > HistoryDaysMax {
		return errors.New("days must be between 1 and 60")
	}
	return nil
}

// EffectiveDays applies the default window.
func (f *CardPriceHistoryFilter) EffectiveDays() int {
	if f.Days == 0 {
		return HistoryDaysDefault
	}
	return f.Days
}
