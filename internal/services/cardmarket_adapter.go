package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/the-medo/swu-collection-sub005/internal/models"
)

// CardmarketAdapter scrapes a single marketplace product page into the
// normalized price shape. Failures are terminal for the one item only; a
// caller processing many items continues with the rest.
type CardmarketAdapter struct {
	client *resty.Client
	logger *zap.Logger
}

func NewCardmarketAdapter(logger *zap.Logger) *CardmarketAdapter {
	client := resty.New()
	client.SetTimeout(20 * time.Second)
	client.SetHeader("User-Agent", "Mozilla/5.0 (compatible; swu-collection/1.0)")

	return &CardmarketAdapter{client: client, logger: logger}
}

var (
	// Labeled <dt>/<dd> pairs from the product info list. Values may be
	// wrapped in a span.
	cmAvailableRe = labeledValueRe("Available items")
	cmFromRe      = labeledValueRe("From")
	cmTrendRe     = labeledValueRe("Price Trend")
	cmAvg30Re     = labeledValueRe("30-days average price")
	cmAvg7Re      = labeledValueRe("7-days average price")
	cmAvg1Re      = labeledValueRe("1-day average price")

	cmArticleRowRe = regexp.MustCompile(`class="[^"]*article-row[^"]*"`)
	cmPriceRe      = regexp.MustCompile(`([0-9][0-9.,]*)\s*€`)
	cmCountRe      = regexp.MustCompile(`class="[^"]*item-count[^"]*"[^>]*>\s*([0-9]+)`)
)

func labeledValueRe(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?s)<dt[^>]*>` + regexp.QuoteMeta(label) + `</dt>\s*<dd[^>]*>\s*(?:<span[^>]*>)?\s*([^<]+)`)
}

func (a *CardmarketAdapter) FetchItem(ctx context.Context, sourceLink string) (*models.NormalizedPrice, error) {
	if sourceLink == "" {
		return nil, fmt.Errorf("source link is empty")
	}

	resp, err := a.client.R().SetContext(ctx).Get(sourceLink)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("page returned status %d", resp.StatusCode())
	}

	data, err := parseCardmarketPage(resp.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	return &models.NormalizedPrice{Scrape: data}, nil
}

// parseCardmarketPage extracts the info list and up to the first three
// listing rows. Absent or unparsable fields default to zero.
func parseCardmarketPage(html string) (*models.CardmarketData, error) {
	if !cmArticleRowRe.MatchString(html) && !cmAvailableRe.MatchString(html) {
		return nil, fmt.Errorf("page has no recognizable price content")
	}

	data := &models.CardmarketData{
		AvailableItems: parseIntField(html, cmAvailableRe),
		FromPrice:      parseEuroField(html, cmFromRe),
		PriceTrend:     parseEuroField(html, cmTrendRe),
		Avg1:           parseEuroField(html, cmAvg1Re),
		Avg7:           parseEuroField(html, cmAvg7Re),
		Avg30:          parseEuroField(html, cmAvg30Re),
	}

	// Listing rows follow the info list; split on the row marker and read the
	// first price and amount of each segment.
	segments := cmArticleRowRe.Split(html, -1)
	for i := 1; i < len(segments) && len(data.Listings) < 3; i++ {
		seg := segments[i]
		priceMatch := cmPriceRe.FindStringSubmatch(seg)
		if priceMatch == nil {
			continue
		}
		listing := models.CardmarketListing{
			Price:    parseEuro(priceMatch[1]),
			Quantity: 1,
		}
		if countMatch := cmCountRe.FindStringSubmatch(seg); countMatch != nil {
			if n, err := strconv.Atoi(countMatch[1]); err == nil {
				listing.Quantity = n
			}
		}
		data.Listings = append(data.Listings, listing)
	}

	if err := data.Validate(); err != nil {
		return nil, err
	}
	return data, nil
}

func parseIntField(html string, re *regexp.Regexp) int {
	m := re.FindStringSubmatch(html)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(m[1]))
	if err != nil {
		return 0
	}
	return n
}

func parseEuroField(html string, re *regexp.Regexp) decimal.Decimal {
	m := re.FindStringSubmatch(html)
	if m == nil {
		return decimal.Zero
	}
	return parseEuro(m[1])
}

// parseEuro parses a monetary string in the source locale: dot as thousands
// separator, comma as decimal separator ("1.234,56 €"). Unparsable input
// yields zero.
func parseEuro(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "€")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
