package models

import (
	"fmt"
	"strings"
)

// SourceType identifies one external price provider.
type SourceType string

const (
	SourceCardmarket SourceType = "cardmarket"
	SourceTCGplayer  SourceType = "tcgplayer"
	SourceInternal   SourceType = "internal"
)

// AllSourceTypes lists every recognized source type.
func AllSourceTypes() []SourceType {
	return []SourceType{SourceCardmarket, SourceTCGplayer, SourceInternal}
}

// Valid reports whether the source type is one of the recognized providers.
func (s SourceType) Valid() bool {
	switch s {
	case SourceCardmarket, SourceTCGplayer, SourceInternal:
		return true
	}
	return false
}

// ParseSourceType parses a string into a SourceType.
func ParseSourceType(s string) (SourceType, error) {
	st := SourceType(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown source type: %q", s)
	}
	return st, nil
}

// PriceKey encodes a (variantId, sourceType) pair as "variantId|sourceType".
// Clients use this composite form so one request key carries the source type.
func PriceKey(variantID string, source SourceType) string {
	return variantID + "|" + string(source)
}

// SplitPriceKey parses a composite "variantId|sourceType" key. ok is false
// when the key is malformed or names an unrecognized source type.
func SplitPriceKey(key string) (variantID string, source SourceType, ok bool) {
	idx := strings.LastIndex(key, "|")
	if idx <= 0 || idx == len(key)-1 {
		return "", "", false
	}
	source = SourceType(key[idx+1:])
	if !source.Valid() {
		return "", "", false
	}
	return key[:idx], source, true
}

// GroupVariantIDsBySource partitions composite price keys into per-source
// variant id groups. Keys with an unrecognized source type are dropped:
// "not applicable" rather than an error.
func GroupVariantIDsBySource(keys []string) map[SourceType][]string {
	groups := make(map[SourceType][]string)
	for _, key := range keys {
		variantID, source, ok := SplitPriceKey(key)
		if !ok {
			continue
		}
		groups[source] = append(groups[source], variantID)
	}
	return groups
}
