package client

import (
	"github.com/the-medo/swu-collection-sub005/internal/models"
)

// EntityKind names the entity a price mutation belongs to.
type EntityKind string

const (
	EntityDeck       EntityKind = "deck"
	EntityCollection EntityKind = "collection"
)

// PriceUpdate is the result of a price-affecting mutation: the entity it
// belongs to and the refreshed price rows.
type PriceUpdate struct {
	Kind     EntityKind
	EntityID string
	Prices   []models.CardPrice
}

// ViewUpdater patches the materialized views it owns after a price mutation.
// Apply returns how many views were patched; views that do not match the
// update's entity id must be left untouched so downstream consumers can rely
// on referential equality.
type ViewUpdater interface {
	Kind() EntityKind
	Apply(update *PriceUpdate) int
}

// Propagator fans a price mutation out to every registered view updater. No
// view is ever invalidated or refetched: every update is an in-place patch.
type Propagator struct {
	updaters []ViewUpdater
}

func NewPropagator(updaters ...ViewUpdater) *Propagator {
	return &Propagator{updaters: updaters}
}

func (p *Propagator) Register(u ViewUpdater) {
	p.updaters = append(p.updaters, u)
}

// Apply patches every registered view matching the update's entity kind and
// id, returning the total number of patched views.
func (p *Propagator) Apply(update *PriceUpdate) int {
	if update == nil || update.Kind == "" {
		return 0
	}
	patched := 0
	for _, u := range p.updaters {
		if u.Kind() != update.Kind {
			continue
		}
		patched += u.Apply(update)
	}
	return patched
}

// MergePrices merges incoming price rows into an existing embedded list:
// rows for source types present in the incoming set are replaced, rows for
// other source types are preserved. Used for collection views, where one
// update may cover only a subset of a card's sources.
func MergePrices(existing, incoming []models.CardPrice) []models.CardPrice {
	replaced := make(map[models.SourceType]bool, len(incoming))
	for _, p := range incoming {
		replaced[p.SourceType] = true
	}

	merged := make([]models.CardPrice, 0, len(existing)+len(incoming))
	for _, p := range existing {
		if !replaced[p.SourceType] {
			merged = append(merged, p)
		}
	}
	return append(merged, incoming...)
}
