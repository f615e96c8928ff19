package client

import (
	"github.com/the-medo/swu-collection-sub005/internal/models"
)

// Derived views already materialized on the client. Each updater holds the
// views of one shape and knows how to patch them in place.

// DeckDetailView is one open deck with its embedded price list.
type DeckDetailView struct {
	DeckID string
	Prices []models.CardPrice
}

// DeckDetailViews patches single deck-detail views by replacing the embedded
// price list wholesale: a deck mutation always carries the deck's full set.
type DeckDetailViews struct {
	views map[string]*DeckDetailView
}

func NewDeckDetailViews() *DeckDetailViews {
	return &DeckDetailViews{views: make(map[string]*DeckDetailView)}
}

func (v *DeckDetailViews) Kind() EntityKind { return EntityDeck }

func (v *DeckDetailViews) Set(view *DeckDetailView) { v.views[view.DeckID] = view }

func (v *DeckDetailViews) Get(deckID string) *DeckDetailView { return v.views[deckID] }

func (v *DeckDetailViews) Apply(update *PriceUpdate) int {
	view, ok := v.views[update.EntityID]
	if !ok {
		return 0
	}
	view.Prices = update.Prices
	return 1
}

// DeckListEntry is one deck inside a paginated deck listing.
type DeckListEntry struct {
	DeckID string
	Prices []models.CardPrice
}

// DeckListPage is one cached page of a deck listing.
type DeckListPage struct {
	Entries []*DeckListEntry
}

// DeckListViews scans every cached page and patches only the entries whose
// deck id matches, leaving sibling entries and pagination untouched.
type DeckListViews struct {
	pages []*DeckListPage
}

func NewDeckListViews() *DeckListViews { return &DeckListViews{} }

func (v *DeckListViews) Kind() EntityKind { return EntityDeck }

func (v *DeckListViews) AddPage(page *DeckListPage) { v.pages = append(v.pages, page) }

func (v *DeckListViews) Apply(update *PriceUpdate) int {
	patched := 0
	for _, page := range v.pages {
		for _, entry := range page.Entries {
			if entry.DeckID != update.EntityID {
				continue
			}
			entry.Prices = update.Prices
			patched++
		}
	}
	return patched
}

// CollectionDetailView is one open collection with its embedded price list.
type CollectionDetailView struct {
	CollectionID string
	Prices       []models.CardPrice
}

// CollectionDetailViews patches collection-detail views by merging: an
// update may cover only some source types, and rows for the others must
// survive.
type CollectionDetailViews struct {
	views map[string]*CollectionDetailView
}

func NewCollectionDetailViews() *CollectionDetailViews {
	return &CollectionDetailViews{views: make(map[string]*CollectionDetailView)}
}

func (v *CollectionDetailViews) Kind() EntityKind { return EntityCollection }

func (v *CollectionDetailViews) Set(view *CollectionDetailView) {
	v.views[view.CollectionID] = view
}

func (v *CollectionDetailViews) Get(collectionID string) *CollectionDetailView {
	return v.views[collectionID]
}

func (v *CollectionDetailViews) Apply(update *PriceUpdate) int {
	view, ok := v.views[update.EntityID]
	if !ok {
		return 0
	}
	view.Prices = MergePrices(view.Prices, update.Prices)
	return 1
}

// CollectionListEntry is one collection inside a cached listing page.
type CollectionListEntry struct {
	CollectionID string
	Prices       []models.CardPrice
}

// CollectionListPage is one cached page of a public or per-user collection
// listing, keyed by its listing key.
type CollectionListPage struct {
	Entries []*CollectionListEntry
}

// CollectionListViews holds listing pages by listing key and applies the
// same merge as the detail view to every matching entry.
type CollectionListViews struct {
	pages map[string]*CollectionListPage
}

func NewCollectionListViews() *CollectionListViews {
	return &CollectionListViews{pages: make(map[string]*CollectionListPage)}
}

func (v *CollectionListViews) Kind() EntityKind { return EntityCollection }

func (v *CollectionListViews) SetPage(listingKey string, page *CollectionListPage) {
	v.pages[listingKey] = page
}

func (v *CollectionListViews) Page(listingKey string) *CollectionListPage {
	return v.pages[listingKey]
}

func (v *CollectionListViews) Apply(update *PriceUpdate) int {
	patched := 0
	for _, page := range v.pages {
		for _, entry := range page.Entries {
			if entry.CollectionID != update.EntityID {
				continue
			}
			entry.Prices = MergePrices(entry.Prices, update.Prices)
			patched++
		}
	}
	return patched
}
