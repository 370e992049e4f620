package client

import (
	"context"
	"sync"
	"time"

	"github.com/exgen-nl/exgen-api/pkg/dto"
)

// ErrSuperseded is returned when a newer Browse call replaced this one before
// its response arrived. The stale response is discarded, never cached.
var ErrSuperseded = &APIError{Status: 0, Code: "SUPERSEDED", Detail: "request replaced by a newer page fetch"}

const browserCacheTTL = 5 * time.Minute

type browseKey struct {
	Page   int
	Search string
	Filter string
}

type cachedCatalogPage struct {
	page      *CatalogPage
	fetchedAt time.Time
}

type catalogFetcher interface {
	ListProducts(ctx context.Context, query dto.CatalogQuery) (*CatalogPage, error)
}

// Browser paginates the catalog for interactive use. Responses are cached
// per (page, search, filter) and each new fetch cancels the previous
// in-flight one.
type Browser struct {
	api catalogFetcher

	mu         sync.Mutex
	cache      map[browseKey]cachedCatalogPage
	generation uint64
	cancel     context.CancelFunc
}

// NewBrowser wraps a Client for catalog browsing.
func NewBrowser(api catalogFetcher) *Browser {
	return &Browser{api: api, cache: make(map[browseKey]cachedCatalogPage)}
}

// OptimalPageSize picks a page size from scroll behaviour. The first page
// stays small for fast paint; fast scrollers get bigger pages.
func OptimalPageSize(page int, velocityPxPerMs float64) int {
	if page == 1 {
		return 10
	}
	if velocityPxPerMs > 0.5 {
		return 40
	}
	return 25
}

// Browse returns one catalog page, from cache when fresh. A call for a new
// page cancels the previous in-flight request; if this call is itself
// superseded before its response lands, ErrSuperseded is returned and the
// response is dropped.
func (b *Browser) Browse(ctx context.Context, query dto.CatalogQuery) (*CatalogPage, error) {
	key := browseKey{Page: query.Page, Search: query.Search, Filter: query.Filter}

	b.mu.Lock()
	if entry, ok := b.cache[key]; ok && time.Since(entry.fetchedAt) < browserCacheTTL {
		b.mu.Unlock()
		page := *entry.page
		page.Cached = true
		return &page, nil
	}
	if b.cancel != nil {
		b.cancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.generation++
	gen := b.generation
	b.mu.Unlock()

	page, err := b.api.ListProducts(fetchCtx, query)

	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.generation {
		return nil, ErrSuperseded
	}
	b.cancel = nil
	cancel()
	if err != nil {
		return nil, err
	}
	b.cache[key] = cachedCatalogPage{page: page, fetchedAt: time.Now()}
	return page, nil
}

// Invalidate drops all cached pages, e.g. after a purchase.
func (b *Browser) Invalidate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache = make(map[browseKey]cachedCatalogPage)
}
