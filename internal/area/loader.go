package area

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Source fetches the taxonomy from upstream.
type Source interface {
	FetchAreas(ctx context.Context) (Taxonomy, error)
}

// Cache persists the taxonomy between runs.
type Cache interface {
	CountCenters(ctx context.Context) (int64, error)
	SaveTaxonomy(ctx context.Context, t Taxonomy) error
	LoadTaxonomy(ctx context.Context) (Taxonomy, error)
}

// Loader fills the cache from upstream on first use and serves the
// taxonomy from the cache afterwards.
type Loader struct {
	cache  Cache
	source Source
	logger *zap.SugaredLogger
}

// NewLoader creates a Loader.
func NewLoader(cache Cache, source Source, logger *zap.SugaredLogger) *Loader {
	return &Loader{cache: cache, source: source, logger: logger}
}

// Load returns the taxonomy, fetching and caching it when the cache is empty.
func (l *Loader) Load(ctx context.Context) (Taxonomy, error) {
	n, err := l.cache.CountCenters(ctx)
	if err != nil {
		return Taxonomy{}, fmt.Errorf("count cached centers: %w", err)
	}

	if n == 0 {
		l.logger.Info("area cache is empty; fetching area.json")
		t, err := l.source.FetchAreas(ctx)
		if err != nil {
			return Taxonomy{}, fmt.Errorf("fetch areas: %w", err)
		}
		if err := l.cache.SaveTaxonomy(ctx, t); err != nil {
			return Taxonomy{}, fmt.Errorf("save areas: %w", err)
		}
		l.logger.Infow("area cache filled", "centers", len(t.Centers), "offices", len(t.Offices))
	}

	t, err := l.cache.LoadTaxonomy(ctx)
	if err != nil {
		return Taxonomy{}, fmt.Errorf("load cached areas: %w", err)
	}
	return t, nil
}

// MemoryCache keeps the taxonomy in process.
type MemoryCache struct {
	mu sync.RWMutex
	t  *Taxonomy
}

func (c *MemoryCache) CountCenters(_ context.Context) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.t == nil {
		return 0, nil
	}
	return int64(len(c.t.Centers)), nil
}

func (c *MemoryCache) SaveTaxonomy(_ context.Context, t Taxonomy) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = &t
	return nil
}

func (c *MemoryCache) LoadTaxonomy(_ context.Context) (Taxonomy, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.t == nil {
		return New(nil, nil), nil
	}
	return *c.t, nil
}
