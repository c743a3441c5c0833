package titleindex

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"factseeker/internal/logger"
	"factseeker/internal/vectorstore"
)

// ArticleCache is the warming target; satisfied by articleindex.Cache.
type ArticleCache interface {
	Get(ctx context.Context, url string) (*vectorstore.Index, error)
}

// Prewarmer walks the title partitions and materializes the article index
// for every URL they reference, so the first real request after a partition
// refresh does not pay the crawl cost.
type Prewarmer struct {
	registry    *Registry
	cache       ArticleCache
	concurrency int
}

// NewPrewarmer creates a Prewarmer running at most concurrency fetches at
// once.
func NewPrewarmer(registry *Registry, cache ArticleCache, concurrency int) *Prewarmer {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Prewarmer{registry: registry, cache: cache, concurrency: concurrency}
}

// Warm fetches every distinct URL across the current partition snapshot.
// Per-URL failures are counted, not fatal; the first context cancellation
// aborts the run.
func (p *Prewarmer) Warm(ctx context.Context) (warmed, absent int, err error) {
	urls := p.collectURLs()
	if len(urls) == 0 {
		logger.Info("Nothing to prewarm: no partition URLs")
		return 0, 0, nil
	}
	logger.Info("Prewarming article indexes", "urls", len(urls), "concurrency", p.concurrency)

	var warmedCount, absentCount int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for _, url := range urls {
		url := url
		g.Go(func() error {
			ix, err := p.cache.Get(gctx, url)
			if err != nil {
				return err
			}
			if ix != nil {
				atomic.AddInt64(&warmedCount, 1)
			} else {
				atomic.AddInt64(&absentCount, 1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(warmedCount), int(absentCount), err
	}

	logger.Info("Prewarm complete", "warmed", warmedCount, "absent", absentCount)
	return int(warmedCount), int(absentCount), nil
}

// collectURLs gathers the distinct document URLs across all partitions.
func (p *Prewarmer) collectURLs() []string {
	seen := make(map[string]bool)
	var urls []string
	for _, partition := range p.registry.Partitions() {
		for _, doc := range partition.Index.Documents() {
			url := doc.URL()
			if url == "" || seen[url] {
				continue
			}
			seen[url] = true
			urls = append(urls, url)
		}
	}
	return urls
}
