// Package articleindex caches per-article vector indexes keyed by URL.
// Lookups fall through three tiers: the local cache directory, the object
// store, and finally a fresh fetch-and-embed build. Concurrent lookups for
// the same URL share one in-flight build.
package articleindex

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"factseeker/internal/core"
	"factseeker/internal/logger"
	"factseeker/internal/vectorstore"
)

// minBodyChars is the minimum article length worth indexing. Shorter pages
// are paywalls, stubs, or error pages.
const minBodyChars = 200

// BodyFetcher retrieves an article's main text.
type BodyFetcher interface {
	FetchArticleBody(ctx context.Context, url string) (string, error)
}

// Embedder turns texts into vectors.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// ObjectStore is the object-store surface the cache needs. It is satisfied
// by objstore.Store.
type ObjectStore interface {
	DownloadPrefix(ctx context.Context, prefix, destDir string) error
	UploadDir(ctx context.Context, srcDir, prefix string) error
}

// Cache is the article index cache. A nil ObjectStore disables the remote
// tier.
type Cache struct {
	localDir string
	prefix   string
	store    ObjectStore
	fetcher  BodyFetcher
	embedder Embedder
	group    singleflight.Group
}

// New creates a Cache rooted at localDir, mirroring the object-store
// objects under prefix.
func New(localDir, prefix string, store ObjectStore, fetcher BodyFetcher, embedder Embedder) *Cache {
	return &Cache{
		localDir: localDir,
		prefix:   prefix,
		store:    store,
		fetcher:  fetcher,
		embedder: embedder,
	}
}

// CacheKey returns the cache directory name for a URL, the hex SHA-256 of
// the URL string.
func CacheKey(url string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(url)))
}

// Get returns the vector index for an article URL, or (nil, nil) when the
// article yields no indexable text. Failures local to the URL (fetch
// errors, short bodies, embedding errors) are absorbed into the absent
// result; only context cancellation propagates.
func (c *Cache) Get(ctx context.Context, url string) (*vectorstore.Index, error) {
	v, err, _ := c.group.Do(CacheKey(url), func() (interface{}, error) {
		return c.loadOrBuild(ctx, url)
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*vectorstore.Index), nil
}

func (c *Cache) loadOrBuild(ctx context.Context, url string) (*vectorstore.Index, error) {
	key := CacheKey(url)
	dir := filepath.Join(c.localDir, key)

	if vectorstore.Exists(dir) {
		ix, err := vectorstore.Load(dir)
		if err == nil {
			logger.Debug("Article index cache hit (local)", "url", url)
			return ix, nil
		}
		logger.Warn("Local article index corrupt, discarding", "url", url, "error", err.Error())
		_ = os.RemoveAll(dir)
	}

	if c.store != nil {
		if err := c.store.DownloadPrefix(ctx, c.prefix+"/"+key, dir); err == nil {
			ix, err := vectorstore.Load(dir)
			if err == nil {
				logger.Debug("Article index cache hit (object store)", "url", url)
				return ix, nil
			}
			logger.Warn("Remote article index corrupt, discarding", "url", url, "error", err.Error())
			_ = os.RemoveAll(dir)
		} else if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return c.build(ctx, url, dir)
}

func (c *Cache) build(ctx context.Context, url, dir string) (*vectorstore.Index, error) {
	body, err := c.fetcher.FetchArticleBody(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("Article fetch failed, skipping URL", "url", url, "error", err.Error())
		return nil, nil
	}
	// Characters, not bytes: Korean bodies run three bytes per rune.
	if utf8.RuneCountInString(body) < minBodyChars {
		logger.Debug("Article too short to index", "url", url, "chars", utf8.RuneCountInString(body))
		return nil, nil
	}

	vectors, err := c.embedder.EmbedDocuments(ctx, []string{body})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("Article embedding failed, skipping URL", "url", url, "error", err.Error())
		return nil, nil
	}

	ix := vectorstore.New(len(vectors[0]))
	if err := ix.Add(core.Document{
		Content:  body,
		Metadata: map[string]string{"url": url},
	}, vectors[0]); err != nil {
		return nil, fmt.Errorf("failed to index article %s: %w", url, err)
	}

	if err := vectorstore.Save(ix, dir); err != nil {
		logger.Warn("Failed to persist article index", "url", url, "error", err.Error())
		return ix, nil
	}
	if c.store != nil {
		if err := c.store.UploadDir(ctx, dir, c.prefix+"/"+CacheKey(url)); err != nil {
			logger.Warn("Article index upload failed (ignored)", "url", url, "error", err.Error())
		}
	}
	return ix, nil
}
