// Package evidence turns a claim into evidence candidates: web-search hits
// matched against the partitioned title indexes, then materialized into
// article bodies through the article index cache.
package evidence

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"factseeker/internal/core"
	"factseeker/internal/logger"
	"factseeker/internal/search"
	"factseeker/internal/titleindex"
	"factseeker/internal/vectorstore"
)

// knnPerTitle is how many nearest titles are considered per search hit.
const knnPerTitle = 3

// knnPerQueryFallback is the per-partition k when falling back to matching
// the query itself.
const knnPerQueryFallback = 5

// QueryModel is the LLM surface the retriever needs; satisfied by
// llm.Client.
type QueryModel interface {
	SummarizeSearchQuery(ctx context.Context, claim string) (string, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ArticleSource materializes article bodies; satisfied by
// articleindex.Cache.
type ArticleSource interface {
	Get(ctx context.Context, url string) (*vectorstore.Index, error)
}

// PartitionSource supplies title partitions; satisfied by
// titleindex.Registry.
type PartitionSource interface {
	Partitions() []*titleindex.Partition
	OverflowPartitions() []*titleindex.Partition
}

// Config bounds one retriever instance.
type Config struct {
	DistanceThreshold float64       // accept matches strictly below this L2 distance
	MaxArticles       int           // cap on candidate URLs per claim
	PartitionStopHits int           // stop descending partitions once one yields this many new URLs
	BodyConcurrency   int           // outstanding article-cache calls
	SearchTimeout     time.Duration // per search-provider call
	SearchMaxResults  int
	SearchLanguage    string
	SearchCountry     string
}

func (c *Config) applyDefaults() {
	if c.DistanceThreshold <= 0 {
		c.DistanceThreshold = 0.8
	}
	if c.MaxArticles <= 0 {
		c.MaxArticles = 10
	}
	if c.PartitionStopHits <= 0 {
		c.PartitionStopHits = 1
	}
	if c.BodyConcurrency <= 0 {
		c.BodyConcurrency = 7
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = 15 * time.Second
	}
	if c.SearchMaxResults <= 0 {
		c.SearchMaxResults = 10
	}
}

// Options select the provider and scope for one retrieval pass. The
// cascades re-run retrieval with a different provider or partition scope
// and an exclusion set covering everything earlier passes saw.
type Options struct {
	Provider    search.Provider
	ExcludeURLs map[string]bool
	Overflow    bool // restrict matching to the overflow partitions
}

// Retriever implements the two-stage search+k-NN evidence pipeline.
type Retriever struct {
	model      QueryModel
	articles   ArticleSource
	partitions PartitionSource
	cfg        Config
}

// NewRetriever creates a Retriever.
func NewRetriever(model QueryModel, articles ArticleSource, partitions PartitionSource, cfg Config) *Retriever {
	cfg.applyDefaults()
	return &Retriever{model: model, articles: articles, partitions: partitions, cfg: cfg}
}

// selection is a matched URL pending body materialization.
type selection struct {
	url         string
	sourceTitle string
	distance    float64
}

// Retrieve returns up to MaxArticles evidence candidates for a claim, in
// match order. Local failures (search down, embeddings down, no matches)
// yield an empty slice, never an error; only context cancellation aborts.
func (r *Retriever) Retrieve(ctx context.Context, claim string, opts Options) ([]core.EvidenceCandidate, error) {
	query := r.summarizeQuery(ctx, claim)

	hits, err := r.collectHits(ctx, query, opts.Provider)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("Search failed, returning no candidates", "provider", opts.Provider.GetName(), "error", err.Error())
		return nil, nil
	}
	if len(hits) == 0 {
		logger.Debug("Search returned no hits", "query", query)
		return nil, nil
	}

	selections, err := r.matchTitles(ctx, hits, opts)
	if err != nil {
		return nil, err
	}
	if len(selections) == 0 {
		selections, err = r.matchQueryFallback(ctx, query, opts)
		if err != nil {
			return nil, err
		}
	}
	if len(selections) == 0 {
		logger.Debug("No title matches under threshold", "query", query)
		return nil, nil
	}

	return r.materialize(ctx, selections)
}

// summarizeQuery condenses the claim into a search query, falling back to
// the claim text itself.
func (r *Retriever) summarizeQuery(ctx context.Context, claim string) string {
	query, err := r.model.SummarizeSearchQuery(ctx, claim)
	if err != nil || query == "" {
		if err != nil {
			logger.Warn("Query summarization failed, using claim verbatim", "error", err.Error())
		}
		return claim
	}
	return query
}

// collectHits runs the provider search and prepares cleaned titles,
// keeping the provider's result order.
func (r *Retriever) collectHits(ctx context.Context, query string, provider search.Provider) ([]core.SearchHit, error) {
	searchCtx, cancel := context.WithTimeout(ctx, r.cfg.SearchTimeout)
	defer cancel()

	results, err := provider.Search(searchCtx, query, search.Config{
		MaxResults: r.cfg.SearchMaxResults,
		Language:   r.cfg.SearchLanguage,
		Country:    r.cfg.SearchCountry,
	})
	if err != nil {
		return nil, err
	}

	hits := make([]core.SearchHit, 0, len(results))
	for _, result := range results {
		if len(hits) >= r.cfg.SearchMaxResults {
			break
		}
		clean := CleanNewsTitle(result.Title)
		if clean == "" {
			clean = strings.TrimSpace(result.Title)
		}
		if clean == "" || result.URL == "" {
			continue
		}
		hits = append(hits, core.SearchHit{
			Title:      result.Title,
			CleanTitle: clean,
			URL:        result.URL,
			Snippet:    result.Snippet,
			Rank:       result.Rank,
			Provider:   provider.GetName(),
		})
	}
	return hits, nil
}

// matchTitles embeds the cleaned hit titles and walks the partitions in
// descending ordinal order. The hit position is the primary ordering key;
// within a position the nearest acceptable unchosen URL wins. A partition
// that contributes PartitionStopHits new URLs ends the walk, so the newest
// partition is preferred and older ones only fill starvation.
func (r *Retriever) matchTitles(ctx context.Context, hits []core.SearchHit, opts Options) ([]selection, error) {
	titles := make([]string, len(hits))
	for i, hit := range hits {
		titles[i] = hit.CleanTitle
	}

	vectors, err := r.model.EmbedDocuments(ctx, titles)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("Title embedding failed, returning no candidates", "error", err.Error())
		return nil, nil
	}

	var (
		selections []selection
		chosen     = make(map[string]bool)
	)
	for _, partition := range r.partitionSet(opts) {
		if partition.Index.Len() == 0 {
			continue
		}

		newURLs := 0
		for _, vector := range vectors {
			if len(selections) >= r.cfg.MaxArticles {
				break
			}
			for _, match := range partition.Index.Search(vector, knnPerTitle) {
				if match.Distance >= r.cfg.DistanceThreshold {
					continue
				}
				url := match.Document.URL()
				if url == "" || chosen[url] || opts.ExcludeURLs[url] {
					continue
				}
				chosen[url] = true
				selections = append(selections, selection{
					url:         url,
					sourceTitle: match.Document.Metadata["title"],
					distance:    match.Distance,
				})
				newURLs++
				break
			}
		}

		if len(selections) >= r.cfg.MaxArticles {
			break
		}
		if newURLs >= r.cfg.PartitionStopHits {
			logger.Debug("Partition satisfied retrieval, stopping walk",
				"partition", partition.ID, "new_urls", newURLs)
			break
		}
	}
	return selections, nil
}

// matchQueryFallback matches the query embedding itself against every
// partition, keeping everything under the threshold sorted by distance.
func (r *Retriever) matchQueryFallback(ctx context.Context, query string, opts Options) ([]selection, error) {
	vector, err := r.model.EmbedQuery(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("Query embedding failed in fallback", "error", err.Error())
		return nil, nil
	}

	var (
		selections []selection
		chosen     = make(map[string]bool)
	)
	for _, partition := range r.partitionSet(opts) {
		if partition.Index.Len() == 0 {
			continue
		}
		for _, match := range partition.Index.Search(vector, knnPerQueryFallback) {
			if match.Distance >= r.cfg.DistanceThreshold {
				continue
			}
			url := match.Document.URL()
			if url == "" || chosen[url] || opts.ExcludeURLs[url] {
				continue
			}
			chosen[url] = true
			selections = append(selections, selection{
				url:         url,
				sourceTitle: match.Document.Metadata["title"],
				distance:    match.Distance,
			})
		}
	}

	sort.SliceStable(selections, func(i, j int) bool {
		return selections[i].distance < selections[j].distance
	})
	if len(selections) > r.cfg.MaxArticles {
		selections = selections[:r.cfg.MaxArticles]
	}
	return selections, nil
}

func (r *Retriever) partitionSet(opts Options) []*titleindex.Partition {
	if opts.Overflow {
		return r.partitions.OverflowPartitions()
	}
	return r.partitions.Partitions()
}

// materialize fetches the article body for each selected URL through the
// article cache, preserving selection order. URLs whose article is absent
// are dropped.
func (r *Retriever) materialize(ctx context.Context, selections []selection) ([]core.EvidenceCandidate, error) {
	bodies := make([]string, len(selections))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.BodyConcurrency)
	for i, sel := range selections {
		i, sel := i, sel
		g.Go(func() (err error) {
			// A panic on an errgroup goroutine would escape every recover
			// upstream; turn it into the group's error instead.
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("article materialization panicked on %s: %v", sel.url, r)
				}
			}()
			ix, err := r.articles.Get(gctx, sel.url)
			if err != nil {
				return err
			}
			if ix == nil {
				return nil
			}
			var parts []string
			for _, doc := range ix.Documents() {
				if doc.Content != "" {
					parts = append(parts, doc.Content)
				}
			}
			bodies[i] = strings.Join(parts, "\n")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidates := make([]core.EvidenceCandidate, 0, len(selections))
	for i, sel := range selections {
		if bodies[i] == "" {
			continue
		}
		candidates = append(candidates, core.EvidenceCandidate{
			URL:         sel.url,
			Body:        bodies[i],
			SourceTitle: sel.sourceTitle,
		})
	}
	return candidates, nil
}

var (
	bracketRegex    = regexp.MustCompile(`\[[^\]]*\]`)
	parenRegex      = regexp.MustCompile(`\([^)]*\)`)
	htmlTagRegex    = regexp.MustCompile(`<[^>]+>`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// CleanNewsTitle normalizes a news title for embedding: outlet tags in
// brackets, parenthesized decorations, and HTML are dropped and whitespace
// collapsed.
func CleanNewsTitle(title string) string {
	if title == "" {
		return ""
	}
	t := bracketRegex.ReplaceAllString(title, " ")
	t = parenRegex.ReplaceAllString(t, " ")
	t = htmlTagRegex.ReplaceAllString(t, " ")
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(t, " "))
}
