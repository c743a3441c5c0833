// Package pipeline drives one fact-check request end to end: acquire the
// source text, extract and reduce claims, fan the claim processor out over
// them, and aggregate the per-claim confidences into the final result.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"factseeker/internal/core"
	"factseeker/internal/fetch"
	"factseeker/internal/logger"
)

// TextSource acquires the text under scrutiny; satisfied by
// fetch.TextFetcher.
type TextSource interface {
	FetchArticleBody(ctx context.Context, url string) (string, error)
	FetchTranscript(ctx context.Context, videoURL string) (string, error)
}

// LanguageModel covers the driver's own LLM calls; satisfied by llm.Client.
type LanguageModel interface {
	ExtractClaims(ctx context.Context, sourceText string) ([]string, error)
	ReduceClaims(ctx context.Context, claims []string) ([]string, error)
	ExtractKeywords(ctx context.Context, sourceText string) ([]string, error)
	ThreeLineSummary(ctx context.Context, sourceText string) (string, error)
	ClassifyChannelType(ctx context.Context, transcript string) (string, string, error)
}

// ClaimChecker processes one claim; satisfied by claims.Processor.
type ClaimChecker interface {
	Process(ctx context.Context, claim string) core.ClaimResult
}

// Observer receives progress callbacks during a run. All methods may be
// called from different goroutines; implementations must be safe for that.
type Observer interface {
	ClaimsReduced(claims []string)
	ClaimChecked(index int, result core.ClaimResult)
}

// Config bounds one driver instance.
type Config struct {
	MaxClaims           int // reduced claim list cap
	MaxConcurrentClaims int // claim processors in flight
}

func (c *Config) applyDefaults() {
	if c.MaxClaims <= 0 {
		c.MaxClaims = 10
	}
	if c.MaxConcurrentClaims <= 0 {
		c.MaxConcurrentClaims = 3
	}
}

// Driver is the top-level fact-check pipeline.
type Driver struct {
	texts    TextSource
	model    LanguageModel
	checker  ClaimChecker
	observer Observer // nil means no progress reporting
	cfg      Config
}

// NewDriver creates a Driver.
func NewDriver(texts TextSource, model LanguageModel, checker ClaimChecker, cfg Config) *Driver {
	cfg.applyDefaults()
	return &Driver{texts: texts, model: model, checker: checker, cfg: cfg}
}

// SetObserver attaches a progress observer. Call before starting a run.
func (d *Driver) SetObserver(obs Observer) {
	d.observer = obs
}

// CheckVideo fact-checks a video through its transcript.
func (d *Driver) CheckVideo(ctx context.Context, videoURL string) (*core.PipelineResult, error) {
	videoID, err := fetch.VideoID(videoURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not a recognizable video URL", core.ErrSourceUnavailable, videoURL)
	}

	transcript, err := d.texts.FetchTranscript(ctx, videoURL)
	if err != nil || strings.TrimSpace(transcript) == "" {
		if err != nil {
			logger.Warn("Transcript fetch failed", "video_url", videoURL, "error", err.Error())
		}
		return nil, fmt.Errorf("%w: no transcript for %s", core.ErrSourceUnavailable, videoURL)
	}

	result, score, err := d.run(ctx, transcript, true)
	if err != nil {
		return nil, err
	}
	result.VideoID = videoID
	result.VideoURL = videoURL
	result.VideoScore = &score
	return result, nil
}

// CheckArticle fact-checks a news article through its body text.
func (d *Driver) CheckArticle(ctx context.Context, articleURL string) (*core.PipelineResult, error) {
	body, err := d.texts.FetchArticleBody(ctx, articleURL)
	if err != nil || strings.TrimSpace(body) == "" {
		if err != nil {
			logger.Warn("Article fetch failed", "article_url", articleURL, "error", err.Error())
		}
		return nil, fmt.Errorf("%w: no readable body at %s", core.ErrSourceUnavailable, articleURL)
	}

	result, score, err := d.run(ctx, body, false)
	if err != nil {
		return nil, err
	}
	result.ArticleURL = articleURL
	result.ArticleScore = &score
	return result, nil
}

// auxiliary holds the metadata computed alongside the claim work. None of
// its producers may fail the request.
type auxiliary struct {
	keywords      []string
	threeLine     string
	channelType   string
	channelReason string
}

// run executes the shared pipeline over an already-acquired source text.
func (d *Driver) run(ctx context.Context, sourceText string, video bool) (*core.PipelineResult, int, error) {
	var (
		aux     auxiliary
		auxWait = d.startAuxiliaries(ctx, sourceText, video, &aux)
	)

	reduced, err := d.extractAndReduce(ctx, sourceText)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", core.ErrExtractionFailed, err)
	}
	if d.observer != nil {
		d.observer.ClaimsReduced(reduced)
	}

	results := d.processClaims(ctx, reduced)
	score := AggregateConfidence(results)

	auxWait()

	result := &core.PipelineResult{
		Summary:          SummaryLine(results),
		Claims:           results,
		Keywords:         aux.keywords,
		ThreeLineSummary: aux.threeLine,
		CreatedAt:        time.Now().UTC().Format(time.RFC3339),
	}
	if result.Keywords == nil {
		result.Keywords = []string{}
	}
	if video {
		result.ChannelType = aux.channelType
		result.ChannelTypeReason = aux.channelReason
	}
	return result, score, nil
}

// startAuxiliaries kicks off keyword extraction, the three-line summary,
// and (for videos) channel classification. The returned function blocks
// until all of them finish; their failures only log.
func (d *Driver) startAuxiliaries(ctx context.Context, sourceText string, video bool, aux *auxiliary) func() {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer recoverAuxiliary("keywords")
		keywords, err := d.model.ExtractKeywords(ctx, sourceText)
		if err != nil {
			logger.Warn("Keyword extraction failed", "error", err.Error())
			return
		}
		aux.keywords = keywords
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer recoverAuxiliary("three_line_summary")
		summary, err := d.model.ThreeLineSummary(ctx, sourceText)
		if err != nil {
			logger.Warn("Three-line summary failed", "error", err.Error())
			return
		}
		aux.threeLine = summary
	}()

	if video {
		aux.channelType = "unknown"
		aux.channelReason = "channel classification unavailable"
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer recoverAuxiliary("channel_type")
			channelType, reason, err := d.model.ClassifyChannelType(ctx, sourceText)
			if err != nil {
				logger.Warn("Channel classification failed", "error", err.Error())
				return
			}
			aux.channelType = channelType
			aux.channelReason = reason
		}()
	}

	return wg.Wait
}

// recoverAuxiliary absorbs a panic from an auxiliary goroutine; the field
// it would have filled just stays at its fallback value.
func recoverAuxiliary(name string) {
	if r := recover(); r != nil {
		logger.Error("Auxiliary task panicked", fmt.Errorf("%v", r), "task", name)
	}
}

// extractAndReduce produces the bounded, deduplicated claim list.
func (d *Driver) extractAndReduce(ctx context.Context, sourceText string) ([]string, error) {
	raw, err := d.model.ExtractClaims(ctx, sourceText)
	if err != nil {
		return nil, fmt.Errorf("extract: %v", err)
	}
	if len(raw) == 0 {
		return []string{}, nil
	}

	reduced, err := d.model.ReduceClaims(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("reduce: %v", err)
	}
	if len(reduced) > d.cfg.MaxClaims {
		reduced = reduced[:d.cfg.MaxClaims]
	}
	return reduced, nil
}

// processClaims fans the claim checker out over the reduced claims with
// bounded parallelism. Results land at their claim's index, so the output
// order always matches the input order and no slot is ever dropped.
func (d *Driver) processClaims(ctx context.Context, reduced []string) []core.ClaimResult {
	results := make([]core.ClaimResult, len(reduced))
	sem := make(chan struct{}, d.cfg.MaxConcurrentClaims)

	var wg sync.WaitGroup
	for i, claim := range reduced {
		wg.Add(1)
		go func(i int, claim string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			// A checker that panics past its own recovery still must not
			// take the process (or this slot) down with it.
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Claim checker panicked", fmt.Errorf("%v", r), "claim", claim)
					results[i] = core.NewErrorClaimResult(claim, fmt.Sprintf("ProcessorError: %v", r))
				}
			}()

			results[i] = d.checker.Process(ctx, claim)
			if d.observer != nil {
				d.observer.ClaimChecked(i, results[i])
			}
		}(i, claim)
	}
	wg.Wait()
	return results
}

// AggregateConfidence combines per-claim confidences into the request-level
// score. Claims with no confidence and no evidence are floored at 10, each
// claim is weighted by its evidence count and confidence, and the weighted
// mean is rounded. An empty claim list scores 0.
func AggregateConfidence(results []core.ClaimResult) int {
	var num, den float64
	for _, r := range results {
		conf := float64(r.ConfidenceScore)
		evCount := len(r.Evidence)
		if r.ConfidenceScore == 0 && evCount == 0 {
			conf = 10
		}
		evidenceWeight := math.Min(float64(evCount+1), 5)
		confidenceWeight := math.Max(conf/20, 0.5)
		weight := evidenceWeight * confidenceWeight
		num += conf * weight
		den += weight
	}
	if den == 0 {
		return 0
	}
	return int(math.Round(num / den))
}

// SummaryLine renders the human-readable result summary. Fewer than three
// claims is too thin to quote a percentage.
func SummaryLine(results []core.ClaimResult) string {
	if len(results) < 3 {
		return fmt.Sprintf("insufficient_claims: %d", len(results))
	}
	likely := 0
	for _, r := range results {
		if r.Result == core.ResultLikelyTrue {
			likely++
		}
	}
	pct := float64(likely) / float64(len(results)) * 100
	return fmt.Sprintf("%.1f%% of claims with evidence", pct)
}
