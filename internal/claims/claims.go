// Package claims turns one claim into a ClaimResult: it retrieves evidence
// candidates, judges them, scores the accepted evidence, and applies the
// low-confidence fallback cascades.
package claims

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"factseeker/internal/core"
	"factseeker/internal/evidence"
	"factseeker/internal/logger"
	"factseeker/internal/search"
)

// maxEvidenceInResult caps how many accepted evidences a ClaimResult carries.
const maxEvidenceInResult = 3

// Retriever is the evidence surface the processor consumes; satisfied by
// evidence.Retriever.
type Retriever interface {
	Retrieve(ctx context.Context, claim string, opts evidence.Options) ([]core.EvidenceCandidate, error)
}

// Judge evaluates one claim/body pair; satisfied by judge.Judge.
type Judge interface {
	Evaluate(ctx context.Context, claim, body string) core.Verdict
}

// Config bounds one processor instance.
type Config struct {
	MaxEvidences           int // stop judging once this many evidences are accepted
	JudgmentConcurrency    int // judge calls in flight per batch
	LowConfidenceThreshold int // cascades fire while confidence <= this
}

func (c *Config) applyDefaults() {
	if c.MaxEvidences <= 0 {
		c.MaxEvidences = 10
	}
	if c.JudgmentConcurrency <= 0 {
		c.JudgmentConcurrency = 7
	}
	if c.LowConfidenceThreshold <= 0 {
		c.LowConfidenceThreshold = 20
	}
}

// Processor runs the judge over retrieved candidates and picks the best of
// up to three retrieval passes: primary provider, secondary provider, and
// the overflow partitions.
type Processor struct {
	retriever Retriever
	judge     Judge
	primary   search.Provider
	secondary search.Provider // nil disables the provider cascade
	cfg       Config
}

// NewProcessor creates a Processor. secondary may be nil when no fallback
// provider is configured.
func NewProcessor(retriever Retriever, judge Judge, primary, secondary search.Provider, cfg Config) *Processor {
	cfg.applyDefaults()
	return &Processor{
		retriever: retriever,
		judge:     judge,
		primary:   primary,
		secondary: secondary,
		cfg:       cfg,
	}
}

// pass is the outcome of one retrieval+judgment round. seen covers every
// candidate URL the pass looked at, accepted or not, so later passes can
// exclude them.
type pass struct {
	evidence   []core.Evidence
	confidence int
	seen       map[string]bool
}

// Process produces the ClaimResult for one claim. The result slot is never
// lost: panics and cancellation come back as an error-tagged result.
func (p *Processor) Process(ctx context.Context, claim string) (result core.ClaimResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Claim processor panicked", fmt.Errorf("%v", r), "claim", claim)
			result = core.NewErrorClaimResult(claim, fmt.Sprintf("ProcessorError: %v", r))
		}
	}()

	best, err := p.cascade(ctx, claim)
	if err != nil {
		logger.Error("Claim processing failed", err, "claim", claim)
		return core.NewErrorClaimResult(claim, core.ErrorDetail(err))
	}

	accepted := best.evidence
	if len(accepted) > maxEvidenceInResult {
		accepted = accepted[:maxEvidenceInResult]
	}
	label := core.ResultInsufficientEvidence
	if len(accepted) > 0 {
		label = core.ResultLikelyTrue
	}
	return core.ClaimResult{
		Claim:           claim,
		Result:          label,
		ConfidenceScore: best.confidence,
		Evidence:        accepted,
	}
}

// cascade runs the primary pass and, while confidence stays at or below the
// threshold, the secondary-provider and overflow-partition passes. A later
// pass replaces the current best only when strictly more confident.
func (p *Processor) cascade(ctx context.Context, claim string) (pass, error) {
	best, err := p.runPass(ctx, claim, evidence.Options{Provider: p.primary})
	if err != nil {
		return pass{}, err
	}
	seen := copyURLSet(best.seen)

	if best.confidence <= p.cfg.LowConfidenceThreshold && p.secondary != nil {
		second, err := p.runPass(ctx, claim, evidence.Options{
			Provider:    p.secondary,
			ExcludeURLs: copyURLSet(seen),
		})
		if err != nil {
			return pass{}, err
		}
		mergeURLSet(seen, second.seen)
		if second.confidence > best.confidence {
			logger.Debug("Secondary provider pass won",
				"claim", claim, "primary", best.confidence, "secondary", second.confidence)
			best = second
		}
	}

	if best.confidence <= p.cfg.LowConfidenceThreshold && len(best.evidence) > 0 {
		overflow, err := p.runPass(ctx, claim, evidence.Options{
			Provider:    p.primary,
			ExcludeURLs: copyURLSet(seen),
			Overflow:    true,
		})
		if err != nil {
			return pass{}, err
		}
		if overflow.confidence > best.confidence {
			logger.Debug("Overflow partition pass won",
				"claim", claim, "before", best.confidence, "overflow", overflow.confidence)
			best = overflow
		}
	}
	return best, nil
}

// runPass retrieves candidates for one provider/partition scope and judges
// them in batches of JudgmentConcurrency, accepting relevant verdicts until
// MaxEvidences is reached. Acceptance order follows candidate order.
func (p *Processor) runPass(ctx context.Context, claim string, opts evidence.Options) (pass, error) {
	candidates, err := p.retriever.Retrieve(ctx, claim, opts)
	if err != nil {
		return pass{}, err
	}

	seen := make(map[string]bool, len(candidates))
	for _, cand := range candidates {
		seen[cand.URL] = true
	}

	var (
		accepted []core.Evidence
		used     = make(map[string]bool)
	)
	for start := 0; start < len(candidates) && len(accepted) < p.cfg.MaxEvidences; start += p.cfg.JudgmentConcurrency {
		end := start + p.cfg.JudgmentConcurrency
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]

		// The recover in Process cannot see panics raised on these
		// goroutines, so each one catches its own and the batch reports
		// the first as an ordinary error.
		var (
			verdicts = make([]core.Verdict, len(batch))
			wg       sync.WaitGroup
			panicMu  sync.Mutex
			panicErr error
		)
		for i, cand := range batch {
			wg.Add(1)
			go func(i int, cand core.EvidenceCandidate) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						verdicts[i] = core.Verdict{Relevance: core.RelevanceNo}
						panicMu.Lock()
						if panicErr == nil {
							panicErr = fmt.Errorf("judge panicked on %s: %v", cand.URL, r)
						}
						panicMu.Unlock()
					}
				}()
				verdicts[i] = p.judge.Evaluate(ctx, claim, cand.Body)
			}(i, cand)
		}
		wg.Wait()
		if panicErr != nil {
			return pass{}, panicErr
		}
		if ctx.Err() != nil {
			return pass{}, ctx.Err()
		}

		for i, cand := range batch {
			if len(accepted) >= p.cfg.MaxEvidences {
				break
			}
			verdict := verdicts[i]
			if verdict.Relevance != core.RelevanceYes || used[cand.URL] {
				continue
			}
			used[cand.URL] = true
			accepted = append(accepted, core.Evidence{
				URL:             cand.URL,
				Relevance:       core.RelevanceYes,
				FactDescription: verdict.FactDescription,
				Justification:   verdict.Justification,
				Snippet:         verdict.Snippet,
				SourceTitle:     cand.SourceTitle,
			})
		}
	}

	return pass{
		evidence:   accepted,
		confidence: Confidence(accepted),
		seen:       seen,
	}, nil
}

// Confidence scores an evidence list: clamped evidence count times 12 plus
// the source-diversity band times 8, bounded to [0,100].
func Confidence(accepted []core.Evidence) int {
	count := len(accepted)
	if count > 5 {
		count = 5
	}
	score := count*12 + DiversityBand(distinctSources(accepted))*8
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// DiversityBand maps a distinct-source count onto the 0..5 scoring band.
func DiversityBand(sources int) int {
	switch {
	case sources <= 0:
		return 0
	case sources == 1:
		return 1
	case sources == 2:
		return 3
	case sources == 3:
		return 4
	default:
		return 5
	}
}

// distinctSources counts the distinct sources backing an evidence list,
// preferring the matched partition title over the URL host.
func distinctSources(accepted []core.Evidence) int {
	sources := make(map[string]bool, len(accepted))
	for _, ev := range accepted {
		if key := sourceKey(ev); key != "" {
			sources[key] = true
		}
	}
	return len(sources)
}

func sourceKey(ev core.Evidence) string {
	if ev.SourceTitle != "" {
		return strings.ToLower(strings.TrimSpace(ev.SourceTitle))
	}
	if u, err := url.Parse(ev.URL); err == nil && u.Host != "" {
		return strings.ToLower(u.Host)
	}
	return strings.ToLower(ev.URL)
}

func copyURLSet(src map[string]bool) map[string]bool {
	dst := make(map[string]bool, len(src))
	for k, v := range src {
		if v {
			dst[k] = v
		}
	}
	return dst
}

func mergeURLSet(dst, src map[string]bool) {
	for k, v := range src {
		if v {
			dst[k] = true
		}
	}
}
