package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"factseeker/internal/core"
)

const videoURL = "https://www.youtube.com/watch?v=abcdefghijk"

type stubTexts struct {
	transcript string
	body       string
	err        error
}

func (s *stubTexts) FetchTranscript(ctx context.Context, url string) (string, error) {
	return s.transcript, s.err
}

func (s *stubTexts) FetchArticleBody(ctx context.Context, url string) (string, error) {
	return s.body, s.err
}

type stubModel struct {
	claims     []string
	reduced    []string
	extractErr error
	reduceErr  error
	auxErr     error
}

func (s *stubModel) ExtractClaims(ctx context.Context, text string) ([]string, error) {
	return s.claims, s.extractErr
}

func (s *stubModel) ReduceClaims(ctx context.Context, claims []string) ([]string, error) {
	if s.reduced != nil {
		return s.reduced, s.reduceErr
	}
	return claims, s.reduceErr
}

func (s *stubModel) ExtractKeywords(ctx context.Context, text string) ([]string, error) {
	if s.auxErr != nil {
		return nil, s.auxErr
	}
	return []string{"economy", "policy"}, nil
}

func (s *stubModel) ThreeLineSummary(ctx context.Context, text string) (string, error) {
	if s.auxErr != nil {
		return "", s.auxErr
	}
	return "Line one.\nLine two.\nLine three.", nil
}

func (s *stubModel) ClassifyChannelType(ctx context.Context, transcript string) (string, string, error) {
	if s.auxErr != nil {
		return "", "", s.auxErr
	}
	return "news", "the transcript reads like a broadcast", nil
}

// stubChecker returns a canned result per claim, optionally delaying so the
// fan-out finishes out of order.
type stubChecker struct {
	results map[string]core.ClaimResult
	delays  map[string]time.Duration
}

func (s *stubChecker) Process(ctx context.Context, claim string) core.ClaimResult {
	if d := s.delays[claim]; d > 0 {
		time.Sleep(d)
	}
	if r, ok := s.results[claim]; ok {
		return r
	}
	return core.ClaimResult{
		Claim:           claim,
		Result:          core.ResultInsufficientEvidence,
		ConfidenceScore: 0,
		Evidence:        []core.Evidence{},
	}
}

func likelyTrueResult(claim string, evidences int) core.ClaimResult {
	ev := make([]core.Evidence, evidences)
	for i := range ev {
		ev[i] = core.Evidence{
			URL:         fmt.Sprintf("https://s%d.example.com/%s", i, claim),
			Relevance:   core.RelevanceYes,
			SourceTitle: fmt.Sprintf("Source %d", i),
		}
	}
	return core.ClaimResult{
		Claim:           claim,
		Result:          core.ResultLikelyTrue,
		ConfidenceScore: 68,
		Evidence:        ev,
	}
}

func TestCheckVideoHappyPath(t *testing.T) {
	claims := []string{"claim one", "claim two", "claim three"}
	checker := &stubChecker{results: map[string]core.ClaimResult{}}
	for _, c := range claims {
		checker.results[c] = likelyTrueResult(c, 3)
	}
	driver := NewDriver(
		&stubTexts{transcript: "a long transcript"},
		&stubModel{claims: claims},
		checker,
		Config{},
	)

	result, err := driver.CheckVideo(context.Background(), videoURL)
	if err != nil {
		t.Fatalf("CheckVideo failed: %v", err)
	}
	if result.VideoID != "abcdefghijk" {
		t.Errorf("video_id = %q", result.VideoID)
	}
	if result.VideoURL != videoURL {
		t.Errorf("video_url = %q", result.VideoURL)
	}
	if result.VideoScore == nil || *result.VideoScore != 68 {
		t.Fatalf("video score = %v, want 68", result.VideoScore)
	}
	if result.ArticleScore != nil || result.ArticleURL != "" {
		t.Error("article fields must stay empty on a video run")
	}
	if result.Summary != "100.0% of claims with evidence" {
		t.Errorf("summary = %q", result.Summary)
	}
	if len(result.Claims) != 3 {
		t.Fatalf("claims length = %d, want 3", len(result.Claims))
	}
	if result.ChannelType != "news" {
		t.Errorf("channel_type = %q, want news", result.ChannelType)
	}
	if len(result.Keywords) == 0 || result.ThreeLineSummary == "" {
		t.Error("auxiliary metadata missing")
	}
	if _, err := time.Parse(time.RFC3339, result.CreatedAt); err != nil {
		t.Errorf("created_at %q is not RFC 3339: %v", result.CreatedAt, err)
	}
}

func TestCheckVideoEmptyTranscript(t *testing.T) {
	driver := NewDriver(&stubTexts{transcript: "  "}, &stubModel{}, &stubChecker{}, Config{})

	_, err := driver.CheckVideo(context.Background(), videoURL)
	if !errors.Is(err, core.ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
}

func TestCheckArticleSetsArticleFields(t *testing.T) {
	claims := []string{"c1", "c2", "c3"}
	checker := &stubChecker{results: map[string]core.ClaimResult{}}
	for _, c := range claims {
		checker.results[c] = likelyTrueResult(c, 2)
	}
	driver := NewDriver(&stubTexts{body: "an article body"}, &stubModel{claims: claims}, checker, Config{})

	result, err := driver.CheckArticle(context.Background(), "https://news.example.com/a")
	if err != nil {
		t.Fatalf("CheckArticle failed: %v", err)
	}
	if result.ArticleURL != "https://news.example.com/a" {
		t.Errorf("article_url = %q", result.ArticleURL)
	}
	if result.ArticleScore == nil {
		t.Fatal("article score missing")
	}
	if result.VideoScore != nil || result.VideoID != "" {
		t.Error("video fields must stay empty on an article run")
	}
	if result.ChannelType != "" {
		t.Errorf("channel_type = %q, want empty on an article run", result.ChannelType)
	}
}

func TestFiveClaimsAllRejected(t *testing.T) {
	claims := []string{"c1", "c2", "c3", "c4", "c5"}
	driver := NewDriver(&stubTexts{body: "body"}, &stubModel{claims: claims}, &stubChecker{}, Config{})

	result, err := driver.CheckArticle(context.Background(), "https://news.example.com/a")
	if err != nil {
		t.Fatalf("CheckArticle failed: %v", err)
	}
	if len(result.Claims) != 5 {
		t.Fatalf("claims length = %d, want 5", len(result.Claims))
	}
	for i, cr := range result.Claims {
		if cr.Result != core.ResultInsufficientEvidence || cr.ConfidenceScore != 0 {
			t.Errorf("claim %d: result %q confidence %d", i, cr.Result, cr.ConfidenceScore)
		}
	}
	// Floor substitution: every claim counts as confidence 10 with weight
	// 1*0.5, so the weighted mean is 10.
	if got := result.AggregateScore(); got != 10 {
		t.Errorf("aggregate = %d, want 10", got)
	}
	if result.Summary != "0.0% of claims with evidence" {
		t.Errorf("summary = %q", result.Summary)
	}
}

func TestZeroClaims(t *testing.T) {
	driver := NewDriver(&stubTexts{body: "body"}, &stubModel{claims: []string{}}, &stubChecker{}, Config{})

	result, err := driver.CheckArticle(context.Background(), "https://news.example.com/a")
	if err != nil {
		t.Fatalf("CheckArticle failed: %v", err)
	}
	if len(result.Claims) != 0 {
		t.Errorf("claims length = %d, want 0", len(result.Claims))
	}
	if got := result.AggregateScore(); got != 0 {
		t.Errorf("aggregate = %d, want 0", got)
	}
	if result.Summary != "insufficient_claims: 0" {
		t.Errorf("summary = %q", result.Summary)
	}
	data, err := json.Marshal(result)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"claims":[]`) {
		t.Errorf("claims must serialize as an empty array: %s", data)
	}
}

func TestExtractionFailureAborts(t *testing.T) {
	driver := NewDriver(&stubTexts{body: "body"}, &stubModel{extractErr: errors.New("model down")}, &stubChecker{}, Config{})

	_, err := driver.CheckArticle(context.Background(), "https://news.example.com/a")
	if !errors.Is(err, core.ErrExtractionFailed) {
		t.Fatalf("err = %v, want ErrExtractionFailed", err)
	}
}

func TestReductionFailureAborts(t *testing.T) {
	driver := NewDriver(&stubTexts{body: "body"}, &stubModel{
		claims:    []string{"c1"},
		reduceErr: errors.New("model down"),
	}, &stubChecker{}, Config{})

	_, err := driver.CheckArticle(context.Background(), "https://news.example.com/a")
	if !errors.Is(err, core.ErrExtractionFailed) {
		t.Fatalf("err = %v, want ErrExtractionFailed", err)
	}
}

func TestClaimListTruncatedToMax(t *testing.T) {
	var claims []string
	for i := 0; i < 15; i++ {
		claims = append(claims, fmt.Sprintf("claim %d", i))
	}
	driver := NewDriver(&stubTexts{body: "body"}, &stubModel{claims: claims}, &stubChecker{}, Config{MaxClaims: 10})

	result, err := driver.CheckArticle(context.Background(), "https://news.example.com/a")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Claims) != 10 {
		t.Errorf("claims length = %d, want 10", len(result.Claims))
	}
}

func TestClaimOrderPreservedUnderConcurrency(t *testing.T) {
	claims := []string{"slow", "medium", "fast", "slower", "instant"}
	checker := &stubChecker{
		results: map[string]core.ClaimResult{},
		delays: map[string]time.Duration{
			"slow":   30 * time.Millisecond,
			"slower": 40 * time.Millisecond,
			"medium": 15 * time.Millisecond,
		},
	}
	for _, c := range claims {
		checker.results[c] = likelyTrueResult(c, 1)
	}
	driver := NewDriver(&stubTexts{body: "body"}, &stubModel{claims: claims}, checker, Config{MaxConcurrentClaims: 3})

	result, err := driver.CheckArticle(context.Background(), "https://news.example.com/a")
	if err != nil {
		t.Fatal(err)
	}
	for i, claim := range claims {
		if result.Claims[i].Claim != claim {
			t.Errorf("claims[%d] = %q, want %q", i, result.Claims[i].Claim, claim)
		}
	}
}

func TestAuxiliaryFailureDoesNotFailRequest(t *testing.T) {
	claims := []string{"c1", "c2", "c3"}
	checker := &stubChecker{results: map[string]core.ClaimResult{}}
	for _, c := range claims {
		checker.results[c] = likelyTrueResult(c, 1)
	}
	driver := NewDriver(
		&stubTexts{transcript: "transcript"},
		&stubModel{claims: claims, auxErr: errors.New("aux model down")},
		checker,
		Config{},
	)

	result, err := driver.CheckVideo(context.Background(), videoURL)
	if err != nil {
		t.Fatalf("CheckVideo failed: %v", err)
	}
	if len(result.Keywords) != 0 {
		t.Errorf("keywords = %v, want empty", result.Keywords)
	}
	if result.ThreeLineSummary != "" {
		t.Errorf("three_line_summary = %q, want empty", result.ThreeLineSummary)
	}
	if result.ChannelType != "unknown" {
		t.Errorf("channel_type = %q, want unknown fallback", result.ChannelType)
	}
}

// panickyChecker panics on one claim and answers the rest normally.
type panickyChecker struct {
	inner      stubChecker
	panicClaim string
}

func (p *panickyChecker) Process(ctx context.Context, claim string) core.ClaimResult {
	if claim == p.panicClaim {
		panic("checker blew past its own recovery")
	}
	return p.inner.Process(ctx, claim)
}

// panickyModel panics on every auxiliary call.
type panickyModel struct {
	stubModel
}

func (p *panickyModel) ExtractKeywords(ctx context.Context, text string) ([]string, error) {
	panic("keywords model crashed")
}

func (p *panickyModel) ThreeLineSummary(ctx context.Context, text string) (string, error) {
	panic("summary model crashed")
}

func (p *panickyModel) ClassifyChannelType(ctx context.Context, transcript string) (string, string, error) {
	panic("classifier crashed")
}

func TestCheckerPanicFillsSlotWithErrorResult(t *testing.T) {
	claims := []string{"c1", "c2", "c3"}
	checker := &panickyChecker{
		inner:      stubChecker{results: map[string]core.ClaimResult{}},
		panicClaim: "c2",
	}
	for _, c := range claims {
		checker.inner.results[c] = likelyTrueResult(c, 1)
	}
	driver := NewDriver(&stubTexts{transcript: "transcript"}, &stubModel{claims: claims}, checker, Config{})

	result, err := driver.CheckVideo(context.Background(), videoURL)
	if err != nil {
		t.Fatalf("CheckVideo failed: %v", err)
	}
	if len(result.Claims) != 3 {
		t.Fatalf("got %d claims, want 3 (no dropped slots)", len(result.Claims))
	}
	if result.Claims[1].Result != core.ResultError {
		t.Errorf("panicked slot = %q, want error", result.Claims[1].Result)
	}
	if !strings.Contains(result.Claims[1].Error, "checker blew past") {
		t.Errorf("error detail = %q, want panic message", result.Claims[1].Error)
	}
	if result.Claims[0].Result != core.ResultLikelyTrue || result.Claims[2].Result != core.ResultLikelyTrue {
		t.Error("neighboring slots were disturbed by the panic")
	}
}

func TestAuxiliaryPanicDoesNotFailRequest(t *testing.T) {
	claims := []string{"c1", "c2", "c3"}
	checker := &stubChecker{results: map[string]core.ClaimResult{}}
	for _, c := range claims {
		checker.results[c] = likelyTrueResult(c, 1)
	}
	driver := NewDriver(&stubTexts{transcript: "transcript"}, &panickyModel{stubModel{claims: claims}}, checker, Config{})

	result, err := driver.CheckVideo(context.Background(), videoURL)
	if err != nil {
		t.Fatalf("CheckVideo failed: %v", err)
	}
	if len(result.Keywords) != 0 {
		t.Errorf("keywords = %v, want empty", result.Keywords)
	}
	if result.ChannelType != "unknown" {
		t.Errorf("channel_type = %q, want unknown fallback", result.ChannelType)
	}
}

func TestDeterministicResults(t *testing.T) {
	claims := []string{"c1", "c2", "c3", "c4"}
	checker := &stubChecker{results: map[string]core.ClaimResult{
		"c1": likelyTrueResult("c1", 3),
		"c2": likelyTrueResult("c2", 1),
		"c4": likelyTrueResult("c4", 2),
	}}
	newDriver := func() *Driver {
		return NewDriver(&stubTexts{body: "body"}, &stubModel{claims: claims}, checker, Config{})
	}

	first, err := newDriver().CheckArticle(context.Background(), "https://news.example.com/a")
	if err != nil {
		t.Fatal(err)
	}
	second, err := newDriver().CheckArticle(context.Background(), "https://news.example.com/a")
	if err != nil {
		t.Fatal(err)
	}
	first.CreatedAt, second.CreatedAt = "", ""
	if !reflect.DeepEqual(first, second) {
		t.Errorf("two runs over identical inputs diverged:\n%+v\n%+v", first, second)
	}
}

func TestAggregateConfidence(t *testing.T) {
	claim := func(conf, evidences int) core.ClaimResult {
		r := likelyTrueResult("c", evidences)
		r.ConfidenceScore = conf
		if evidences == 0 {
			r.Result = core.ResultInsufficientEvidence
			r.Evidence = []core.Evidence{}
		}
		return r
	}

	if got := AggregateConfidence(nil); got != 0 {
		t.Errorf("empty: %d, want 0", got)
	}
	// Three claims at confidence 68 with 3 evidences each stay at 68.
	got := AggregateConfidence([]core.ClaimResult{claim(68, 3), claim(68, 3), claim(68, 3)})
	if got != 68 {
		t.Errorf("uniform: %d, want 68", got)
	}
	// A zero-confidence, zero-evidence claim is floored at 10.
	got = AggregateConfidence([]core.ClaimResult{claim(0, 0)})
	if got != 10 {
		t.Errorf("floored: %d, want 10", got)
	}
	// Heavier evidence pulls the mean toward the stronger claim:
	// claim A conf 80 ev 3 -> w = 4*4 = 16; claim B conf 20 ev 0... but a
	// confident evidence-free claim keeps its own confidence.
	got = AggregateConfidence([]core.ClaimResult{claim(80, 3), claim(20, 0)})
	// A: 80*16 = 1280; B: w = 1*1 = 1, 20*1 = 20; (1280+20)/17 = 76.47.
	if got != 76 {
		t.Errorf("weighted: %d, want 76", got)
	}
}

func TestSummaryLine(t *testing.T) {
	lt := core.ClaimResult{Result: core.ResultLikelyTrue}
	ie := core.ClaimResult{Result: core.ResultInsufficientEvidence}

	if got := SummaryLine(nil); got != "insufficient_claims: 0" {
		t.Errorf("empty: %q", got)
	}
	if got := SummaryLine([]core.ClaimResult{lt, ie}); got != "insufficient_claims: 2" {
		t.Errorf("two claims: %q", got)
	}
	if got := SummaryLine([]core.ClaimResult{lt, lt, ie, ie}); got != "50.0% of claims with evidence" {
		t.Errorf("four claims: %q", got)
	}
	if got := SummaryLine([]core.ClaimResult{lt, lt, lt}); got != "100.0% of claims with evidence" {
		t.Errorf("all true: %q", got)
	}
}
