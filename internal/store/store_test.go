package store

import (
	"fmt"
	"testing"

	"factseeker/internal/core"
)

func sampleResult(videoID string, score int) *core.PipelineResult {
	return &core.PipelineResult{
		VideoID:    videoID,
		VideoURL:   "https://www.youtube.com/watch?v=" + videoID,
		VideoScore: &score,
		Summary:    "100.0% of claims with evidence",
		Claims: []core.ClaimResult{{
			Claim:           "the sky is blue",
			Result:          core.ResultLikelyTrue,
			ConfidenceScore: score,
			Evidence: []core.Evidence{{
				URL:           "https://news.example.com/sky",
				Relevance:     core.RelevanceYes,
				Justification: "the article confirms it",
			}},
		}},
		Keywords:         []string{"sky"},
		ThreeLineSummary: "One.\nTwo.\nThree.",
		CreatedAt:        "2025-08-24T12:00:00Z",
	}
}

func TestSaveAndGetResult(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer s.Close()

	id, err := s.SaveResult(sampleResult("abcdefghijk", 68))
	if err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}
	if id == "" {
		t.Fatal("SaveResult returned empty id")
	}

	stored, err := s.GetResult(id)
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if stored == nil {
		t.Fatal("GetResult returned nil for a saved id")
	}
	if stored.Source != "abcdefghijk" {
		t.Errorf("source = %q, want video id", stored.Source)
	}
	if stored.Score != 68 {
		t.Errorf("score = %d, want 68", stored.Score)
	}
	if stored.Result == nil || len(stored.Result.Claims) != 1 {
		t.Fatalf("stored result payload lost: %+v", stored.Result)
	}
	if stored.Result.Claims[0].Evidence[0].URL != "https://news.example.com/sky" {
		t.Error("evidence did not round-trip")
	}
}

func TestGetResultMissing(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	stored, err := s.GetResult("no-such-id")
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if stored != nil {
		t.Errorf("expected nil for a missing id, got %+v", stored)
	}
}

func TestGetRecentResultsNewestFirst(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	for i := 0; i < 5; i++ {
		if _, err := s.SaveResult(sampleResult(fmt.Sprintf("video%06d", i), i*10)); err != nil {
			t.Fatal(err)
		}
	}

	recent, err := s.GetRecentResults(3)
	if err != nil {
		t.Fatalf("GetRecentResults failed: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("got %d results, want 3", len(recent))
	}
	for i := 1; i < len(recent); i++ {
		if recent[i].CreatedAt.After(recent[i-1].CreatedAt) {
			t.Error("results are not ordered newest first")
		}
	}
}

func TestStatsAndClear(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := s.SaveResult(sampleResult("abcdefghijk", 50)); err != nil {
		t.Fatal(err)
	}

	stats, err := s.GetStats()
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.ResultCount != 1 {
		t.Errorf("result count = %d, want 1", stats.ResultCount)
	}
	if stats.DBSizeBytes == 0 {
		t.Error("db size not reported")
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	stats, err = s.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.ResultCount != 0 {
		t.Errorf("result count after clear = %d, want 0", stats.ResultCount)
	}
}
