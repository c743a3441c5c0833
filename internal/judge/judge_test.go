package judge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"factseeker/internal/core"
)

type stubModel struct {
	reply string
	err   error
}

func (m *stubModel) EvaluateClaim(ctx context.Context, claim, body string) (string, error) {
	return m.reply, m.err
}

func TestEvaluateAcceptsCompleteVerdict(t *testing.T) {
	j := New(&stubModel{reply: `RELEVANCE: yes
FACT_DESCRIPTION: The article confirms the rate was held at 3.5 percent.
JUSTIFICATION: The decision matches the claim directly.
SNIPPET: The bank held its policy rate at 3.5 percent.`})

	verdict := j.Evaluate(context.Background(), "The rate was held.", "body")
	if verdict.Relevance != core.RelevanceYes {
		t.Errorf("Relevance = %q, want yes", verdict.Relevance)
	}
	if verdict.FactDescription == "" || verdict.Justification == "" || verdict.Snippet == "" {
		t.Errorf("Expected all fields populated: %+v", verdict)
	}
}

func TestEvaluateModelErrorIsNo(t *testing.T) {
	j := New(&stubModel{err: errors.New("model down")})

	verdict := j.Evaluate(context.Background(), "claim", "body")
	if verdict.Relevance != core.RelevanceNo {
		t.Errorf("Relevance = %q, want no", verdict.Relevance)
	}
}

func TestParseVerdictMissingRelevanceIsNo(t *testing.T) {
	verdict := ParseVerdict(`FACT_DESCRIPTION: something
JUSTIFICATION: something else`)
	if verdict.Relevance != core.RelevanceNo {
		t.Errorf("Relevance = %q, want no", verdict.Relevance)
	}
}

func TestParseVerdictMissingJustificationIsNo(t *testing.T) {
	verdict := ParseVerdict(`RELEVANCE: yes
FACT_DESCRIPTION: something`)
	if verdict.Relevance != core.RelevanceNo {
		t.Errorf("Relevance = %q, want no", verdict.Relevance)
	}
}

func TestParseVerdictNegative(t *testing.T) {
	verdict := ParseVerdict(`RELEVANCE: no
JUSTIFICATION: The article covers a different event.`)
	if verdict.Relevance != core.RelevanceNo {
		t.Errorf("Relevance = %q, want no", verdict.Relevance)
	}
}

func TestParseVerdictToleratesNoiseAndCase(t *testing.T) {
	verdict := ParseVerdict(`Here is my assessment:
RELEVANCE: Yes.
JUSTIFICATION: Direct match.
CONFIDENCE: high`)
	if verdict.Relevance != core.RelevanceYes {
		t.Errorf("Relevance = %q, want yes", verdict.Relevance)
	}
}

func TestParseVerdictLabelsCaseInsensitive(t *testing.T) {
	verdict := ParseVerdict(`relevance: yes
Fact_Description: The article states the figure.
justification: The numbers line up.
Snippet: The figure was 3.5 percent.`)
	if verdict.Relevance != core.RelevanceYes {
		t.Errorf("Relevance = %q, want yes", verdict.Relevance)
	}
	if verdict.FactDescription == "" || verdict.Justification == "" || verdict.Snippet == "" {
		t.Errorf("Expected lower-case labels parsed: %+v", verdict)
	}
}

func TestParseVerdictKeepsColonsInValues(t *testing.T) {
	verdict := ParseVerdict(`RELEVANCE: yes
JUSTIFICATION: Quote: "rates were held" appears verbatim.`)
	if !strings.Contains(verdict.Justification, `Quote: "rates were held"`) {
		t.Errorf("Justification lost its colon content: %q", verdict.Justification)
	}
}

func TestCleanEvidenceText(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "reporter byline removed",
			input: "이번 사건은 매우 심각한 문제입니다. 김철수 기자가 현장에서 확인했습니다.",
			want:  "이번 사건은 매우 심각한 문제입니다.",
		},
		{
			name:  "html tags removed",
			input: "<p>이것은 <strong>중요한</strong> 뉴스입니다.</p>",
			want:  "이것은 중요한 뉴스입니다.",
		},
		{
			name:  "copyright footer removed",
			input: "경제 뉴스입니다. Copyright © 2024 한국경제. All rights reserved.",
			want:  "경제 뉴스입니다.",
		},
		{
			name:  "outlet bracket removed",
			input: "[조선일보] 이번 사건은 매우 심각한 문제입니다.",
			want:  "이번 사건은 매우 심각한 문제입니다.",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CleanEvidenceText(tc.input)
			if !strings.Contains(got, strings.TrimSuffix(tc.want, ".")) {
				t.Errorf("CleanEvidenceText(%q) = %q, want it to contain %q", tc.input, got, tc.want)
			}
			if strings.Contains(got, "기자") || strings.Contains(got, "<") || strings.Contains(got, "Copyright") || strings.Contains(got, "[") {
				t.Errorf("Boilerplate survived cleaning: %q", got)
			}
		})
	}
}

func TestCleanEvidenceTextCombined(t *testing.T) {
	input := "<p>[연합뉴스] 이번 사건은 매우 심각한 문제입니다. 김철수 기자. Copyright © 2024 연합뉴스.</p>"
	got := CleanEvidenceText(input)
	if !strings.Contains(got, "이번 사건은 매우 심각한 문제입니다") {
		t.Errorf("Expected content preserved, got %q", got)
	}
	for _, leftover := range []string{"기자", "Copyright", "[", "<"} {
		if strings.Contains(got, leftover) {
			t.Errorf("Expected %q removed, got %q", leftover, got)
		}
	}
}
