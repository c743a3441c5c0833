// Package judge adapts the language model into a structured claim-vs-article
// verdict. The model replies in a fixed line-label grammar; anything the
// parser cannot trust downgrades to a "no" verdict rather than an error.
package judge

import (
	"context"
	"regexp"
	"strings"

	"factseeker/internal/core"
	"factseeker/internal/logger"
)

// Model is the single LLM call the judge needs; satisfied by llm.Client.
type Model interface {
	EvaluateClaim(ctx context.Context, claim, body string) (string, error)
}

// Judge evaluates claims against article bodies.
type Judge struct {
	model Model
}

// New creates a Judge backed by model.
func New(model Model) *Judge {
	return &Judge{model: model}
}

// Evaluate runs one claim/body judgment. It never returns an error: model
// failures and unparseable replies come back as relevance "no" so a flaky
// call costs one candidate, not the claim.
func (j *Judge) Evaluate(ctx context.Context, claim, body string) core.Verdict {
	reply, err := j.model.EvaluateClaim(ctx, claim, body)
	if err != nil {
		logger.Warn("Judge call failed, dropping candidate", "error", err.Error())
		return core.Verdict{Relevance: core.RelevanceNo}
	}
	return ParseVerdict(reply)
}

// ParseVerdict reads the RELEVANCE/FACT_DESCRIPTION/JUSTIFICATION/SNIPPET
// line grammar. Labels match case-insensitively; unknown lines are ignored.
// A verdict missing its relevance or justification line is downgraded to
// "no".
func ParseVerdict(reply string) core.Verdict {
	var (
		verdict       core.Verdict
		haveRelevance bool
	)
	for _, line := range strings.Split(reply, "\n") {
		label, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		switch strings.ToUpper(strings.TrimSpace(label)) {
		case "RELEVANCE":
			value = strings.TrimSpace(value)
			if value != "" {
				haveRelevance = true
				if strings.Contains(strings.ToLower(value), core.RelevanceYes) {
					verdict.Relevance = core.RelevanceYes
				} else {
					verdict.Relevance = core.RelevanceNo
				}
			}
		case "FACT_DESCRIPTION":
			verdict.FactDescription = CleanEvidenceText(value)
		case "JUSTIFICATION":
			verdict.Justification = CleanEvidenceText(value)
		case "SNIPPET":
			verdict.Snippet = CleanEvidenceText(value)
		}
	}

	if !haveRelevance || verdict.Justification == "" {
		verdict.Relevance = core.RelevanceNo
	}
	return verdict
}

var (
	htmlTagRegex    = regexp.MustCompile(`<[^>]+>`)
	bracketTagRegex = regexp.MustCompile(`\[[^\]]*\]`)
	copyrightRegex  = regexp.MustCompile(`(?i)(copyright|all rights reserved|ⓒ|©|저작권자|무단\s*전재|재배포\s*금지)[^.!?]*[.!?]?`)
	reporterRegex   = regexp.MustCompile(`[^.!?]*기자[^.!?]*[.!?]?`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// CleanEvidenceText strips news boilerplate out of evidence text: HTML
// tags, [outlet] prefixes, copyright footers, and reporter byline
// sentences.
func CleanEvidenceText(s string) string {
	s = htmlTagRegex.ReplaceAllString(s, " ")
	s = bracketTagRegex.ReplaceAllString(s, " ")
	s = copyrightRegex.ReplaceAllString(s, " ")
	s = reporterRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}
