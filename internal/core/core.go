package core

// Result labels for a fact-checked claim.
const (
	ResultLikelyTrue           = "likely_true"           // retrievable corroboration exists
	ResultInsufficientEvidence = "insufficient_evidence" // no accepted evidence
	ResultError                = "error"                 // processor failed; slot preserved
)

// Relevance values produced by the judge.
const (
	RelevanceYes = "yes"
	RelevanceNo  = "no"
)

// Document is one body of text plus its source metadata. Article indices
// hold one Document per article; title partitions hold one per title.
type Document struct {
	Content  string            `json:"content"`  // Plain text content
	Metadata map[string]string `json:"metadata"` // At least "url"; titles also carry "title" and "source_title"
}

// URL returns the document's source URL, or "" when unset.
func (d Document) URL() string {
	return d.Metadata["url"]
}

// TitleEntry is a single indexed news title inside a partition.
type TitleEntry struct {
	Title string `json:"title"` // Cleaned news title
	URL   string `json:"url"`   // Article URL the title points to
}

// SearchHit is one raw web-search result.
type SearchHit struct {
	Title      string `json:"title"`       // Raw title as returned by the provider
	CleanTitle string `json:"clean_title"` // Title after bracket/HTML cleanup
	URL        string `json:"url"`         // Result link
	Snippet    string `json:"snippet"`     // Provider snippet, may be empty
	Rank       int    `json:"rank"`        // 0-based position in the provider response
	Provider   string `json:"provider"`    // Provider name (naver, google, mock)
}

// EvidenceCandidate is a materialized article body awaiting judgment.
type EvidenceCandidate struct {
	URL         string // Article URL (unique within one retrieval)
	Body        string // Concatenated article body text
	SourceTitle string // Matched title from the partition index, may be empty
}

// Verdict is the judge's structured answer for one (claim, body) pair.
type Verdict struct {
	Relevance       string // "yes" or "no"
	FactDescription string // What the article says about the claim
	Justification   string // Why the article supports or refutes it
	Snippet         string // Key sentence quoted from the body
}

// Evidence is an accepted verdict tied to its source URL.
type Evidence struct {
	URL             string `json:"url"`
	Relevance       string `json:"relevance"`
	FactDescription string `json:"fact_check_result"`
	Justification   string `json:"justification"`
	Snippet         string `json:"snippet"`
	SourceTitle     string `json:"-"` // Partition title used for diversity scoring; not serialized
}

// ClaimResult is the outcome for one claim. The claims array in a
// PipelineResult holds exactly one ClaimResult per reduced claim,
// in input order; errors never drop a slot.
type ClaimResult struct {
	Claim           string     `json:"claim"`
	Result          string     `json:"result"`           // likely_true | insufficient_evidence | error
	ConfidenceScore int        `json:"confidence_score"` // 0..100
	Evidence        []Evidence `json:"evidence"`         // at most 3 entries, acceptance order
	Error           string     `json:"error,omitempty"`  // "<Type>: <message>" when Result is error
}

// NewErrorClaimResult builds the error-tagged result for a claim whose
// processing failed. The evidence list is empty but present.
func NewErrorClaimResult(claim, detail string) ClaimResult {
	return ClaimResult{
		Claim:           claim,
		Result:          ResultError,
		ConfidenceScore: 0,
		Evidence:        []Evidence{},
		Error:           detail,
	}
}

// PipelineResult is the final JSON document returned for one request.
// Exactly one of the video/article field pairs is populated.
type PipelineResult struct {
	VideoID           string        `json:"video_id,omitempty"`
	VideoURL          string        `json:"video_url,omitempty"`
	VideoScore        *int          `json:"video_total_confidence_score,omitempty"`
	ArticleURL        string        `json:"article_url,omitempty"`
	ArticleScore      *int          `json:"article_total_confidence_score,omitempty"`
	Summary           string        `json:"summary"`
	Claims            []ClaimResult `json:"claims"`
	Keywords          []string      `json:"keywords"`
	ThreeLineSummary  string        `json:"three_line_summary"`
	ChannelType       string        `json:"channel_type,omitempty"`
	ChannelTypeReason string        `json:"channel_type_reason,omitempty"`
	CreatedAt         string        `json:"created_at"` // RFC 3339 UTC
}

// AggregateScore returns whichever total confidence field is set.
func (r *PipelineResult) AggregateScore() int {
	if r.VideoScore != nil {
		return *r.VideoScore
	}
	if r.ArticleScore != nil {
		return *r.ArticleScore
	}
	return 0
}

// Source returns the request's source identifier (video id or article URL).
func (r *PipelineResult) Source() string {
	if r.VideoID != "" {
		return r.VideoID
	}
	return r.ArticleURL
}
