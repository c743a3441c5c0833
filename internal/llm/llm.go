package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/viper"
	"google.golang.org/genai"

	"factseeker/internal/config"
	"factseeker/internal/logger"
)

const (
	// DefaultModel is the default Gemini model for all text chains.
	DefaultModel = "gemini-flash-lite-latest"
	// DefaultEmbeddingModel is the default model for generating embeddings.
	DefaultEmbeddingModel = "gemini-embedding-001"
	// DefaultEmbeddingDimensions is the output dimension for embeddings (Matryoshka).
	DefaultEmbeddingDimensions = int32(768)
	// maxEmbedChars caps text length sent to the embedding model.
	maxEmbedChars = 8000
)

const (
	searchQueryPromptTemplate = `Turn the following claim into one short web-search query of at most eight words. Answer with the query only, no quotes and no explanation.

Claim: %s`

	extractClaimsPromptTemplate = `List every verifiable factual claim made in the following text. Write one claim per line, as a short complete sentence. Skip opinions, predictions, and rhetorical questions. Do not number the lines and do not add commentary.

Text:
%s`

	reduceClaimsPromptTemplate = `The following JSON array contains factual claims, some of which repeat the same assertion in different words. Merge duplicates and return the distinct claims as a JSON array of strings. Return only the JSON array.

%s`

	judgePromptTemplate = `You are verifying a claim against a news article. Answer using exactly these four lines:

RELEVANCE: yes or no - does the article address this claim?
FACT_DESCRIPTION: one sentence on what the article states about the claim
JUSTIFICATION: one sentence on why the article supports or contradicts the claim
SNIPPET: the single sentence from the article that matters most

Claim: %s

Article:
%s`

	keywordsPromptTemplate = `Extract at most eight topical keywords from the following text. Answer with a single comma-separated line, no numbering, no commentary.

Text:
%s`

	threeLinePromptTemplate = `Summarize the following text in exactly three lines, each a single short sentence. Answer with the three lines only.

Text:
%s`

	channelTypePromptTemplate = `Classify what kind of channel produced the following transcript. Answer using exactly these two lines:

CHANNEL_TYPE: one of news, commentary, entertainment, personal, unknown
REASON: one sentence explaining the classification

Transcript:
%s`
)

// Client wraps the Gemini SDK for the chains and embeddings the pipeline
// consumes.
type Client struct {
	apiKey    string
	modelName string
	gClient   *genai.Client
}

// NewClient creates a new LLM client.
// It supports multiple ways to get the API key (in order of preference):
// 1. Environment variable: GEMINI_API_KEY (or alternatives)
// 2. Viper configuration: ai.gemini.api_key
func NewClient(modelName string) (*Client, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		if apiKey = os.Getenv("GOOGLE_GEMINI_API_KEY"); apiKey == "" {
			if apiKey = os.Getenv("GOOGLE_AI_API_KEY"); apiKey == "" {
				apiKey = viper.GetString("ai.gemini.api_key")
			}
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required. Set GEMINI_API_KEY environment variable or ai.gemini.api_key in config file")
	}

	if modelName == "" {
		modelName = viper.GetString("ai.gemini.model")
		if modelName == "" {
			modelName = DefaultModel
		}
	}

	ctx := context.Background()
	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		apiKey:    apiKey,
		modelName: modelName,
		gClient:   gClient,
	}, nil
}

// Close releases client resources. The SDK client needs no explicit close;
// the method exists so callers can defer it uniformly.
func (c *Client) Close() {}

// generateContent wraps the SDK's GenerateContent call for a single user
// prompt.
func (c *Client) generateContent(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	resp, err := c.gClient.Models.GenerateContent(ctx, c.modelName, contents, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return text, nil
}

// SummarizeSearchQuery condenses a claim into a short search query.
func (c *Client) SummarizeSearchQuery(ctx context.Context, claim string) (string, error) {
	text, err := c.generateContent(ctx, fmt.Sprintf(searchQueryPromptTemplate, claim))
	if err != nil {
		return "", err
	}
	query := strings.TrimSpace(text)
	query = strings.Trim(query, "\"'")
	if idx := strings.IndexByte(query, '\n'); idx >= 0 {
		query = strings.TrimSpace(query[:idx])
	}
	if query == "" {
		return "", fmt.Errorf("empty query from model")
	}
	return query, nil
}

// ExtractClaims pulls the verifiable claims out of a source text, one per
// line of model output.
func (c *Client) ExtractClaims(ctx context.Context, sourceText string) ([]string, error) {
	text, err := c.generateContent(ctx, fmt.Sprintf(extractClaimsPromptTemplate, sourceText))
	if err != nil {
		return nil, err
	}
	return parseClaimLines(text), nil
}

// ReduceClaims collapses near-duplicate claims. The model is asked for a
// JSON array; the reply is parsed JSON-array-first with a line-split
// fallback that rejects code-fence artifacts.
func (c *Client) ReduceClaims(ctx context.Context, claims []string) ([]string, error) {
	claimsJSON, err := json.MarshalIndent(claims, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode claims: %w", err)
	}
	text, err := c.generateContent(ctx, fmt.Sprintf(reduceClaimsPromptTemplate, string(claimsJSON)))
	if err != nil {
		return nil, err
	}
	return parseReducedClaims(text), nil
}

// EvaluateClaim asks the model to judge a claim against an article body.
// The raw reply follows the RELEVANCE/FACT_DESCRIPTION/JUSTIFICATION/SNIPPET
// line grammar; parsing belongs to the judge package.
func (c *Client) EvaluateClaim(ctx context.Context, claim, body string) (string, error) {
	return c.generateContent(ctx, fmt.Sprintf(judgePromptTemplate, claim, body))
}

// ExtractKeywords returns topical keywords for a source text.
func (c *Client) ExtractKeywords(ctx context.Context, sourceText string) ([]string, error) {
	text, err := c.generateContent(ctx, fmt.Sprintf(keywordsPromptTemplate, sourceText))
	if err != nil {
		return nil, err
	}
	return parseKeywordList(text), nil
}

// ThreeLineSummary returns a three-line summary of a source text.
func (c *Client) ThreeLineSummary(ctx context.Context, sourceText string) (string, error) {
	text, err := c.generateContent(ctx, fmt.Sprintf(threeLinePromptTemplate, sourceText))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// ClassifyChannelType classifies the channel behind a transcript. Parse
// misses fall back to "unknown" rather than erroring.
func (c *Client) ClassifyChannelType(ctx context.Context, transcript string) (string, string, error) {
	text, err := c.generateContent(ctx, fmt.Sprintf(channelTypePromptTemplate, transcript))
	if err != nil {
		return "", "", err
	}
	channelType, reason := parseChannelType(text)
	return channelType, reason, nil
}

// EmbedDocuments embeds a batch of texts into 768-dimensional vectors.
// Transient failures are retried twice with backoff (0.5s then 1.0s); each
// attempt is bounded by the configured embedding timeout.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		text = truncateUTF8(text, maxEmbedChars)
		contents = append(contents, &genai.Content{
			Parts: []*genai.Part{{Text: text}},
			Role:  "user",
		})
	}

	resp, err := c.embedWithRetry(ctx, contents)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(resp.Embeddings))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("no embedding values returned for text %d", i)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// EmbedQuery embeds a single text.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// truncateUTF8 cuts s to at most limit bytes without splitting a rune.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

var embedBackoff = []time.Duration{500 * time.Millisecond, time.Second}

func (c *Client) embedWithRetry(ctx context.Context, contents []*genai.Content) (*genai.EmbedContentResponse, error) {
	dims := DefaultEmbeddingDimensions
	embedConfig := &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	}
	model := viper.GetString("ai.gemini.embedding_model")
	if model == "" {
		model = DefaultEmbeddingModel
	}

	var lastErr error
	for attempt := 0; attempt <= len(embedBackoff); attempt++ {
		if attempt > 0 {
			logger.Warn("Embedding call failed, retrying", "attempt", attempt, "error", lastErr.Error())
			select {
			case <-time.After(embedBackoff[attempt-1]):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, config.EmbeddingTimeout())
		resp, err := c.gClient.Models.EmbedContent(callCtx, model, contents, embedConfig)
		cancel()
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("embedding failed after retries: %w", lastErr)
}

// parseClaimLines splits line-delimited model output into claim strings.
func parseClaimLines(text string) []string {
	claims := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		claims = append(claims, line)
	}
	return claims
}

var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\[.*?\\])\\s*```")

// parseReducedClaims parses the reducer's reply. A JSON array is accepted
// either bare or inside a fenced code block; when neither parses, the reply
// is split into lines, dropping fence artifacts and bare brackets.
func parseReducedClaims(text string) []string {
	trimmed := strings.TrimSpace(text)

	candidate := trimmed
	if m := fencedJSONPattern.FindStringSubmatch(trimmed); m != nil {
		candidate = m[1]
	}
	var parsed []string
	if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
		claims := []string{}
		for _, claim := range parsed {
			if claim = strings.TrimSpace(claim); claim != "" {
				claims = append(claims, claim)
			}
		}
		return claims
	}

	claims := []string{}
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") || line == "[" || line == "]" {
			continue
		}
		claims = append(claims, line)
	}
	return claims
}

// parseKeywordList splits a comma- or newline-separated keyword reply.
func parseKeywordList(text string) []string {
	text = strings.ReplaceAll(text, "\n", ",")
	keywords := []string{}
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		part = strings.Trim(part, "\"'")
		if part == "" || strings.HasPrefix(part, "```") {
			continue
		}
		keywords = append(keywords, part)
	}
	return keywords
}

// parseChannelType reads the CHANNEL_TYPE/REASON line grammar.
func parseChannelType(text string) (string, string) {
	channelType := "unknown"
	reason := "no classification basis found in model output"
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "CHANNEL_TYPE:") {
			if v := strings.TrimSpace(strings.TrimPrefix(line, "CHANNEL_TYPE:")); v != "" {
				channelType = v
			}
		} else if strings.HasPrefix(line, "REASON:") {
			if v := strings.TrimSpace(strings.TrimPrefix(line, "REASON:")); v != "" {
				reason = v
			}
		}
	}
	return channelType, reason
}
