package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"factseeker/internal/logger"
)

// GoogleProvider implements Provider using Google Custom Search API
type GoogleProvider struct {
	apiKey    string
	searchID  string
	baseURL   string
	client    *http.Client
	rateLimit time.Duration

	mu       sync.Mutex // guards lastCall; one instance serves concurrent claims
	lastCall time.Time
}

// NewGoogleProvider creates a new Google Custom Search provider
func NewGoogleProvider(apiKey, searchID string) *GoogleProvider {
	return &GoogleProvider{
		apiKey:    apiKey,
		searchID:  searchID,
		baseURL:   "https://www.googleapis.com/customsearch/v1",
		client:    &http.Client{Timeout: 15 * time.Second},
		rateLimit: 100 * time.Millisecond, // Google CSE has generous rate limits
	}
}

// GetName returns the name of this provider
func (g *GoogleProvider) GetName() string {
	return "Google Custom Search"
}

// throttle spaces calls at least rateLimit apart. Holding the lock through
// the sleep also serializes concurrent callers against the API.
func (g *GoogleProvider) throttle() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if elapsed := time.Since(g.lastCall); elapsed < g.rateLimit {
		time.Sleep(g.rateLimit - elapsed)
	}
	g.lastCall = time.Now()
}

// Search performs a search using Google Custom Search API
func (g *GoogleProvider) Search(ctx context.Context, query string, config Config) ([]Result, error) {
	g.throttle()

	maxResults := config.MaxResults
	if maxResults <= 0 || maxResults > 10 {
		maxResults = 10 // Google CSE allows max 10 results per request
	}

	params := url.Values{}
	params.Set("key", g.apiKey)
	params.Set("cx", g.searchID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(maxResults))
	params.Set("safe", "off")
	params.Set("hq", "site:news")
	if config.Country != "" {
		params.Set("gl", config.Country)
	}
	if config.Language != "" {
		params.Set("lr", config.Language)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google CSE request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute Google CSE request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("google CSE: %w", ErrRateLimited)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("google CSE returned status %d: %w", resp.StatusCode, ErrProviderUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google CSE request failed with status: %d", resp.StatusCode)
	}

	// Parse JSON response
	var apiResponse struct {
		Items []struct {
			Title       string `json:"title"`
			Link        string `json:"link"`
			Snippet     string `json:"snippet"`
			DisplayLink string `json:"displayLink"`
		} `json:"items"`
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error,omitempty"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("failed to parse Google CSE response: %w", err)
	}

	// Check for API errors
	if apiResponse.Error.Code != 0 {
		return nil, fmt.Errorf("google CSE API error (%d): %s", apiResponse.Error.Code, apiResponse.Error.Message)
	}

	// Convert to Result format
	var results []Result
	for i, item := range apiResponse.Items {
		domain := item.DisplayLink
		if domain == "" {
			domain = extractDomain(item.Link)
		}
		results = append(results, Result{
			URL:     item.Link,
			Title:   item.Title,
			Snippet: item.Snippet,
			Domain:  domain,
			Source:  "Google",
			Rank:    i + 1,
		})
	}

	logger.Info("Google Custom Search completed", "query", query, "results_found", len(results))

	return results, nil
}
