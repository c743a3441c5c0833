package search

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"factseeker/internal/logger"
)

// NaverProvider implements Provider using the Naver Open API news search.
type NaverProvider struct {
	clientID     string
	clientSecret string
	baseURL      string
	client       *http.Client
	rateLimit    time.Duration

	mu       sync.Mutex // guards lastCall; one instance serves concurrent claims
	lastCall time.Time
}

// NewNaverProvider creates a new Naver news search provider
func NewNaverProvider(clientID, clientSecret string) *NaverProvider {
	return &NaverProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      "https://openapi.naver.com/v1/search/news.json",
		client:       &http.Client{Timeout: 15 * time.Second},
		rateLimit:    100 * time.Millisecond,
	}
}

// GetName returns the name of this provider
func (n *NaverProvider) GetName() string {
	return "Naver News Search"
}

// throttle spaces calls at least rateLimit apart. Holding the lock through
// the sleep also serializes concurrent callers against the API.
func (n *NaverProvider) throttle() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if elapsed := time.Since(n.lastCall); elapsed < n.rateLimit {
		time.Sleep(n.rateLimit - elapsed)
	}
	n.lastCall = time.Now()
}

// Search performs a news search using the Naver Open API
func (n *NaverProvider) Search(ctx context.Context, query string, config Config) ([]Result, error) {
	n.throttle()

	display := config.MaxResults
	if display <= 0 {
		display = 10
	}
	if display > 100 {
		display = 100
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("display", strconv.Itoa(display))
	params.Set("sort", "sim")

	req, err := http.NewRequestWithContext(ctx, "GET", n.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Naver search request: %w", err)
	}
	req.Header.Set("X-Naver-Client-Id", n.clientID)
	req.Header.Set("X-Naver-Client-Secret", n.clientSecret)

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute Naver search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("naver search: %w", ErrRateLimited)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("naver search returned status %d: %w", resp.StatusCode, ErrProviderUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("naver search request failed with status: %d", resp.StatusCode)
	}

	var apiResponse struct {
		Items []struct {
			Title        string `json:"title"`
			OriginalLink string `json:"originallink"`
			Link         string `json:"link"`
			Description  string `json:"description"`
			PubDate      string `json:"pubDate"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("failed to parse Naver search response: %w", err)
	}

	var results []Result
	for i, item := range apiResponse.Items {
		link := item.OriginalLink
		if link == "" {
			link = item.Link
		}
		result := Result{
			URL:     link,
			Title:   stripSearchMarkup(item.Title),
			Snippet: stripSearchMarkup(item.Description),
			Domain:  extractDomain(link),
			Source:  "Naver",
			Rank:    i + 1,
		}
		if item.PubDate != "" {
			if published, err := time.Parse(time.RFC1123Z, item.PubDate); err == nil {
				result.PublishedAt = published
			}
		}
		results = append(results, result)
	}

	logger.Info("Naver news search completed", "query", query, "results_found", len(results))

	return results, nil
}

// stripSearchMarkup removes the <b> highlight tags and entity escapes the
// Naver API wraps around matched terms. Transport markup only; content is
// untouched.
func stripSearchMarkup(s string) string {
	s = strings.ReplaceAll(s, "<b>", "")
	s = strings.ReplaceAll(s, "</b>", "")
	return html.UnescapeString(s)
}

// extractDomain extracts the domain name from a URL
func extractDomain(urlStr string) string {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}

	domain := parsed.Hostname()
	// Remove www. prefix
	domain = strings.TrimPrefix(domain, "www.")

	return domain
}
