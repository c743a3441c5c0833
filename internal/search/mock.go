package search

import (
	"context"
)

// MockProvider implements Provider for testing purposes
type MockProvider struct {
	name    string
	results []Result
	err     error
}

// NewMockProvider creates a new mock search provider with canned results
func NewMockProvider() *MockProvider {
	return &MockProvider{
		name: "Mock",
		results: []Result{
			{
				URL:     "https://example.com/article1",
				Title:   "Example Article 1",
				Snippet: "This is a mock search result for testing purposes.",
				Domain:  "example.com",
				Source:  "Mock",
				Rank:    1,
			},
			{
				URL:     "https://test.org/article2",
				Title:   "Test Article 2",
				Snippet: "Another mock search result with different content.",
				Domain:  "test.org",
				Source:  "Mock",
				Rank:    2,
			},
			{
				URL:     "https://demo.net/article3",
				Title:   "Demo Article 3",
				Snippet: "Third mock result to simulate multiple search results.",
				Domain:  "demo.net",
				Source:  "Mock",
				Rank:    3,
			},
		},
	}
}

// NewMockProviderWithResults creates a mock provider returning the given results
func NewMockProviderWithResults(results []Result) *MockProvider {
	return &MockProvider{name: "Mock", results: results}
}

// GetName returns the name of this provider
func (m *MockProvider) GetName() string {
	return m.name
}

// Search returns the configured mock results, trimmed to MaxResults
func (m *MockProvider) Search(ctx context.Context, query string, config Config) ([]Result, error) {
	if m.err != nil {
		return nil, m.err
	}

	maxResults := config.MaxResults
	if maxResults <= 0 || maxResults > len(m.results) {
		maxResults = len(m.results)
	}

	results := make([]Result, maxResults)
	copy(results, m.results[:maxResults])
	return results, nil
}

// SetResults allows customization of mock results for testing
func (m *MockProvider) SetResults(results []Result) {
	m.results = results
}

// SetName allows customization of provider name for testing
func (m *MockProvider) SetName(name string) {
	m.name = name
}

// SetError makes subsequent searches fail with the given error
func (m *MockProvider) SetError(err error) {
	m.err = err
}
