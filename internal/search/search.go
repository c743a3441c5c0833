package search

import (
	"context"
	"time"
)

// Provider defines the unified interface for news-search providers.
type Provider interface {
	// Search performs a search with configuration
	Search(ctx context.Context, query string, config Config) ([]Result, error)

	// GetName returns the name of the search provider
	GetName() string
}

// Config holds configuration for search requests
type Config struct {
	MaxResults int    // Maximum number of results to return
	Language   string // Language restrict (e.g. "lang_ko") where the provider supports it
	Country    string // Geolocation bias (e.g. "kr") where the provider supports it
}

// Result represents a unified search result
type Result struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Snippet     string    `json:"snippet"`
	Domain      string    `json:"domain"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	Source      string    `json:"source"` // Provider-specific source identifier
	Rank        int       `json:"rank"`   // Position in search results
}

// ProviderType represents the type of search provider
type ProviderType string

const (
	ProviderTypeNaver  ProviderType = "naver"
	ProviderTypeGoogle ProviderType = "google"
	ProviderTypeMock   ProviderType = "mock"
)

// ProviderFactory creates search providers based on type and configuration
type ProviderFactory struct{}

// NewProviderFactory creates a new provider factory
func NewProviderFactory() *ProviderFactory {
	return &ProviderFactory{}
}

// CreateProvider creates a search provider of the specified type
func (f *ProviderFactory) CreateProvider(providerType ProviderType, config map[string]string) (Provider, error) {
	switch providerType {
	case ProviderTypeNaver:
		clientID, exists := config["client_id"]
		if !exists || clientID == "" {
			return nil, ErrMissingCredentials
		}
		clientSecret, exists := config["client_secret"]
		if !exists || clientSecret == "" {
			return nil, ErrMissingCredentials
		}
		return NewNaverProvider(clientID, clientSecret), nil
	case ProviderTypeGoogle:
		apiKey, exists := config["api_key"]
		if !exists || apiKey == "" {
			return nil, ErrMissingAPIKey
		}
		searchID, exists := config["search_id"]
		if !exists || searchID == "" {
			return nil, ErrMissingSearchID
		}
		return NewGoogleProvider(apiKey, searchID), nil
	case ProviderTypeMock:
		return NewMockProvider(), nil
	default:
		return nil, ErrUnsupportedProvider
	}
}

// GetAvailableProviders returns a list of available provider types
func (f *ProviderFactory) GetAvailableProviders() []ProviderType {
	return []ProviderType{
		ProviderTypeNaver,
		ProviderTypeGoogle,
		ProviderTypeMock,
	}
}
