package search

import "errors"

var (
	// ErrMissingAPIKey is returned when a required API key is not provided
	ErrMissingAPIKey = errors.New("API key is required")

	// ErrMissingSearchID is returned when a required search ID is not provided
	ErrMissingSearchID = errors.New("search ID is required")

	// ErrMissingCredentials is returned when client credentials are not provided
	ErrMissingCredentials = errors.New("client credentials are required")

	// ErrUnsupportedProvider is returned when an unsupported provider type is specified
	ErrUnsupportedProvider = errors.New("unsupported search provider")

	// ErrRateLimited is returned when rate limits are exceeded
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrProviderUnavailable is returned when a provider service is unavailable
	ErrProviderUnavailable = errors.New("search provider is currently unavailable")
)
