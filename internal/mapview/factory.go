package mapview

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"googlemaps.github.io/maps"
)

// ProviderType represents the type of static map provider.
type ProviderType string

const (
	// ProviderTypeGoogle represents the Google Static Maps API accessed through the Google Maps client.
	ProviderTypeGoogle ProviderType = "google"
	// ProviderTypeHTTP represents any static map service answering center/zoom/size GET requests.
	ProviderTypeHTTP ProviderType = "http"
)

// ProviderConfig holds configuration for creating a map provider.
type ProviderConfig struct {
	Type      ProviderType  // Type of provider to create
	APIKey    string        // API key (required by Google, optional for HTTP)
	BaseURL   string        // Endpoint of the HTTP provider
	RateLimit int           // Rate limit for requests per second
	Timeout   time.Duration // Per-request timeout of the HTTP provider
	Logger    *slog.Logger  // Logger for the provider
}

// NewProvider creates a map provider based on the provided configuration.
//
// Supported provider types:
// - "google": Google Static Maps API (requires API key)
// - "http": generic static map endpoint (e.g. a self-hosted tile renderer)
//
// Returns an error if the provider type is unsupported or if provider creation fails.
func NewProvider(config ProviderConfig) (Provider, error) {
	switch config.Type {
	case ProviderTypeGoogle:
		return newGoogleProvider(config)
	case ProviderTypeHTTP:
		return newHTTPProvider(config)
	default:
		return nil, fmt.Errorf("unsupported map provider type: %s", config.Type)
	}
}

// newGoogleProvider creates a Google Static Maps provider.
func newGoogleProvider(config ProviderConfig) (Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("API key is required for Google provider")
	}

	clientOpts := []maps.ClientOption{
		maps.WithAPIKey(config.APIKey),
	}

	if config.RateLimit > 0 {
		clientOpts = append(clientOpts, maps.WithRateLimit(config.RateLimit))
	}

	client, err := maps.NewClient(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Maps client: %w", err)
	}

	return NewGoogleProvider(client, config.Logger), nil
}

// newHTTPProvider creates a generic HTTP static map provider.
func newHTTPProvider(config ProviderConfig) (Provider, error) {
	if config.BaseURL == "" {
		return nil, errors.New("base URL is required for HTTP provider")
	}

	if config.RateLimit == 0 {
		config.RateLimit = 5
		config.Logger.Warn("Rate limit for map provider not set, set a default value", "value", config.RateLimit)
	}

	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	return NewHTTPProvider(config.BaseURL, config.APIKey, config.RateLimit, config.Timeout, config.Logger), nil
}
