package mapview

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	_ "golang.org/x/image/webp" // register WebP decoder
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 10 * time.Second
	// maxImageBytes bounds how much of a response body is decoded.
	maxImageBytes = 8 << 20
)

// Common errors for the HTTP provider.
var (
	ErrUnexpectedStatus = errors.New("map provider returned unexpected status")
	ErrMalformedImage   = errors.New("map provider returned a malformed image")
)

// HTTPClient defines the interface for making HTTP requests.
// This allows for easy mocking in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPProvider fetches static maps from any endpoint that accepts the classic
// center/zoom/size query parameters, including the Google Static Maps endpoint.
type HTTPProvider struct {
	client  HTTPClient    // HTTP client for making requests
	baseURL string        // Base URL of the static map endpoint
	apiKey  string        // Optional API key sent as the "key" parameter
	log     *slog.Logger  // Logger for logging operations
	limiter *rate.Limiter // Rate limiter
}

// NewHTTPProvider creates a new HTTP static map provider.
func NewHTTPProvider(baseURL, apiKey string, rateLimit int, timeout time.Duration, log *slog.Logger) *HTTPProvider {
	return &HTTPProvider{
		client: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(rateLimit), rateLimit),
	}
}

// NewHTTPProviderWithClient allows injecting custom HTTP client.
func NewHTTPProviderWithClient(
	client HTTPClient,
	baseURL string,
	apiKey string,
	limiter *rate.Limiter,
	log *slog.Logger,
) *HTTPProvider {
	return &HTTPProvider{
		client:  client,
		baseURL: baseURL,
		apiKey:  apiKey,
		log:     log,
		limiter: limiter,
	}
}

// StaticMap fetches and decodes a map image centered on req.Center.
func (hp *HTTPProvider) StaticMap(ctx context.Context, req Request) (image.Image, error) {
	if err := hp.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	reqURL, err := hp.buildURL(req)
	if err != nil {
		return nil, err
	}

	hp.log.DebugContext(ctx, "Fetching static map", "center", req.Center.String(), "zoom", req.Zoom)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "image/png, image/jpeg, image/gif, image/webp")
	httpReq.Header.Set("User-Agent", "Lookout/1.0 (https://github.com/UnknownOlympus/lookout)")

	resp, err := hp.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute map request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		hp.log.ErrorContext(ctx, "Map provider error", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	img, format, err := image.Decode(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedImage, err)
	}

	hp.log.DebugContext(ctx, "Static map decoded", "format", format, "bounds", img.Bounds().String())

	return img, nil
}

func (hp *HTTPProvider) buildURL(req Request) (string, error) {
	reqURL, err := url.Parse(hp.baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse base URL: %w", err)
	}

	query := reqURL.Query()
	query.Set("center", req.Center.String())
	query.Set("zoom", strconv.Itoa(req.Zoom))
	query.Set("size", sizeParam(req.Width, req.Height))
	query.Set("sensor", "false")
	if hp.apiKey != "" {
		query.Set("key", hp.apiKey)
	}
	reqURL.RawQuery = query.Encode()

	return reqURL.String(), nil
}
