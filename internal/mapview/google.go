package mapview

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strconv"

	"googlemaps.github.io/maps"
)

// GoogleProvider fetches static maps through the Google Maps client.
type GoogleProvider struct {
	client GoogleAPIClient // client is the Google Maps API client
	log    *slog.Logger    // log is the logger for logging operations
}

type GoogleAPIClient interface {
	StaticMap(ctx context.Context, r *maps.StaticMapRequest) (image.Image, error)
}

// ErrEmptyResponse is returned when the Google Maps API responds without an image.
var ErrEmptyResponse = errors.New("get empty response from Google Static Maps API")

// NewGoogleProvider wraps a Google Maps client. Rate limiting is configured on the client itself.
func NewGoogleProvider(client GoogleAPIClient, log *slog.Logger) *GoogleProvider {
	return &GoogleProvider{client: client, log: log}
}

// StaticMap requests a map centered on req.Center from the Google Static Maps API.
func (gp *GoogleProvider) StaticMap(ctx context.Context, req Request) (image.Image, error) {
	gp.log.DebugContext(ctx, "Fetching static map from Google", "center", req.Center.String(), "zoom", req.Zoom)

	mapReq := maps.StaticMapRequest{
		Center: req.Center.String(),
		Zoom:   req.Zoom,
		Size:   sizeParam(req.Width, req.Height),
	}
	img, err := gp.client.StaticMap(ctx, &mapReq)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch static map: %w", err)
	}

	if img == nil {
		return nil, ErrEmptyResponse
	}

	return img, nil
}

func sizeParam(width, height int) string {
	return strconv.Itoa(width) + "x" + strconv.Itoa(height)
}
