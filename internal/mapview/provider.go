package mapview

import (
	"context"
	"image"

	"github.com/UnknownOlympus/lookout/internal/models"
)

// Request describes the static map to render.
type Request struct {
	Center models.Coordinates // Center of the map.
	Zoom   int                // Zoom level, 0 is the whole world.
	Width  int                // Width of the image in pixels.
	Height int                // Height of the image in pixels.
}

// Provider is an interface that defines a method for fetching a static map image.
// StaticMap must honor ctx cancellation: a cancelled fetch returns an error and no image.
type Provider interface {
	StaticMap(ctx context.Context, req Request) (image.Image, error)
}
