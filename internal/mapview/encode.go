package mapview

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

const dataURLPrefix = "data:image/png;base64,"

// ErrEmptyBox is returned when the target widget has no area.
var ErrEmptyBox = errors.New("image widget has no area")

// EncodeDataURL scales img down to fit a width x height box, keeping its aspect
// ratio, and returns it as a PNG data URL a UI host can display directly.
func EncodeDataURL(img image.Image, width, height int) (string, error) {
	if width <= 0 || height <= 0 {
		return "", ErrEmptyBox
	}

	fitted := imaging.Fit(img, width, height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, imaging.PNG); err != nil {
		return "", fmt.Errorf("failed to encode map image: %w", err)
	}

	return dataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
