package models_test

import (
	"testing"

	"github.com/UnknownOlympus/lookout/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestCoordinatesString(t *testing.T) {
	sample := models.LocationSample{Latitude: 37.42, Longitude: -122.08, Altitude: 10}

	assert.Equal(t, models.Coordinates{Latitude: 37.42, Longitude: -122.08}, sample.Coordinates())
	assert.Equal(t, "37.42,-122.08", sample.Coordinates().String())
	assert.Equal(t, "0,0", models.Coordinates{}.String())
}
