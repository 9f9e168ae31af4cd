package models

import "time"

// LocationSample is a single position report produced by a location source.
// Samples are passed by value and never modified after they are produced.
type LocationSample struct {
	Latitude  float64   // Latitude in decimal degrees.
	Longitude float64   // Longitude in decimal degrees.
	Altitude  float64   // Altitude above mean sea level in meters.
	Speed     float64   // Ground speed in meters per second.
	Bearing   float64   // Course over ground in degrees.
	Timestamp time.Time // Time the fix was taken; zero when the source does not know it.
}

// Coordinates returns the horizontal position of the sample.
func (s LocationSample) Coordinates() Coordinates {
	return Coordinates{Latitude: s.Latitude, Longitude: s.Longitude}
}
