// Package ui defines the screen host the GPS screen draws on and a browser
// implementation of it.
package ui

import "errors"

// LabelHandle identifies a text label created by a Host.
type LabelHandle int

// ImageHandle identifies an image widget created by a Host.
type ImageHandle int

// ErrUnknownWidget is returned when a handle does not belong to the host.
var ErrUnknownWidget = errors.New("unknown widget handle")

// Host is the set of widget operations the screen needs.
// Widgets are addressed only through the handles the host returns.
type Host interface {
	CreateLabel(x, y, w, h int, text string) LabelHandle
	SetLabelText(handle LabelHandle, text string) error
	CreateImage(x, y, w, h int, url string) ImageHandle
	SetImageURL(handle ImageHandle, url string) error
	SetPadding(top, right, bottom, left int)
}
