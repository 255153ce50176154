// Package content defines the clipboard content model shared by every other
// package: a tagged union of plain text and raster images, plus the canonical
// fingerprint used for deduplication and echo suppression.
package content

import "image"

// Kind identifies the variant held by a Content value.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// Content is a single clipboard capture. Exactly one of Text or Image is
// meaningful, selected by Kind. Values are immutable once constructed.
type Content struct {
	Kind  Kind
	Text  string
	Image image.Image
}

// NewText returns a text Content.
func NewText(s string) Content {
	return Content{Kind: KindText, Text: s}
}

// NewImage returns an image Content.
func NewImage(img image.Image) Content {
	return Content{Kind: KindImage, Image: img}
}

// Empty reports whether the content carries nothing worth syncing: an empty
// string, a nil image, or an image with a degenerate bounding box. Callers
// must check this before fingerprinting or encoding.
func (c Content) Empty() bool {
	switch c.Kind {
	case KindText:
		return c.Text == ""
	case KindImage:
		return c.Image == nil || c.Image.Bounds().Dx() <= 0 || c.Image.Bounds().Dy() <= 0
	default:
		return true
	}
}
