// Package clip provides a unified interface to the system clipboard across
// platforms. Build constraints select the appropriate implementation:
//
//	clip_darwin.go   — macOS via golang.design/x/clipboard + cgo changeCount
//	clip_windows.go  — Windows via golang.design/x/clipboard + AddClipboardFormatListener
//	clip_linux.go    — Linux via golang.design/x/clipboard, polling only
//	clip_other.go    — headless / container stub
package clip

import (
	"bytes"
	"fmt"
	"image/png"

	"golang.design/x/clipboard"

	"go.klb.dev/copier/internal/content"
)

// Backend is the interface all platform clipboard implementations satisfy.
// It is the engine's local clipboard collaborator: Capture is the observation
// side, Write the application side.
type Backend interface {
	// Name returns a human-readable name for the backend.
	Name() string

	// Capture returns the current clipboard content. ok is false when the
	// clipboard is empty or holds only unsupported types.
	Capture() (c content.Content, ok bool)

	// Write replaces the clipboard contents.
	Write(c content.Content) error

	// Watch returns a channel that receives a signal whenever the clipboard
	// changes. The channel is never closed. On platforms without native
	// change notification this is implemented via polling.
	Watch() <-chan struct{}

	// Close releases any resources held by the backend.
	Close()
}

// readContent reads the clipboard through golang.design/x/clipboard,
// preferring images over text when both are present.
func readContent() (content.Content, bool) {
	if raw := clipboard.Read(clipboard.FmtImage); raw != nil {
		img, err := png.Decode(bytes.NewReader(raw))
		if err == nil {
			return content.NewImage(img), true
		}
	}
	if text := clipboard.Read(clipboard.FmtText); len(text) > 0 {
		return content.NewText(string(text)), true
	}
	return content.Content{}, false
}

// writeContent writes c through golang.design/x/clipboard. Images go out as
// PNG, which every supported platform accepts.
func writeContent(c content.Content) error {
	switch c.Kind {
	case content.KindText:
		clipboard.Write(clipboard.FmtText, []byte(c.Text))
		return nil
	case content.KindImage:
		var buf bytes.Buffer
		if err := png.Encode(&buf, c.Image); err != nil {
			return fmt.Errorf("clipboard image encode: %w", err)
		}
		clipboard.Write(clipboard.FmtImage, buf.Bytes())
		return nil
	default:
		return fmt.Errorf("unsupported content kind: %s", c.Kind)
	}
}
