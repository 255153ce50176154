package clip

import "go.klb.dev/copier/internal/content"

// headlessBackend is a no-op clipboard backend for environments without a
// display server (headless Linux servers, containers, etc.).
// It never produces Watch events and silently discards writes.
type headlessBackend struct {
	watchCh chan struct{}
}

func (b *headlessBackend) Name() string                     { return "headless (no-op)" }
func (b *headlessBackend) Capture() (content.Content, bool) { return content.Content{}, false }
func (b *headlessBackend) Write(_ content.Content) error    { return nil }
func (b *headlessBackend) Watch() <-chan struct{}           { return b.watchCh }
func (b *headlessBackend) Close()                           {}
