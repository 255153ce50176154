package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/copier/internal/codec"
	"go.klb.dev/copier/internal/content"
	"go.klb.dev/copier/internal/ledger"
	"go.klb.dev/copier/internal/transport"
	"go.klb.dev/copier/internal/wire"
)

// ── fakes ─────────────────────────────────────────────────────────────────────

type fakeClipboard struct {
	mu       sync.Mutex
	watch    chan struct{}
	cur      content.Content
	haveCur  bool
	captures int
	writes   []content.Content
}

func newFakeClipboard() *fakeClipboard {
	return &fakeClipboard{watch: make(chan struct{}, 8)}
}

func (f *fakeClipboard) Watch() <-chan struct{} { return f.watch }

func (f *fakeClipboard) Capture() (content.Content, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captures++
	return f.cur, f.haveCur
}

func (f *fakeClipboard) Write(c content.Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, c)
	f.cur = c
	f.haveCur = true
	return nil
}

func (f *fakeClipboard) set(c content.Content) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cur = c
	f.haveCur = true
}

func (f *fakeClipboard) written() []content.Content {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]content.Content, len(f.writes))
	copy(out, f.writes)
	return out
}

type fakeTransport struct {
	mu         sync.Mutex
	inbound    chan transport.Inbound
	publishErr error
	envelopes  [][]byte
	connects   int
	closes     int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbound: make(chan transport.Inbound, 8)}
}

func (f *fakeTransport) Connect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
}

func (f *fakeTransport) Messages() <-chan transport.Inbound { return f.inbound }

func (f *fakeTransport) PublishContent(envelope []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.envelopes = append(f.envelopes, envelope)
	return nil
}

func (f *fakeTransport) published() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.envelopes))
	copy(out, f.envelopes)
	return out
}

type recordingNotifier struct {
	mu      sync.Mutex
	history []content.Content
	peers   []string
	states  []transport.State
}

func (r *recordingNotifier) OnHistoryEntry(c content.Content, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, c)
}

func (r *recordingNotifier) OnConnectionStateChanged(s transport.State, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recordingNotifier) OnPeerStatus(clientID, status string, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers = append(r.peers, clientID+":"+status)
}

func (r *recordingNotifier) historyLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.history)
}

func (r *recordingNotifier) peerEvents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.peers))
	copy(out, r.peers)
	return out
}

// ── harness ───────────────────────────────────────────────────────────────────

type harness struct {
	clip     *fakeClipboard
	trans    *fakeTransport
	notifier *recordingNotifier
	codec    *codec.Codec
	engine   *Engine
}

func newHarness(t *testing.T, clientID string, mute time.Duration) *harness {
	t.Helper()
	cdc, err := codec.New()
	require.NoError(t, err)
	h := &harness{
		clip:     newFakeClipboard(),
		trans:    newFakeTransport(),
		notifier: &recordingNotifier{},
		codec:    cdc,
	}
	h.engine = New(Config{
		ClientID:   clientID,
		Clipboard:  h.clip,
		Transport:  h.trans,
		Codec:      h.codec,
		Ledger:     ledger.New(0),
		Notifier:   h.notifier,
		Debounce:   time.Nanosecond,
		MuteWindow: mute,
	})
	return h
}

// envelope builds the wire bytes a peer would publish for text content.
func (h *harness) envelope(t *testing.T, text, source string) []byte {
	t.Helper()
	p, err := h.codec.Encode(content.NewText(text))
	require.NoError(t, err)
	b, err := wire.NewSyncMessage(p.Kind, p.Data, source).Encode()
	require.NoError(t, err)
	return b
}

func contentTopic() string { return wire.ContentTopic("copier/clipboard") }
func statusTopic() string  { return wire.StatusTopic("copier/clipboard") }

// ── tests ─────────────────────────────────────────────────────────────────────

func TestLocalCapturePublishes(t *testing.T) {
	h := newHarness(t, "node-a", time.Nanosecond)
	h.clip.set(content.NewText("hello"))

	h.engine.handleLocalChange()

	pubs := h.trans.published()
	require.Len(t, pubs, 1)

	msg, err := wire.DecodeSyncMessage(pubs[0])
	require.NoError(t, err)
	assert.Equal(t, content.KindText, msg.Type)
	assert.Equal(t, "node-a", msg.Source)

	raw, err := msg.Payload()
	require.NoError(t, err)
	c, err := h.codec.Decode(codec.Payload{Kind: msg.Type, Data: raw})
	require.NoError(t, err)
	assert.Equal(t, "hello", c.Text)

	assert.Equal(t, 1, h.notifier.historyLen())
}

func TestLocalCaptureDeduplicates(t *testing.T) {
	h := newHarness(t, "node-a", time.Nanosecond)
	h.clip.set(content.NewText("same thing"))

	h.engine.handleLocalChange()
	h.engine.handleLocalChange()

	assert.Len(t, h.trans.published(), 1)
	assert.Equal(t, 1, h.notifier.historyLen())
}

func TestLocalCaptureDebounced(t *testing.T) {
	h := newHarness(t, "node-a", time.Nanosecond)
	h.engine.cfg.Debounce = time.Hour
	h.clip.set(content.NewText("first"))

	h.engine.handleLocalChange()
	h.clip.set(content.NewText("second"))
	h.engine.handleLocalChange()

	assert.Len(t, h.trans.published(), 1)
}

func TestEmptyClipboardSkipped(t *testing.T) {
	h := newHarness(t, "node-a", time.Nanosecond)

	h.engine.handleLocalChange()
	assert.Empty(t, h.trans.published())

	h.clip.set(content.NewText(""))
	h.engine.handleLocalChange()
	assert.Empty(t, h.trans.published())
	assert.Zero(t, h.notifier.historyLen())
}

func TestPublishFailureStillRecordsHistory(t *testing.T) {
	h := newHarness(t, "node-a", time.Nanosecond)
	h.trans.publishErr = transport.ErrNotConnected
	h.clip.set(content.NewText("offline capture"))

	h.engine.handleLocalChange()

	assert.Empty(t, h.trans.published())
	assert.Equal(t, 1, h.notifier.historyLen())
}

func TestRemoteContentApplied(t *testing.T) {
	h := newHarness(t, "node-b", time.Nanosecond)

	h.engine.handleInbound(transport.Inbound{
		Topic:   contentTopic(),
		Payload: h.envelope(t, "from peer", "node-a"),
	})

	writes := h.clip.written()
	require.Len(t, writes, 1)
	assert.Equal(t, "from peer", writes[0].Text)
	assert.Equal(t, 1, h.notifier.historyLen())

	// The write triggers the local watcher; the ledger must stop the content
	// from bouncing back onto the bus.
	h.engine.handleLocalChange()
	assert.Empty(t, h.trans.published())
}

func TestOwnMessageIgnored(t *testing.T) {
	h := newHarness(t, "node-a", time.Nanosecond)

	h.engine.handleInbound(transport.Inbound{
		Topic:   contentTopic(),
		Payload: h.envelope(t, "echo", "node-a"),
	})

	assert.Empty(t, h.clip.written())
	assert.Zero(t, h.notifier.historyLen())
}

func TestRemoteDuplicateSkipped(t *testing.T) {
	h := newHarness(t, "node-b", time.Nanosecond)
	env := h.envelope(t, "redelivered", "node-a")

	h.engine.handleInbound(transport.Inbound{Topic: contentTopic(), Payload: env})
	h.engine.handleInbound(transport.Inbound{Topic: contentTopic(), Payload: env})

	assert.Len(t, h.clip.written(), 1)
	assert.Equal(t, 1, h.notifier.historyLen())
}

func TestCrossPeerDedup(t *testing.T) {
	// The same content captured locally and then delivered from a peer that
	// captured it independently must land in history exactly once.
	h := newHarness(t, "node-b", time.Nanosecond)
	h.clip.set(content.NewText("identical everywhere"))

	h.engine.handleLocalChange()
	h.engine.handleInbound(transport.Inbound{
		Topic:   contentTopic(),
		Payload: h.envelope(t, "identical everywhere", "node-a"),
	})

	assert.Empty(t, h.clip.written())
	assert.Len(t, h.trans.published(), 1)
	assert.Equal(t, 1, h.notifier.historyLen())
}

func TestMalformedContentDropped(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"not json", []byte("garbage")},
		{"unknown type", []byte(`{"type":"video","content":"","source":"x","timestamp":1}`)},
		{"bad base64", []byte(`{"type":"text","content":"!!!","source":"x","timestamp":1}`)},
		{"bad compression", []byte(`{"type":"text","content":"aGVsbG8=","source":"x","timestamp":1}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "node-b", time.Nanosecond)
			h.engine.handleInbound(transport.Inbound{Topic: contentTopic(), Payload: tt.payload})
			assert.Empty(t, h.clip.written())
			assert.Zero(t, h.notifier.historyLen())
		})
	}
}

func TestMuteWindowSuppressesWriteEcho(t *testing.T) {
	h := newHarness(t, "node-b", time.Hour)

	h.engine.handleInbound(transport.Inbound{
		Topic:   contentTopic(),
		Payload: h.envelope(t, "remote", "node-a"),
	})
	require.Len(t, h.clip.written(), 1)

	// The change event caused by our own write arrives inside the mute
	// window and must not even reach Capture.
	h.engine.handleLocalChange()
	h.clip.mu.Lock()
	captures := h.clip.captures
	h.clip.mu.Unlock()
	assert.Zero(t, captures)
}

func TestPeerStatusForwarded(t *testing.T) {
	h := newHarness(t, "node-b", time.Nanosecond)

	online, err := wire.NewPresenceMessage("node-a", wire.StatusOnline).Encode()
	require.NoError(t, err)
	own, err := wire.NewPresenceMessage("node-b", wire.StatusOnline).Encode()
	require.NoError(t, err)

	h.engine.handleInbound(transport.Inbound{Topic: statusTopic(), Payload: online})
	h.engine.handleInbound(transport.Inbound{Topic: statusTopic(), Payload: own})

	assert.Equal(t, []string{"node-a:online"}, h.notifier.peerEvents())
}

func TestUnknownTopicIgnored(t *testing.T) {
	h := newHarness(t, "node-b", time.Nanosecond)
	h.engine.handleInbound(transport.Inbound{Topic: "copier/clipboard/other", Payload: []byte("x")})
	assert.Empty(t, h.clip.written())
}

func TestRunLifecycle(t *testing.T) {
	h := newHarness(t, "node-b", time.Nanosecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()

	online, err := wire.NewPresenceMessage("node-a", wire.StatusOnline).Encode()
	require.NoError(t, err)
	h.trans.inbound <- transport.Inbound{Topic: statusTopic(), Payload: online}

	require.Eventually(t, func() bool {
		return len(h.notifier.peerEvents()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("engine did not stop on context cancel")
	}

	h.trans.mu.Lock()
	defer h.trans.mu.Unlock()
	assert.Equal(t, 1, h.trans.connects)
	assert.Equal(t, 1, h.trans.closes)
}
