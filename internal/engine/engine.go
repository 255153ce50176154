// Package engine wires fingerprinting, the codec, the dedup ledger, and the
// MQTT transport into the clipboard synchronization loop.
//
// The engine runs a single event loop that drains local clipboard change
// notifications and inbound broker messages. Funnelling both sources through
// one goroutine serializes every ledger mutation and every clipboard write,
// so a local capture and a remote delivery racing on the same fingerprint
// cannot both win.
package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.klb.dev/copier/internal/codec"
	"go.klb.dev/copier/internal/content"
	"go.klb.dev/copier/internal/ledger"
	"go.klb.dev/copier/internal/transport"
	"go.klb.dev/copier/internal/wire"
)

const (
	// DefaultDebounce collapses bursts of change notifications into one
	// processed capture.
	DefaultDebounce = 1 * time.Second

	// DefaultMuteWindow suppresses the watcher notification caused by the
	// engine's own clipboard write. The ledger would catch the resulting
	// fingerprint anyway; the window exists because toolkit change events
	// can race the write itself.
	DefaultMuteWindow = 500 * time.Millisecond
)

// Clipboard is the local clipboard collaborator. Implementations live in
// internal/clip; the engine only sees this interface.
type Clipboard interface {
	// Watch returns a channel signalled on every clipboard change.
	Watch() <-chan struct{}
	// Capture returns the current clipboard content. ok is false when the
	// clipboard is empty or holds an unsupported type.
	Capture() (c content.Content, ok bool)
	// Write replaces the clipboard contents.
	Write(c content.Content) error
}

// Transport is the pub/sub client the engine publishes through.
type Transport interface {
	Connect()
	Close()
	Messages() <-chan transport.Inbound
	PublishContent(envelope []byte) error
}

// Notifier receives the engine's outward-facing events. Callbacks run on the
// engine loop and must not block.
type Notifier interface {
	// OnHistoryEntry is called once per accepted local or remote capture,
	// never for discarded duplicates or echoes.
	OnHistoryEntry(c content.Content, at time.Time)
	OnConnectionStateChanged(s transport.State, detail string)
	OnPeerStatus(clientID, status string, at time.Time)
}

// Config holds the engine's collaborators and tuning knobs.
type Config struct {
	ClientID  string
	Clipboard Clipboard
	Transport Transport
	Codec     *codec.Codec
	Ledger    *ledger.Ledger
	Notifier  Notifier

	Debounce   time.Duration
	MuteWindow time.Duration
}

// Engine is the clipboard synchronization orchestrator.
type Engine struct {
	cfg Config

	// Loop-owned state; never touched off the Run goroutine.
	lastCapture time.Time
	muteUntil   time.Time
}

// New returns an Engine ready to Run.
func New(cfg Config) *Engine {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.MuteWindow <= 0 {
		cfg.MuteWindow = DefaultMuteWindow
	}
	if cfg.Ledger == nil {
		cfg.Ledger = ledger.New(0)
	}
	return &Engine{cfg: cfg}
}

// HandleConnectionState forwards transport state transitions to the notifier.
// Wire it as the transport's state callback.
func (e *Engine) HandleConnectionState(s transport.State, detail string) {
	slog.Debug("connection state changed", "state", s.String(), "detail", detail)
	if e.cfg.Notifier != nil {
		e.cfg.Notifier.OnConnectionStateChanged(s, detail)
	}
}

// Run connects the transport and drives the event loop until ctx is
// cancelled. The transport is closed on the way out; no callbacks fire after
// Run returns.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("sync engine starting", "client_id", e.cfg.ClientID)

	e.cfg.Transport.Connect()
	defer e.cfg.Transport.Close()

	watch := e.cfg.Clipboard.Watch()
	inbound := e.cfg.Transport.Messages()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync engine stopping")
			return nil
		case <-watch:
			e.handleLocalChange()
		case in, ok := <-inbound:
			if !ok {
				return nil
			}
			e.handleInbound(in)
		}
	}
}

// handleLocalChange processes one clipboard change notification.
func (e *Engine) handleLocalChange() {
	now := time.Now()
	if now.Before(e.muteUntil) {
		return
	}
	if !e.lastCapture.IsZero() && now.Sub(e.lastCapture) < e.cfg.Debounce {
		slog.Debug("capture debounced")
		return
	}

	c, ok := e.cfg.Clipboard.Capture()
	if !ok || c.Empty() {
		return
	}

	d, err := content.Fingerprint(c)
	if err != nil {
		slog.Warn("fingerprint failed, capture dropped", "err", err)
		return
	}
	if e.cfg.Ledger.Seen(d) {
		slog.Debug("capture already known, skipping", "fingerprint", d.String()[:12])
		return
	}
	e.cfg.Ledger.Remember(d, ledger.RoleSent)
	e.lastCapture = now

	p, err := e.cfg.Codec.Encode(c)
	if err != nil {
		slog.Warn("encode failed, capture dropped", "err", err)
		return
	}
	envelope, err := wire.NewSyncMessage(p.Kind, p.Data, e.cfg.ClientID).Encode()
	if err != nil {
		slog.Warn("envelope encode failed, capture dropped", "err", err)
		return
	}

	if err := e.cfg.Transport.PublishContent(envelope); err != nil {
		// Offline is not fatal: the capture still lands in local history and
		// the next change will be published once the broker is back.
		slog.Warn("publish skipped", "err", err)
	} else {
		slog.Debug("published local capture",
			"kind", string(p.Kind),
			"bytes", len(p.Data),
			"fingerprint", d.String()[:12],
		)
	}

	if e.cfg.Notifier != nil {
		e.cfg.Notifier.OnHistoryEntry(c, now)
	}
}

// handleInbound classifies one raw broker message by topic suffix.
func (e *Engine) handleInbound(in transport.Inbound) {
	switch {
	case strings.HasSuffix(in.Topic, "/content"):
		e.handleContent(in.Payload)
	case strings.HasSuffix(in.Topic, "/status"):
		e.handleStatus(in.Payload)
	default:
		slog.Debug("message on unexpected topic, dropping", "topic", in.Topic)
	}
}

// handleContent applies one remote clipboard capture.
func (e *Engine) handleContent(payload []byte) {
	msg, err := wire.DecodeSyncMessage(payload)
	if err != nil {
		slog.Warn("malformed content message, dropping", "err", err)
		return
	}
	if msg.Source == e.cfg.ClientID {
		// Primary echo guard: the broker delivered our own publish back.
		slog.Debug("ignoring own message")
		return
	}

	raw, err := msg.Payload()
	if err != nil {
		slog.Warn("undecodable content payload, dropping", "source", msg.Source, "err", err)
		return
	}
	c, err := e.cfg.Codec.Decode(codec.Payload{Kind: msg.Type, Data: raw})
	if err != nil {
		slog.Warn("content decode failed, dropping", "source", msg.Source, "err", err)
		return
	}
	if c.Empty() {
		return
	}

	d, err := content.Fingerprint(c)
	if err != nil {
		slog.Warn("fingerprint failed, message dropped", "err", err)
		return
	}
	if e.cfg.Ledger.Seen(d) {
		slog.Debug("remote content already known, skipping",
			"source", msg.Source, "fingerprint", d.String()[:12])
		return
	}
	e.cfg.Ledger.Remember(d, ledger.RoleReceived)

	// Mute the watcher around our own write; the ledger already knows this
	// fingerprint, the window just absorbs the change event itself.
	e.muteUntil = time.Now().Add(e.cfg.MuteWindow)
	if err := e.cfg.Clipboard.Write(c); err != nil {
		slog.Error("clipboard write failed", "err", err)
	} else {
		slog.Info("applied remote capture",
			"source", msg.Source,
			"kind", string(msg.Type),
			"fingerprint", d.String()[:12],
		)
	}

	if e.cfg.Notifier != nil {
		e.cfg.Notifier.OnHistoryEntry(c, time.Now())
	}
}

// handleStatus surfaces a peer presence change. Informational only.
func (e *Engine) handleStatus(payload []byte) {
	p, err := wire.DecodePresenceMessage(payload)
	if err != nil {
		slog.Debug("malformed presence message, dropping", "err", err)
		return
	}
	if p.ClientID == e.cfg.ClientID {
		return
	}
	slog.Info("peer status changed", "peer", p.ClientID, "status", p.Status)
	if e.cfg.Notifier != nil {
		e.cfg.Notifier.OnPeerStatus(p.ClientID, p.Status, time.UnixMilli(p.Timestamp))
	}
}
