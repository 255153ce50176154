package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/copier/internal/clip"
	"go.klb.dev/copier/internal/codec"
	"go.klb.dev/copier/internal/content"
	"go.klb.dev/copier/internal/engine"
	"go.klb.dev/copier/internal/history"
	"go.klb.dev/copier/internal/ledger"
	"go.klb.dev/copier/internal/transport"
)

func newRunCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the clipboard sync daemon",
		Long: `Watches the system clipboard and synchronises it with every other copier
instance sharing the same broker and topic prefix.

Config file search order:
  /etc/copier/copier.toml
  $HOME/.copier/copier.toml
  path supplied via --config

Precedence (lowest → highest): defaults → config file → COPIER_* env vars → flags`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runDaemon(cmd.Context(), v) },
	}

	f := cmd.Flags()
	f.Int("max-image-dim", defaultMaxImageDim(), "longest image edge before transport downscale")
	f.Int("jpeg-quality", defaultJPEGQuality(), "lossy image re-encode quality (1-100)")
	f.Duration("reconnect-interval", defaultReconnectInterval(), "fixed retry spacing while the broker is unreachable")
	f.Duration("debounce", engine.DefaultDebounce, "minimum interval between processed clipboard captures")
	f.Int("ledger-size", ledger.DefaultCapacity, "dedup ledger capacity (fingerprints)")
	f.Int("history-size", history.DefaultLimit, "clipboard history entries kept in memory")
	addBrokerFlags(cmd)
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runDaemon(ctx0 context.Context, v *viper.Viper) error {
	setupLogging(v)

	// One identity per process start; never persisted.
	clientID := uuid.NewString()

	tcfg, err := brokerConfig(v, clientID)
	if err != nil {
		return err
	}
	tcfg.ReconnectInterval = v.GetDuration("reconnect-interval")

	cdc, err := codec.New(
		codec.WithMaxImageDim(v.GetInt("max-image-dim")),
		codec.WithJPEGQuality(v.GetInt("jpeg-quality")),
	)
	if err != nil {
		return err
	}

	slog.Info("copier starting",
		"version", Version,
		"broker", tcfg.BrokerURL(),
		"prefix", tcfg.TopicPrefix,
		"client_id", clientID,
	)

	backend := clip.New()
	defer backend.Close()

	notifier := &runNotifier{hist: history.New(v.GetInt("history-size"))}

	var eng *engine.Engine
	trans := transport.New(tcfg, func(s transport.State, detail string) {
		eng.HandleConnectionState(s, detail)
	})

	eng = engine.New(engine.Config{
		ClientID:  clientID,
		Clipboard: backend,
		Transport: trans,
		Codec:     cdc,
		Ledger:    ledger.New(v.GetInt("ledger-size")),
		Notifier:  notifier,
		Debounce:  v.GetDuration("debounce"),
	})

	ctx, stop := signal.NotifyContext(ctx0, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return eng.Run(ctx)
}

// runNotifier logs accepted entries and records them in the in-memory history.
type runNotifier struct {
	hist *history.Store
}

func (n *runNotifier) OnHistoryEntry(c content.Content, at time.Time) {
	n.hist.Add(c, at)
	switch c.Kind {
	case content.KindText:
		preview := c.Text
		if len(preview) > 120 {
			preview = preview[:120] + "…"
		}
		slog.Debug("history entry", "kind", "text", "preview", preview, "total", n.hist.Len())
	case content.KindImage:
		b := c.Image.Bounds()
		slog.Debug("history entry", "kind", "image",
			"width", b.Dx(), "height", b.Dy(), "total", n.hist.Len())
	}
}

func (n *runNotifier) OnConnectionStateChanged(s transport.State, detail string) {
	slog.Info("connection state", "state", s.String(), "detail", detail)
}

func (n *runNotifier) OnPeerStatus(clientID, status string, at time.Time) {
	slog.Info("peer presence", "peer", shortID(clientID), "status", status, "at", at.Format(time.RFC3339))
}

// shortID trims a UUID client id for log readability.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
