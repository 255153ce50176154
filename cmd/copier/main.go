// copier: clipboard synchronization over MQTT.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.klb.dev/copier/internal/logging"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "copier",
		Short: "Clipboard synchronization over MQTT",
		Long: `copier synchronises the system clipboard (text and images) across devices
through an MQTT broker. All clients sharing one topic prefix form a sync
group: copy on one device, paste on any other.

Run "copier run" on each device. Use "copier copy" to push stdin into the
group, and "copier status" to see which peers are online.

Config file search order (first found wins):
  /etc/copier/copier.toml
  $HOME/.copier/copier.toml
  path supplied via --config

All flags can be set via COPIER_<FLAG> env vars or config-file keys.
See "copier run --help" for the full flag reference.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newRunCmd(),
		newCopyCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("copier %s\n", Version)
		},
	}
}

// resolveLogging sets up the global slog logger after flags are parsed.
func resolveLogging(interactive bool, formatStr, levelStr string) {
	format := logging.ParseFormat(formatStr)
	level := logging.ParseLevel(levelStr)
	if levelStr == "" {
		if interactive {
			level = logging.ParseLevel("debug")
		} else {
			level = logging.ParseLevel("info")
		}
	}
	logging.Setup(format, level)
}
