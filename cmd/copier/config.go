package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/copier/internal/logging"
	"go.klb.dev/copier/internal/tlsconf"
	"go.klb.dev/copier/internal/transport"
	"go.klb.dev/copier/internal/wire"
)

// bindViper wires a command's flags into a viper instance with the standard
// config file search order and COPIER_* env var prefix.
//
// Precedence (lowest → highest): defaults → config file → COPIER_* env vars → flags
func bindViper(cmd *cobra.Command, v *viper.Viper) error {
	configFlag, _ := cmd.Flags().GetString("config")
	if configFlag != "" {
		v.SetConfigFile(configFlag)
	} else {
		v.SetConfigName("copier")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/copier/")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(fmt.Sprintf("%s/.copier", home))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("config: %w", err)
		}
	}

	v.SetEnvPrefix("COPIER")
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	return nil
}

// addBrokerFlags adds the MQTT broker flags shared by run/copy/status.
func addBrokerFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("host", "localhost", "MQTT broker host")
	f.Int("port", 1883, "MQTT broker port")
	f.String("username", "", "MQTT username")
	f.String("password", "", "MQTT password")
	f.String("prefix", wire.DefaultTopicPrefix, "topic prefix shared by the sync group")
	f.Bool("tls", false, "connect to the broker over TLS")
	f.String("tls-ca", "", "path to PEM CA certificate for broker verification")
	f.String("tls-cert", "", "path to PEM client certificate (mutual TLS)")
	f.String("tls-key", "", "path to PEM client key (mutual TLS)")
	f.Bool("tls-insecure", false, "skip broker certificate verification")
}

// addLoggingFlags adds the standard logging flags to a command.
func addLoggingFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("no-background", false, "run interactively: tinter logs + debug level")
	cmd.Flags().String("log-format", "auto", "log format: auto|text|json")
	cmd.Flags().String("log-level", "", "log level: debug|info|warn|error (default: info for service, debug for interactive)")
}

// addConfigFlag adds the --config flag to a command.
func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "path to config file (overrides auto-discovery)")
}

// setupLogging reads logging flags from viper and configures slog.
func setupLogging(v *viper.Viper) {
	interactive := v.GetBool("no-background") || logging.IsTTY(os.Stderr)
	resolveLogging(interactive, v.GetString("log-format"), v.GetString("log-level"))
}

// brokerConfig assembles a transport.Config from the bound broker flags.
func brokerConfig(v *viper.Viper, clientID string) (transport.Config, error) {
	tlsCfg, err := tlsconf.Build(tlsconf.Config{
		Enabled:    v.GetBool("tls"),
		CACert:     v.GetString("tls-ca"),
		ClientCert: v.GetString("tls-cert"),
		ClientKey:  v.GetString("tls-key"),
		Insecure:   v.GetBool("tls-insecure"),
	})
	if err != nil {
		return transport.Config{}, err
	}

	return transport.Config{
		Host:        v.GetString("host"),
		Port:        v.GetInt("port"),
		Username:    v.GetString("username"),
		Password:    v.GetString("password"),
		TopicPrefix: v.GetString("prefix"),
		ClientID:    clientID,
		TLS:         tlsCfg,
	}, nil
}

// defaultReconnectInterval leaves Windows more slack: its networking stack
// takes noticeably longer to notice a dead broker connection.
func defaultReconnectInterval() time.Duration {
	if runtime.GOOS == "windows" {
		return 10 * time.Second
	}
	return 5 * time.Second
}

// defaultMaxImageDim uses a smaller transport bound on Windows.
func defaultMaxImageDim() int {
	if runtime.GOOS == "windows" {
		return 1600
	}
	return 1920
}

// defaultJPEGQuality trades a little fidelity for speed on Windows.
func defaultJPEGQuality() int {
	if runtime.GOOS == "windows" {
		return 70
	}
	return 80
}
