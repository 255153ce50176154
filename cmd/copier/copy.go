package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/copier/internal/codec"
	"go.klb.dev/copier/internal/content"
	"go.klb.dev/copier/internal/transport"
	"go.klb.dev/copier/internal/wire"
)

const copyPublishTimeout = 5 * time.Second

func newCopyCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "copy",
		Short: "Publish stdin to the sync group (like pbcopy)",
		Long: `Reads stdin and publishes it as a text capture to every copier instance
sharing the broker and topic prefix. The running daemons apply it to their
clipboards as if it had been copied locally.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runCopy(v) },
	}

	addBrokerFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runCopy(v *viper.Viper) error {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	tcfg, err := brokerConfig(v, uuid.NewString())
	if err != nil {
		return err
	}

	cdc, err := codec.New()
	if err != nil {
		return err
	}
	payload, err := cdc.Encode(content.NewText(string(data)))
	if err != nil {
		return err
	}
	envelope, err := wire.NewSyncMessage(payload.Kind, payload.Data, tcfg.ClientID).Encode()
	if err != nil {
		return err
	}

	t := transport.New(tcfg, nil)
	defer t.Close()

	t.Connect()
	if t.State() != transport.StateConnected {
		return fmt.Errorf("no reachable broker at %s", tcfg.BrokerURL())
	}

	return t.PublishContentWait(envelope, copyPublishTimeout)
}
