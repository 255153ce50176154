package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/copier/internal/transport"
	"go.klb.dev/copier/internal/wire"
)

func newStatusCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show peer presence in the sync group",
		Long: `Connects to the broker and reports the presence of every client that has
ever announced itself under the topic prefix. Presence messages are retained
by the broker, so peers that went offline — gracefully or through their last
will — are listed too.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runStatus(v) },
	}

	f := cmd.Flags()
	f.Duration("wait", 2*time.Second, "how long to collect retained presence messages")
	f.Bool("json", false, "output raw JSON")
	addBrokerFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runStatus(v *viper.Viper) error {
	tcfg, err := brokerConfig(v, uuid.NewString())
	if err != nil {
		return err
	}

	t := transport.New(tcfg, nil)
	defer t.Close()

	t.Connect()
	if t.State() != transport.StateConnected {
		return fmt.Errorf("no reachable broker at %s", tcfg.BrokerURL())
	}

	// Retained presence arrives immediately after subscribe; the wait window
	// just gives the broker time to flush everything.
	peers := collectPresence(t, v.GetDuration("wait"), tcfg.ClientID)

	if v.GetBool("json") {
		enc, _ := json.MarshalIndent(peers, "", "  ")
		fmt.Println(string(enc))
		return nil
	}

	printPresence(peers)
	return nil
}

// collectPresence drains status-topic messages for the wait window, keeping
// the latest presence per client id.
func collectPresence(t *transport.Client, wait time.Duration, selfID string) []*wire.PresenceMessage {
	latest := make(map[string]*wire.PresenceMessage)
	deadline := time.After(wait)

	for {
		select {
		case <-deadline:
			out := make([]*wire.PresenceMessage, 0, len(latest))
			for _, p := range latest {
				out = append(out, p)
			}
			sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
			return out
		case in := <-t.Messages():
			if !strings.HasSuffix(in.Topic, "/status") {
				continue
			}
			p, err := wire.DecodePresenceMessage(in.Payload)
			if err != nil || p.ClientID == selfID {
				continue
			}
			if cur, ok := latest[p.ClientID]; !ok || p.Timestamp >= cur.Timestamp {
				latest[p.ClientID] = p
			}
		}
	}
}

func printPresence(peers []*wire.PresenceMessage) {
	if len(peers) == 0 {
		fmt.Println("No peers have announced themselves under this prefix.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 1, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "CLIENT\tSTATUS\tLAST SEEN\n")
	_, _ = fmt.Fprintf(tw, "------\t------\t---------\n")
	for _, p := range peers {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n",
			p.ClientID, p.Status, fmtAge(time.UnixMilli(p.Timestamp)))
	}
	_ = tw.Flush()
}

func fmtAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	age := time.Since(t).Round(time.Second)
	if age < time.Minute {
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	}
	if age < time.Hour {
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	}
	return t.Format("15:04:05")
}
