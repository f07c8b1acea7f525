package commands

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/lattice-run/lattice/internal/wire"
)

var pingCmd = &cobra.Command{
	Use:   "ping <addr>",
	Short: "Dial a node's remoting listener and print its identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := net.DialTimeout("tcp", args[0], 5*time.Second)
		if err != nil {
			return fmt.Errorf("dialing %s: %w", args[0], err)
		}
		defer conn.Close()

		codec := wire.NewFrameCodec(0)
		frame, err := codec.ReadFrame(conn)
		if err != nil {
			return fmt.Errorf("reading identity from %s: %w", args[0], err)
		}

		event, err := wire.DecodeClientEvent(frame)
		if err != nil || event.Kind != wire.ClientKindIdentity {
			return fmt.Errorf("expected identity frame from %s", args[0])
		}

		id := event.Identity
		fmt.Fprintf(cmd.OutOrStdout(), "node_id=%d tag=%q addr=%q version=%q started_at=%s peers=%d\n",
			id.NodeID, id.NodeTag, id.Addr, id.ApplicationVersion,
			id.StartedAt.Format(time.RFC3339), len(id.Peers))
		return nil
	},
}
