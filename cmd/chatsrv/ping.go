package main

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/wtask/chatrelay/internal/chat/protocol"
)

func pingCmd() *cobra.Command {
	var (
		timeout time.Duration
		version string
	)

	cmd := &cobra.Command{
		Use:   "ping <host:port>",
		Short: "Probe chat server version",
		Long: `Send version probe to chat server and print whether it is compatible.
The command fails when the server is unreachable or incompatible.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ack, err := ping(args[0], version, timeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "server %s version %s compatible %t\n", args[0], ack.ServerVersion, ack.Compatible)
			if !ack.Compatible {
				return fmt.Errorf("server version %s is not compatible with %s", ack.ServerVersion, version)
			}
			return nil
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 5*time.Second, "Dial and response timeout")
	cmd.Flags().StringVar(&version, "client-version", Version, "Version sent in the probe")

	return cmd
}

// ping - sends version probe and waits for reply.
func ping(addr, version string, timeout time.Duration) (protocol.PingAck, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return protocol.PingAck{}, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	if err := protocol.WriteEntryPoint(conn, protocol.VersionProbe{ClientVersion: version}); err != nil {
		return protocol.PingAck{}, fmt.Errorf("send probe: %w", err)
	}
	resp, err := protocol.ReadEntryResponse(conn)
	if err != nil {
		return protocol.PingAck{}, fmt.Errorf("read response: %w", err)
	}
	switch resp := resp.(type) {
	case protocol.PingAck:
		return resp, nil
	case protocol.Invalid:
		return protocol.PingAck{}, fmt.Errorf("probe refused: %s", resp.Reason)
	default:
		return protocol.PingAck{}, fmt.Errorf("unexpected response %T", resp)
	}
}
