package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wtask/chatrelay/pkg/semver"
)

var (
	// BinaryName - name of run application binary
	BinaryName = strings.TrimSuffix(filepath.Base(os.Args[0]), filepath.Ext(os.Args[0]))

	// ServerVersion - protocol version reported to version probes
	ServerVersion = semver.V{Major: 1}

	// Version - app version fingerprint
	Version = ServerVersion.String()
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s (v%s) error:\n\n\t%s\n", BinaryName, Version, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   BinaryName,
		Short: "Text chat relay over TCP",
		Long: `Chat relay accepts clients over TCP, checks their login and relays
every chat line to all other connected clients.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		serveCmd(),
		pingCmd(),
		versionCmd(),
	)
	return cmd
}
