// Package engine wires the nexa command tree.
package engine

import (
	"github.com/spf13/cobra"

	"github.com/netcrate/nexa/internal/config"
)

// NewRootCommand builds the nexa command tree
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nexa",
		Short: "Concurrent TCP port prober with service enrichment",
		Long: `nexa probes TCP ports on a single host with bounded concurrency,
captures short service banners, and optionally enriches the result with nmap
service detection, DNS/WHOIS/HTTP lookups and an external analysis command.

Only scan hosts you own or are authorised to test.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().String("config", "", "Config file (default ~/.nexa/config.yaml)")
	cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	cmd.AddCommand(NewScanCommand())
	cmd.AddCommand(NewPortsCommand())
	cmd.AddCommand(NewConfigCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Manager, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.NewManager(path)
}
