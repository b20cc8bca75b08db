package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/netcrate/nexa/internal/ops"
	"github.com/netcrate/nexa/internal/version"
)

// NewPortsCommand expands a port specification without scanning
func NewPortsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ports <spec>",
		Short: "Expand a port specification",
		Long: `Print the sorted, deduplicated ports a specification expands to.

Specifications combine single ports, inclusive ranges and named sets:
  22,80,443        single ports
  8000-8100        inclusive range
  top100, top1000  most common TCP ports
  web, database, common`,
		Example: "  nexa ports web,8000-8010\n  nexa ports top100 --compact",
		Args:    cobra.ExactArgs(1),
		RunE:    runPorts,
	}

	cmd.Flags().Bool("compact", false, "Print ranges instead of every port")
	return cmd
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := ops.ParsePortSpec(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if compact, _ := cmd.Flags().GetBool("compact"); compact {
		fmt.Fprintln(out, ops.FormatPortSpec(ports))
		return nil
	}

	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p)
	}
	fmt.Fprintf(out, "%d ports\n%s\n", len(ports), strings.Join(parts, ","))
	return nil
}

// NewVersionCommand prints build information
func NewVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.GetVersion()
			out := cmd.OutOrStdout()

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			if short, _ := cmd.Flags().GetBool("short"); short {
				fmt.Fprintln(out, info.Short())
				return nil
			}
			fmt.Fprintln(out, info.String())
			return nil
		},
	}

	cmd.Flags().Bool("short", false, "Print only the version")
	cmd.Flags().Bool("json", false, "Output in JSON format")
	return cmd
}
