package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/netcrate/nexa/internal/config"
)

// NewConfigCommand creates the config management command
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage nexa configuration",
		Long: `Configure nexa settings including rate profiles and preferences.

Rate profiles control how hard a scan pushes:
- slow: 50 concurrent probes, 3s timeout
- medium: 200 concurrent probes, 2s timeout (default)
- fast: 500 concurrent probes, 1s timeout
- ludicrous: 1000 concurrent probes, 500ms timeout

Explicit --concurrency, --timeout and --banner-timeout flags, NEXA_* environment
variables and values in the config file override the active profile.`,
	}

	cmd.AddCommand(NewConfigShowCommand())
	cmd.AddCommand(NewConfigSetCommand())
	cmd.AddCommand(NewConfigProfileCommand())

	return cmd
}

// NewConfigShowCommand shows current configuration
func NewConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

// NewConfigSetCommand sets configuration values
func NewConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set configuration value",
		Long: `Set configuration values. Available keys:
- output_format: table, json, yaml, html
- show_banners: true, false
- color_output: true, false
- nmap_path: path to the nmap binary (empty searches $PATH)
- analysis_command: command that receives the analysis prompt on stdin
- profile: active rate profile`,
		Args: cobra.ExactArgs(2),
		RunE: runConfigSet,
	}
}

// NewConfigProfileCommand manages rate profiles
func NewConfigProfileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage rate profiles",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available rate profiles",
		Args:  cobra.NoArgs,
		RunE:  runConfigProfileList,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "use <profile-name>",
		Short: "Set the active rate profile",
		Args:  cobra.ExactArgs(1),
		RunE:  runConfigProfileUse,
	})

	return cmd
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cm, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	snap, err := cm.Snapshot()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# %s\n", cm.Path())
	_, err = out.Write(data)
	return err
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	cm, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cm.Set(key, value); err != nil {
		if errors.Is(err, config.ErrUnknownKey) {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.Keys(), ", "))
		}
		return err
	}
	if err := cm.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration updated: %s = %s\n", key, value)
	return nil
}

func runConfigProfileList(cmd *cobra.Command, args []string) error {
	cm, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	profiles, err := cm.Profiles()
	if err != nil {
		return err
	}
	names, err := cm.ProfileNames()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	current := cm.CurrentProfile()
	fmt.Fprintf(out, "Rate Profiles\n=============\nCurrent profile: %s\n\n", current)
	for _, name := range names {
		p := profiles[name]
		marker := ""
		if name == current {
			marker = " (current)"
		}
		fmt.Fprintf(out, "* %s%s\n", name, marker)
		if p.Description != "" {
			fmt.Fprintf(out, "  %s\n", p.Description)
		}
		fmt.Fprintf(out, "  Concurrency: %d | Timeout: %v | Banner timeout: %v\n\n",
			p.Concurrency, p.Timeout, p.BannerTimeout)
	}
	return nil
}

func runConfigProfileUse(cmd *cobra.Command, args []string) error {
	cm, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cm.UseProfile(args[0]); err != nil {
		return fmt.Errorf("failed to set rate profile: %w", err)
	}
	if err := cm.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Rate profile set to: %s\n", args[0])
	return nil
}
