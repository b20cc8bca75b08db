package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/netcrate/nexa/internal/analysis"
	"github.com/netcrate/nexa/internal/compliance"
	"github.com/netcrate/nexa/internal/config"
	"github.com/netcrate/nexa/internal/display"
	"github.com/netcrate/nexa/internal/enrich"
	"github.com/netcrate/nexa/internal/logging"
	"github.com/netcrate/nexa/internal/lookup"
	"github.com/netcrate/nexa/internal/ops"
	"github.com/netcrate/nexa/internal/privileges"
	"github.com/netcrate/nexa/internal/report"
)

const nmapTimeout = 10 * time.Minute

// NewScanCommand creates the scan command
func NewScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <target>",
		Short: "Probe TCP ports on a single host",
		Long: `Probe TCP ports on a single host and report which are open.

Each port gets one connection attempt. Open ports are read for a short banner;
ports 80, 443, 8000 and 8080 are sent a minimal HTTP request first. Results are
then enriched with nmap service detection, DNS/WHOIS/HTTP lookups and an
external analysis command unless disabled.`,
		Example: `  nexa scan scanme.nmap.org
  nexa scan 192.168.1.10 -p 22,80,443 --no-analysis
  nexa scan example.com -p top1000 --profile fast -o json`,
		Args: cobra.ExactArgs(1),
		RunE: runScan,
	}

	cmd.Flags().StringP("ports", "p", "1-1024", "Ports to scan (e.g. 22,80,8000-8100,top100)")
	cmd.Flags().IntP("concurrency", "c", 200, "Maximum simultaneous connection attempts")
	cmd.Flags().Float64("timeout", 2.0, "Connect timeout in seconds")
	cmd.Flags().Duration("banner-timeout", ops.DefaultBannerTimeout, "Banner read/write timeout")
	cmd.Flags().String("profile", "", "Rate profile (slow, medium, fast, ludicrous)")
	cmd.Flags().StringP("output", "o", "", "Output format: table, json, yaml, html (default from config)")
	cmd.Flags().Bool("no-nmap", false, "Skip nmap service detection")
	cmd.Flags().Bool("no-lookups", false, "Skip DNS, WHOIS and HTTP header lookups")
	cmd.Flags().Bool("no-analysis", false, "Skip the external analysis command")
	cmd.Flags().Bool("no-progress", false, "Disable the progress bar")
	cmd.Flags().Bool("no-color", false, "Disable coloured output")

	return cmd
}

type scanOptions struct {
	target     string
	ports      []int
	format     report.Format
	noNmap     bool
	noLookups  bool
	noAnalysis bool
	noProgress bool
	color      bool
	settings   config.ScanSettings
	prefs      config.Preferences
}

func scanOptionsFromFlags(cmd *cobra.Command, args []string, cm *config.Manager) (scanOptions, error) {
	var opts scanOptions

	if err := cm.BindFlags(cmd.Flags()); err != nil {
		return opts, err
	}
	settings, err := cm.ScanSettings()
	if err != nil {
		return opts, err
	}
	opts.settings = settings
	opts.prefs = cm.Preferences()

	opts.target = ops.NormalizeHost(args[0])
	if opts.target == "" {
		return opts, ops.ErrNoHost
	}

	spec, _ := cmd.Flags().GetString("ports")
	if opts.ports, err = ops.ParsePortSpec(spec); err != nil {
		return opts, err
	}

	format := opts.prefs.OutputFormat
	if cmd.Flags().Changed("output") {
		format, _ = cmd.Flags().GetString("output")
	}
	if opts.format, err = report.ParseFormat(format); err != nil {
		return opts, err
	}

	opts.noNmap, _ = cmd.Flags().GetBool("no-nmap")
	opts.noLookups, _ = cmd.Flags().GetBool("no-lookups")
	opts.noAnalysis, _ = cmd.Flags().GetBool("no-analysis")
	opts.noProgress, _ = cmd.Flags().GetBool("no-progress")
	noColor, _ := cmd.Flags().GetBool("no-color")

	if f, ok := cmd.OutOrStdout().(*os.File); ok && opts.prefs.ColorOutput {
		opts.color = report.ColorEnabled(f, noColor)
	}
	return opts, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	debug, _ := cmd.Flags().GetBool("debug")
	log := logging.New(cmd.ErrOrStderr(), debug)

	cm, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	opts, err := scanOptionsFromFlags(cmd, args, cm)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	log = log.With().Str("run_id", runID).Logger()

	ctx := cmd.Context()
	req := ops.ScanRequest{
		Host:        opts.target,
		Ports:       opts.ports,
		Concurrency: opts.settings.Concurrency,
		Timeout:     opts.settings.Timeout,
	}
	if err := req.Validate(); err != nil {
		return err
	}
	if err := checkTarget(ctx, req, log); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	table := opts.format == report.FormatTable
	renderer := report.NewRenderer(out, opts.color, opts.prefs.ShowBanners)
	if table {
		renderer.PrintBanner(opts.target, opts.ports, opts.settings.Concurrency, opts.settings.Profile)
	}

	started := time.Now()
	// Probing always runs to completion; an interrupt only stops the later stages.
	result := probe(context.WithoutCancel(ctx), req, opts, log)
	elapsed := time.Since(started)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	services := enrichServices(ctx, opts, log)
	rows := report.Merge(result, services)
	doc := report.NewDocument(runID, opts.target, opts.ports, started, elapsed, rows)

	if table {
		renderer.Table(doc)
	}

	var intel lookup.Intel
	if !opts.noLookups {
		intel = lookup.NewGatherer(lookup.WithLogger(log)).Gather(ctx, opts.target)
		doc.Intel = &intel
		if table {
			renderer.Section("DNS", intel.DNS)
			renderer.Section("HTTP HEADERS", intel.HTTP)
		}
	}
	if !opts.noAnalysis {
		doc.Analysis = analyse(ctx, opts, rows, intel, log)
		if table {
			renderer.Section("ANALYSIS", analysis.Highlight(doc.Analysis, opts.color))
		}
	}

	if table {
		return nil
	}
	return renderer.Render(opts.format, doc)
}

func checkTarget(ctx context.Context, req ops.ScanRequest, log zerolog.Logger) error {
	checker, err := compliance.NewChecker(compliance.GetDefaultPolicy())
	if err != nil {
		return err
	}
	if err := checker.CheckConcurrency(req.Concurrency); err != nil {
		return err
	}

	verdict, err := checker.CheckTarget(ctx, req.Host)
	switch {
	case errors.Is(err, compliance.ErrUnresolvable):
		log.Warn().Str("target", req.Host).Msg("target does not resolve, ports will be reported filtered")
		return nil
	case err != nil:
		return err
	}
	if verdict.Public {
		log.Warn().Str("target", req.Host).Msg("public target: scan only hosts you are authorised to test")
	}
	return nil
}

func probe(ctx context.Context, req ops.ScanRequest, opts scanOptions, log zerolog.Logger) ops.ScanResult {
	prober := ops.NewProber(
		ops.WithBannerTimeout(opts.settings.BannerTimeout),
		ops.WithProberLogger(log),
	)
	engineOpts := []ops.EngineOption{ops.WithEngineLogger(log)}

	var progress *display.Progress
	if !opts.noProgress && opts.format == report.FormatTable {
		progress = display.NewProgress(len(req.Ports))
		engineOpts = append(engineOpts, ops.WithProgress(progress.Tick))
	}

	log.Info().
		Str("target", req.Host).
		Int("ports", len(req.Ports)).
		Int("concurrency", req.Concurrency).
		Dur("timeout", req.Timeout).
		Msg("starting probe")

	result := ops.NewEngine(prober, engineOpts...).Scan(ctx, req)
	if progress != nil {
		progress.Finish()
	}
	return result
}

func enrichServices(ctx context.Context, opts scanOptions, log zerolog.Logger) enrich.Services {
	if opts.noNmap {
		return nil
	}

	pm := privileges.NewPrivilegeManager()
	log.Debug().
		Stringer("level", pm.GetLevel()).
		Strs("capabilities", pm.GetAvailableCapabilities()).
		Msg("privileges detected")
	for _, reason := range pm.GetFallbackReasons() {
		log.Debug().Str("reason", reason).Msg("nmap falls back to connect scan")
	}

	n := enrich.NewNmap(opts.prefs.NmapPath, pm, nmapTimeout, log)
	services, err := n.Enrich(ctx, opts.target, ops.FormatPortSpec(opts.ports))
	switch {
	case errors.Is(err, enrich.ErrNmapNotFound):
		log.Warn().Msg("nmap not found, continuing without service detection")
	case err != nil:
		log.Warn().Err(err).Msg("nmap enrichment failed")
	}
	return services
}

func analyse(ctx context.Context, opts scanOptions, rows []report.Row, intel lookup.Intel, log zerolog.Logger) string {
	runner, err := analysis.NewRunner(opts.prefs.AnalysisCommand, log)
	if err != nil {
		log.Warn().Err(err).Msg("analysis skipped")
		return ""
	}
	text, err := runner.Run(ctx, analysis.BuildPrompt(report.Summary(rows), intel))
	switch {
	case errors.Is(err, analysis.ErrCommandNotFound):
		log.Warn().Str("command", opts.prefs.AnalysisCommand).Msg("analysis command not found, skipping")
	case err != nil:
		log.Warn().Err(err).Msg("analysis failed")
	}
	return text
}
