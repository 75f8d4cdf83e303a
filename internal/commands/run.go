package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ppiankov/configspectre/internal/analyzer"
	"github.com/ppiankov/configspectre/internal/aws"
	"github.com/ppiankov/configspectre/internal/config"
	"github.com/ppiankov/configspectre/internal/report"
	"github.com/ppiankov/configspectre/internal/runner"
)

var runFlags struct {
	regions     []string
	allRegions  bool
	level       string
	metadata    string
	noEnrich    bool
	unmatched   string
	concurrency int
	format      string
	outputFile  string
	dryRun      bool
	timeout     time.Duration
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build and send compliance reports",
	Long: `Read every AWS Config aggregator at the requested level, collect its
non-compliant resources grouped by base rule name and send one report per
aggregator. A local summary is written in the selected format.`,
	RunE: runReports,
}

func init() {
	runCmd.Flags().StringSliceVar(&runFlags.regions, "regions", nil, "Comma-separated aggregator home regions")
	runCmd.Flags().BoolVar(&runFlags.allRegions, "all-regions", false, "Read aggregators in all enabled regions")
	runCmd.Flags().StringVar(&runFlags.level, "level", "", "Aggregator level to report on (default: BusinessUnit)")
	runCmd.Flags().StringVar(&runFlags.metadata, "metadata", "", "Rule metadata file, local path or s3:// URI (default: rule_info.json)")
	runCmd.Flags().BoolVar(&runFlags.noEnrich, "no-enrich", false, "Report every rule without severity metadata")
	runCmd.Flags().StringVar(&runFlags.unmatched, "unmatched", "", "Rule names not matching the pattern: skip or fail")
	runCmd.Flags().IntVar(&runFlags.concurrency, "concurrency", 0, "Aggregators processed in parallel (default: 1)")
	runCmd.Flags().StringVar(&runFlags.format, "format", "text", "Output format: text, json, sarif")
	runCmd.Flags().StringVarP(&runFlags.outputFile, "output", "o", "", "Output file path (default: stdout)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "Print mail payloads instead of sending them")
	runCmd.Flags().DurationVar(&runFlags.timeout, "timeout", 0, "Run timeout (default: 10m)")
}

func runReports(cmd *cobra.Command, _ []string) error {
	applyRunFlags(cmd)
	runCfg := cfg.WithDefaults()
	if err := runCfg.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if d := runCfg.TimeoutDuration(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	prof := resolveProfile()
	client, err := aws.NewClient(ctx, prof, resolveHomeRegion(), aws.RetryConfig{
		MaxAttempts: runCfg.MaxAttempts,
		MaxBackoff:  runCfg.MaxBackoffDuration(),
	})
	if err != nil {
		return enhanceError("initialize AWS client", err)
	}

	account := prof
	if id, err := client.CallerIdentity(ctx); err != nil {
		slog.Warn("Could not determine caller identity", "error", err)
	} else {
		slog.Info("Running as", "account", id.Account, "arn", id.ARN)
		account = id.Account
	}

	regions, err := resolveRegions(ctx, client, runCfg)
	if err != nil {
		return enhanceError("resolve regions", err)
	}
	slog.Info("Reading aggregators", "regions", regions)

	// Payloads own stdout in a dry run; the local report moves to stderr.
	fallback := io.Writer(os.Stdout)
	if runFlags.dryRun {
		fallback = os.Stderr
	}

	r, err := runner.Setup(ctx, runCfg, client, runner.SetupOptions{
		Regions: regions,
		DryRun:  runFlags.dryRun,
		Out:     os.Stdout,
	})
	if err != nil {
		return enhanceError("prepare run", err)
	}

	result, err := r.Run(ctx)
	if err != nil {
		return enhanceError("run compliance reports", err)
	}

	data := report.Data{
		Tool:      "configspectre",
		Version:   version,
		Timestamp: time.Now().UTC(),
		Target: report.Target{
			Type:    "aws-account",
			URIHash: computeTargetHash(account, regions),
		},
		Config: report.ReportConfig{
			Regions:  regions,
			Level:    runCfg.Level,
			Enriched: runCfg.EnrichEnabled(),
		},
		Reports: result.Reports,
		Summary: analyzer.Summarize(result.Reports),
		Errors:  result.Errors,
	}

	reporter, closeFn, err := selectReporter(runFlags.format, runFlags.outputFile, fallback)
	if err != nil {
		return err
	}
	defer closeFn()
	return reporter.Generate(data)
}

// applyRunFlags overlays explicitly set flags on the loaded config.
func applyRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("regions") {
		cfg.Regions = runFlags.regions
	}
	if flags.Changed("level") {
		cfg.Level = runFlags.level
	}
	if flags.Changed("metadata") {
		cfg.Metadata = runFlags.metadata
	}
	if runFlags.noEnrich {
		off := false
		cfg.Enrich = &off
	}
	if flags.Changed("unmatched") {
		cfg.Unmatched = runFlags.unmatched
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = runFlags.concurrency
	}
	if flags.Changed("timeout") {
		cfg.Timeout = runFlags.timeout.String()
	}
	if !flags.Changed("format") && cfg.Format != "" {
		runFlags.format = cfg.Format
	}
}

func resolveRegions(ctx context.Context, client *aws.Client, c config.Config) ([]string, error) {
	if len(c.Regions) > 0 {
		return c.Regions, nil
	}

	if runFlags.allRegions {
		return client.ListEnabledRegions(ctx)
	}

	r := client.Config().Region
	if r == "" {
		return nil, fmt.Errorf("no region specified; use --regions, --all-regions, or set AWS_REGION")
	}
	return []string{r}, nil
}

func selectReporter(format, outputFile string, fallback io.Writer) (report.Reporter, func(), error) {
	w := fallback
	closeFn := func() {}
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return nil, nil, fmt.Errorf("create output file: %w", err)
		}
		w = f
		closeFn = func() { _ = f.Close() }
		// color checks only stdout for a terminal.
		color.NoColor = true
	}

	switch format {
	case "json":
		return &report.JSONReporter{Writer: w}, closeFn, nil
	case "text":
		return &report.TextReporter{Writer: w}, closeFn, nil
	case "sarif":
		return &report.SARIFReporter{Writer: w}, closeFn, nil
	default:
		closeFn()
		return nil, nil, fmt.Errorf("unsupported format: %s (use text, json, or sarif)", format)
	}
}
