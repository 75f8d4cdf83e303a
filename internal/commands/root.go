package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ppiankov/configspectre/internal/config"
	"github.com/ppiankov/configspectre/internal/logging"
)

var (
	verbose   bool
	logFormat string
	profile   string
	region    string
	version   string
	commit    string
	date      string
	cfg       config.Config
)

var rootCmd = &cobra.Command{
	Use:   "configspectre",
	Short: "configspectre - AWS Config aggregator compliance reports",
	Long: `configspectre collects non-compliant resources from AWS Config aggregators,
groups them by base rule name, ranks them by severity using a rule metadata
file and mails one report per business unit.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(verbose, logFormat)
		loaded, err := config.Load(".")
		if err != nil {
			slog.Warn("Failed to load config file", "error", err)
		}
		loaded, err = config.ApplyEnv(loaded)
		if err != nil {
			slog.Warn("Failed to apply environment overrides", "error", err)
		}
		cfg = loaded
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with injected build info.
func Execute(v, c, d string) error {
	version = v
	commit = c
	date = d
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "AWS profile name")
	rootCmd.PersistentFlags().StringVar(&region, "region", "", "Region for SES, CloudWatch and S3 calls (default: from AWS config)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(templateCmd)
	rootCmd.AddCommand(versionCmd)
}

func resolveProfile() string {
	if profile != "" {
		return profile
	}
	return cfg.Profile
}

func resolveHomeRegion() string {
	if region != "" {
		return region
	}
	return cfg.HomeRegion
}
