package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/ppiankov/configspectre/internal/analyzer"
	awstype "github.com/ppiankov/configspectre/internal/aws"
	"github.com/ppiankov/configspectre/internal/config"
	"github.com/ppiankov/configspectre/internal/metadata"
	"github.com/ppiankov/configspectre/internal/notify"
)

// SetupOptions carries run settings that do not come from the config file.
type SetupOptions struct {
	// Regions are the home regions to read aggregators from. Empty uses the
	// client's region.
	Regions []string
	// DryRun writes payloads to Out instead of sending them.
	DryRun bool
	Out    io.Writer
}

// Setup wires a Runner from configuration and an AWS client.
func Setup(ctx context.Context, cfg config.Config, client *awstype.Client, so SetupOptions) (*Runner, error) {
	cfg = cfg.WithDefaults()

	pipeline, err := NewPipeline(ctx, cfg, client.NewObjectStore())
	if err != nil {
		return nil, err
	}

	regions := so.Regions
	if len(regions) == 0 {
		regions = []string{""}
	}
	sources := make([]Source, 0, len(regions))
	for _, region := range regions {
		sources = append(sources, SourceFromService(client.NewConfigServiceForRegion(region)))
	}

	var dispatcher notify.Dispatcher
	if so.DryRun {
		dispatcher = &notify.WriterDispatcher{Writer: so.Out}
	} else {
		dispatcher, err = NewSESDispatcher(cfg, sesv2.NewFromConfig(client.ConfigForRegion(cfg.HomeRegion)))
		if err != nil {
			return nil, err
		}
	}

	r := New(sources, pipeline, dispatcher, Options{
		LevelTag:    cfg.LevelTag,
		Level:       cfg.Level,
		Concurrency: cfg.Concurrency,
		ArchiveURI:  cfg.Archive.URI,
	})

	if cfg.Metrics.Enabled && !so.DryRun {
		r.WithMetrics(client.NewMetricsPublisher(cfg.Metrics.Namespace))
	}
	if cfg.Archive.URI != "" {
		if !awstype.IsS3URI(cfg.Archive.URI) {
			return nil, fmt.Errorf("archive uri %q is not an s3:// location", cfg.Archive.URI)
		}
		r.WithArchive(client.NewObjectStore())
	}
	return r, nil
}

// NewPipeline builds the aggregation pipeline, loading rule metadata when
// enrichment is on.
func NewPipeline(ctx context.Context, cfg config.Config, remote metadata.Fetcher) (*analyzer.Pipeline, error) {
	pattern, err := analyzer.CompilePattern(cfg.RuleNamePattern)
	if err != nil {
		return nil, err
	}
	unmatched, err := analyzer.ParseUnmatchedPolicy(cfg.Unmatched)
	if err != nil {
		return nil, err
	}

	pc := analyzer.PipelineConfig{
		Pattern:         pattern,
		Unmatched:       unmatched,
		BusinessUnitTag: cfg.BusinessUnitTag,
	}
	if cfg.EnrichEnabled() {
		catalog, err := metadata.Load(ctx, cfg.Metadata, remote)
		if err != nil {
			return nil, err
		}
		slog.Info("Loaded rule metadata", "source", cfg.Metadata, "rules", catalog.Len())
		slog.Debug("Rules with metadata", "names", catalog.Names())
		pc.Metadata = catalog
	}
	return analyzer.NewPipeline(pc), nil
}

// NewSESDispatcher builds the mail dispatcher from the delivery settings.
func NewSESDispatcher(cfg config.Config, client notify.SESAPI) (*notify.SESDispatcher, error) {
	mode, err := notify.ParseMode(cfg.Delivery.Mode)
	if err != nil {
		return nil, err
	}
	if cfg.Delivery.From == "" {
		return nil, fmt.Errorf("delivery.from is required to send reports")
	}
	return notify.NewSESDispatcher(client, notify.SESOptions{
		Mode:             mode,
		From:             cfg.Delivery.From,
		ReplyTo:          cfg.Delivery.ReplyTo,
		SourceARN:        cfg.Delivery.SourceARN,
		ConfigurationSet: cfg.Delivery.ConfigurationSet,
		Template:         cfg.Delivery.Template,
		Subject:          cfg.Delivery.Subject,
		Recipients: notify.Recipients{
			UseContactTag: cfg.UseContactTag,
			ContactTag:    cfg.ContactTag,
			BusinessUnits: cfg.Delivery.Recipients.BusinessUnits,
			Default:       cfg.Delivery.Recipients.Default,
		},
	}), nil
}
