package runner

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/configspectre/internal/analyzer"
	awstype "github.com/ppiankov/configspectre/internal/aws"
	"github.com/ppiankov/configspectre/internal/notify"
	"github.com/ppiankov/configspectre/internal/report"
)

// AggregatorSource lists the aggregators of one home region.
type AggregatorSource interface {
	Aggregators(ctx context.Context) iter.Seq2[awstype.Aggregator, error]
}

// RuleLister lists the non-compliant rule stubs of an aggregator.
type RuleLister interface {
	ListNonCompliantRules(ctx context.Context, aggregator string) ([]awstype.ComplianceRule, error)
}

// Source is the set of AWS Config readers for one home region.
type Source struct {
	Region      string
	Catalog     AggregatorSource
	Rules       RuleLister
	Evaluations analyzer.EvaluationLister
}

// SourceFromService adapts a ConfigService into a Source.
func SourceFromService(s *awstype.ConfigService) Source {
	return Source{
		Region:      s.Region(),
		Catalog:     s.Catalog,
		Rules:       s.Rules,
		Evaluations: s.Evaluations,
	}
}

// MetricsPublisher publishes run totals.
type MetricsPublisher interface {
	Publish(ctx context.Context, counts []awstype.ComplianceCounts) error
}

// Archiver stores report payloads.
type Archiver interface {
	Put(ctx context.Context, uri, contentType string, data []byte) error
}

// Options controls aggregator selection and parallelism.
type Options struct {
	LevelTag    string
	Level       string
	Concurrency int
	// ArchiveURI is an s3:// prefix; each payload is stored under
	// <prefix>/<date>/<region>/<aggregator>.json.
	ArchiveURI string
}

// Runner drives one compliance run across all sources.
type Runner struct {
	sources    []Source
	pipeline   *analyzer.Pipeline
	dispatcher notify.Dispatcher
	metrics    MetricsPublisher
	archive    Archiver
	opts       Options
	now        func() time.Time
}

// New creates a runner. Metrics and archive are optional.
func New(sources []Source, pipeline *analyzer.Pipeline, dispatcher notify.Dispatcher, opts Options) *Runner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Runner{
		sources:    sources,
		pipeline:   pipeline,
		dispatcher: dispatcher,
		opts:       opts,
		now:        time.Now,
	}
}

// WithMetrics publishes per-report counts after dispatch.
func (r *Runner) WithMetrics(m MetricsPublisher) *Runner {
	r.metrics = m
	return r
}

// WithArchive stores each payload under opts.ArchiveURI.
func (r *Runner) WithArchive(a Archiver) *Runner {
	r.archive = a
	return r
}

// RunResult holds the outcome of a run.
type RunResult struct {
	Reports    []*analyzer.Report
	Dispatched int
	Failed     int
	Errors     []string
}

type target struct {
	source Source
	agg    awstype.Aggregator
}

// Run lists qualifying aggregators, builds their reports and dispatches each.
// Aggregators that fail are excluded and recorded in RunResult.Errors; a
// catalog page failure aborts the run.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{}

	targets, err := r.selectAggregators(ctx, result)
	if err != nil {
		return nil, err
	}
	slog.Info("Selected aggregators", "count", len(targets), "level_tag", r.opts.LevelTag, "level", r.opts.Level)

	reports := make([]*analyzer.Report, len(targets))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, t := range targets {
		g.Go(func() error {
			rep, err := r.buildReport(gctx, t)
			if err != nil {
				slog.Error("Aggregator failed", "aggregator", t.agg.Name, "region", t.source.Region, "error", err)
				mu.Lock()
				result.Errors = append(result.Errors, fmt.Sprintf("%s/%s: %v", t.source.Region, t.agg.Name, err))
				mu.Unlock()
				return nil
			}
			reports[i] = rep
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run interrupted: %w", err)
	}

	for _, rep := range reports {
		if rep != nil {
			result.Reports = append(result.Reports, rep)
		}
	}

	for _, rep := range result.Reports {
		r.deliver(ctx, rep, result)
	}

	if r.metrics != nil {
		counts := make([]awstype.ComplianceCounts, 0, len(result.Reports))
		for _, rep := range result.Reports {
			counts = append(counts, rep.Counts())
		}
		if err := r.metrics.Publish(ctx, counts); err != nil {
			slog.Warn("Failed to publish metrics", "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("metrics: %v", err))
		}
	}

	slog.Info("Run complete",
		"reports", len(result.Reports),
		"dispatched", result.Dispatched,
		"failed", result.Failed,
		"errors", len(result.Errors),
	)
	return result, nil
}

func (r *Runner) selectAggregators(ctx context.Context, result *RunResult) ([]target, error) {
	var targets []target
	for _, src := range r.sources {
		var listed []awstype.Aggregator
		for agg, err := range src.Catalog.Aggregators(ctx) {
			if err != nil {
				if agg.Name == "" {
					return nil, fmt.Errorf("list aggregators in %s: %w", src.Region, err)
				}
				slog.Error("Skipping aggregator", "aggregator", agg.Name, "region", src.Region, "error", err)
				result.Errors = append(result.Errors, fmt.Sprintf("%s/%s: %v", src.Region, agg.Name, err))
				continue
			}
			listed = append(listed, agg)
		}

		selected := awstype.FilterByLevel(listed, r.opts.LevelTag, r.opts.Level)
		slog.Debug("Filtered aggregators by level", "region", src.Region, "listed", len(listed), "selected", len(selected))
		for _, agg := range selected {
			targets = append(targets, target{source: src, agg: agg})
		}
	}
	return targets, nil
}

func (r *Runner) buildReport(ctx context.Context, t target) (*analyzer.Report, error) {
	rules, err := t.source.Rules.ListNonCompliantRules(ctx, t.agg.Name)
	if err != nil {
		return nil, err
	}
	slog.Debug("Listed non-compliant rules", "aggregator", t.agg.Name, "count", len(rules))
	return r.pipeline.Build(ctx, t.source.Evaluations, t.agg, rules)
}

func (r *Runner) deliver(ctx context.Context, rep *analyzer.Report, result *RunResult) {
	if r.dispatcher != nil {
		if _, err := r.dispatcher.Dispatch(ctx, rep); err != nil {
			result.Failed++
			var de *notify.DeliveryError
			if errors.As(err, &de) {
				slog.Error("Report delivery failed",
					"aggregator", rep.AggregatorName,
					"business_unit", rep.BusinessUnit,
					"code", de.Code,
					"message", de.Message,
				)
			} else {
				slog.Error("Report delivery failed", "aggregator", rep.AggregatorName, "error", err)
			}
			result.Errors = append(result.Errors, fmt.Sprintf("deliver %s: %v", rep.AggregatorName, err))
		} else {
			result.Dispatched++
		}
	}

	if r.archive != nil && r.opts.ArchiveURI != "" {
		data, err := report.TemplateData(rep)
		if err == nil {
			err = r.archive.Put(ctx, r.archiveKey(rep), "application/json", data)
		}
		if err != nil {
			slog.Warn("Failed to archive report", "aggregator", rep.AggregatorName, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("archive %s: %v", rep.AggregatorName, err))
		}
	}
}

func (r *Runner) archiveKey(rep *analyzer.Report) string {
	prefix := strings.TrimSuffix(r.opts.ArchiveURI, "/")
	region := rep.Region
	if region == "" {
		region = "default"
	}
	return fmt.Sprintf("%s/%s/%s/%s.json", prefix, r.now().UTC().Format("2006-01-02"), region, rep.AggregatorName)
}
