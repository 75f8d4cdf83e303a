package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"

	awstype "github.com/ppiankov/configspectre/internal/aws"
	"github.com/ppiankov/configspectre/internal/metadata"
)

// DefaultRuleNamePattern strips one leading and one trailing dash-delimited
// segment, e.g. "cfg-s3-bucket-public-read-prohibited-abc123" becomes
// "s3-bucket-public-read-prohibited".
const DefaultRuleNamePattern = `^[^-]+-(.+)-[^-]+$`

// DefaultBusinessUnitTag is the aggregator tag naming the business unit.
const DefaultBusinessUnitTag = "BusinessUnit"

// ErrUnmatchedRuleName is returned under UnmatchedFail when a rule name does
// not match the base name pattern.
var ErrUnmatchedRuleName = errors.New("rule name does not match base name pattern")

// UnmatchedPolicy decides what happens to rules whose base name cannot be derived.
type UnmatchedPolicy string

const (
	// UnmatchedSkip leaves the rule out of the report and logs a warning.
	UnmatchedSkip UnmatchedPolicy = "skip"
	// UnmatchedFail aborts the aggregator.
	UnmatchedFail UnmatchedPolicy = "fail"
)

// ParseUnmatchedPolicy accepts "skip", "fail" or empty (skip).
func ParseUnmatchedPolicy(s string) (UnmatchedPolicy, error) {
	switch UnmatchedPolicy(s) {
	case "", UnmatchedSkip:
		return UnmatchedSkip, nil
	case UnmatchedFail:
		return UnmatchedFail, nil
	}
	return "", fmt.Errorf("unknown unmatched policy %q (use skip or fail)", s)
}

// CompilePattern compiles a base name pattern and checks it has a capture group.
func CompilePattern(expr string) (*regexp.Regexp, error) {
	if expr == "" {
		expr = DefaultRuleNamePattern
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile rule name pattern: %w", err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("rule name pattern %q has no capture group", expr)
	}
	return re, nil
}

// DeriveBaseName returns the first capture group of pattern in ruleName.
// It reports false when the pattern does not match or captures nothing.
func DeriveBaseName(pattern *regexp.Regexp, ruleName string) (string, bool) {
	m := pattern.FindStringSubmatch(ruleName)
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	return m[1], true
}

// EvaluationLister fetches the non-compliant evaluations of one rule stub.
type EvaluationLister interface {
	ListEvaluations(ctx context.Context, aggregator string, rule awstype.ComplianceRule) ([]awstype.ResourceEvaluation, error)
}

// PipelineConfig controls report assembly.
type PipelineConfig struct {
	// Pattern derives base rule names. Nil uses DefaultRuleNamePattern.
	Pattern *regexp.Regexp
	// Metadata enriches and filters entries. Nil disables enrichment: every
	// base name is reported, without severity, in first-seen order.
	Metadata        *metadata.Catalog
	Unmatched       UnmatchedPolicy
	BusinessUnitTag string
}

// Pipeline groups rule stubs by base name and assembles sorted reports.
type Pipeline struct {
	cfg PipelineConfig
}

// NewPipeline creates a pipeline, filling defaults for unset fields.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Pattern == nil {
		cfg.Pattern = regexp.MustCompile(DefaultRuleNamePattern)
	}
	if cfg.Unmatched == "" {
		cfg.Unmatched = UnmatchedSkip
	}
	if cfg.BusinessUnitTag == "" {
		cfg.BusinessUnitTag = DefaultBusinessUnitTag
	}
	return &Pipeline{cfg: cfg}
}

// Enriched reports whether entries are joined with metadata.
func (p *Pipeline) Enriched() bool {
	return p.cfg.Metadata != nil
}

// Build fetches evaluations for every rule stub of agg and returns its report.
// Evaluations of all rule names sharing a base name are merged into one entry.
// Any fetch error aborts the aggregator.
func (p *Pipeline) Build(ctx context.Context, evals EvaluationLister, agg awstype.Aggregator, rules []awstype.ComplianceRule) (*Report, error) {
	report := &Report{
		BusinessUnit:    agg.Tags[p.cfg.BusinessUnitTag],
		AggregatorName:  agg.Name,
		AggregatorRules: []ReportEntry{},
		Region:          agg.Region,
		Tags:            agg.Tags,
	}

	var order []string
	groups := make(map[string][]awstype.ResourceEvaluation)
	unknown := make(map[string]bool)

	for _, rule := range rules {
		base, ok := DeriveBaseName(p.cfg.Pattern, rule.Name)
		if !ok {
			if p.cfg.Unmatched == UnmatchedFail {
				return nil, fmt.Errorf("aggregator %s: %w: %s", agg.Name, ErrUnmatchedRuleName, rule.Name)
			}
			slog.Warn("Skipping rule with unexpected name", "aggregator", agg.Name, "rule", rule.Name)
			report.Unmatched = append(report.Unmatched, rule.Name)
			continue
		}

		if p.Enriched() {
			if _, found := p.cfg.Metadata.Lookup(base); !found {
				if !unknown[base] {
					unknown[base] = true
					report.Unknown = append(report.Unknown, base)
					slog.Debug("No metadata for rule, not reported", "aggregator", agg.Name, "rule", base)
				}
				continue
			}
		}

		found, err := evals.ListEvaluations(ctx, agg.Name, rule)
		if err != nil {
			return nil, fmt.Errorf("aggregator %s: %w", agg.Name, err)
		}

		if _, seen := groups[base]; !seen {
			order = append(order, base)
			groups[base] = nil
		}
		groups[base] = append(groups[base], found...)
	}

	for _, base := range order {
		entry := ReportEntry{Rule: base, Resources: groups[base]}
		if rec, ok := p.cfg.Metadata.Lookup(base); ok {
			entry.Severity = rec.Severity
			entry.Fields = rec.Fields
		}
		report.AggregatorRules = append(report.AggregatorRules, entry)
	}
	SortEntries(report.AggregatorRules)

	slog.Info("Built report",
		"aggregator", agg.Name,
		"business_unit", report.BusinessUnit,
		"rules", len(report.AggregatorRules),
		"resources", report.ResourceCount(),
		"unmatched", len(report.Unmatched),
		"unknown", len(report.Unknown),
	)
	return report, nil
}

// SortEntries orders entries most severe first; ties keep their order.
func SortEntries(entries []ReportEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Severity.Rank() < entries[j].Severity.Rank()
	})
}
