package analyzer

import (
	"encoding/json"

	awstype "github.com/ppiankov/configspectre/internal/aws"
	"github.com/ppiankov/configspectre/internal/metadata"
)

// ReportEntry is one base rule with the resources that violate it.
type ReportEntry struct {
	Rule      string
	Resources []awstype.ResourceEvaluation
	Severity  metadata.Severity
	// Fields are the descriptive metadata fields merged into the entry.
	Fields map[string]any
}

// MarshalJSON flattens the entry into one object with sorted keys: metadata
// fields plus rule, resources and severity, which take precedence.
func (e ReportEntry) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(e.Fields)+3)
	for k, v := range e.Fields {
		obj[k] = v
	}
	obj["rule"] = e.Rule
	resources := e.Resources
	if resources == nil {
		resources = []awstype.ResourceEvaluation{}
	}
	obj["resources"] = resources
	if e.Severity != "" {
		obj["severity"] = e.Severity
	} else {
		delete(obj, "severity")
	}
	return json.Marshal(obj)
}

// Report is the compliance report of one aggregator.
type Report struct {
	BusinessUnit    string        `json:"BusinessUnit"`
	AggregatorName  string        `json:"AggregatorName"`
	AggregatorRules []ReportEntry `json:"AggregatorRules"`

	// Region is the aggregator's home region.
	Region string `json:"-"`
	// Tags are the aggregator tags, used for recipient selection.
	Tags map[string]string `json:"-"`
	// Unmatched lists rule names whose base name could not be derived.
	Unmatched []string `json:"-"`
	// Unknown lists base rule names without metadata; they are not reported.
	Unknown []string `json:"-"`
}

// ResourceCount returns the number of evaluations across all entries.
func (r *Report) ResourceCount() int {
	n := 0
	for _, e := range r.AggregatorRules {
		n += len(e.Resources)
	}
	return n
}

// BySeverity counts evaluations per severity. Entries without a severity are
// counted under "None".
func (r *Report) BySeverity() map[string]int {
	out := make(map[string]int)
	for _, e := range r.AggregatorRules {
		key := string(e.Severity)
		if key == "" {
			key = "None"
		}
		out[key] += len(e.Resources)
	}
	return out
}

// Counts converts the report into the figures published as metrics.
func (r *Report) Counts() awstype.ComplianceCounts {
	return awstype.ComplianceCounts{
		BusinessUnit: r.BusinessUnit,
		Aggregator:   r.AggregatorName,
		Rules:        len(r.AggregatorRules),
		Resources:    r.ResourceCount(),
		BySeverity:   r.BySeverity(),
	}
}

// Summary holds aggregated statistics about a run.
type Summary struct {
	AggregatorsReported int            `json:"aggregators_reported"`
	TotalRules          int            `json:"total_rules"`
	TotalResources      int            `json:"total_resources"`
	BySeverity          map[string]int `json:"by_severity"`
	UnmatchedRules      int            `json:"unmatched_rules"`
	UnknownRules        int            `json:"unknown_rules"`
}

// Summarize computes run totals across reports.
func Summarize(reports []*Report) Summary {
	s := Summary{
		AggregatorsReported: len(reports),
		BySeverity:          make(map[string]int),
	}
	for _, r := range reports {
		s.TotalRules += len(r.AggregatorRules)
		s.TotalResources += r.ResourceCount()
		s.UnmatchedRules += len(r.Unmatched)
		s.UnknownRules += len(r.Unknown)
		for k, v := range r.BySeverity() {
			s.BySeverity[k] += v
		}
	}
	return s
}
