package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/ppiankov/configspectre/internal/metadata"
)

var (
	highColor   = color.New(color.FgRed, color.Bold)
	mediumColor = color.New(color.FgYellow)
	lowColor    = color.New(color.FgCyan)
	headColor   = color.New(color.Bold)
)

func severityLabel(s metadata.Severity) string {
	label := string(s)
	if label == "" {
		label = "-"
	}
	label = fmt.Sprintf("%-6s", label)

	switch s {
	case metadata.SeverityHigh:
		return highColor.Sprint(label)
	case metadata.SeverityMedium:
		return mediumColor.Sprint(label)
	case metadata.SeverityLow:
		return lowColor.Sprint(label)
	default:
		return label
	}
}

// Generate writes one block per aggregator followed by a summary.
func (r *TextReporter) Generate(data Data) error {
	w := r.Writer
	headColor.Fprintf(w, "%s %s compliance report (%s)\n\n", data.Tool, data.Version, data.Timestamp.Format("2006-01-02 15:04 MST"))

	if len(data.Reports) == 0 {
		fmt.Fprintln(w, "No aggregators matched.")
	}

	for _, rep := range data.Reports {
		headColor.Fprintf(w, "%s (%s)\n", rep.BusinessUnit, rep.AggregatorName)
		if len(rep.AggregatorRules) == 0 {
			fmt.Fprintln(w, "  No non-compliant rules found")
		}
		for _, e := range rep.AggregatorRules {
			fmt.Fprintf(w, "  %s %-50s %d resources\n", severityLabel(e.Severity), e.Rule, len(e.Resources))
			for _, res := range e.Resources {
				fmt.Fprintf(w, "      %s %s (%s/%s)\n", res.ResourceType, res.ResourceID, res.AccountID, res.Region)
			}
		}
		if len(rep.Unmatched) > 0 {
			fmt.Fprintf(w, "  unmatched rule names: %s\n", strings.Join(rep.Unmatched, ", "))
		}
		if len(rep.Unknown) > 0 {
			fmt.Fprintf(w, "  rules without metadata: %s\n", strings.Join(rep.Unknown, ", "))
		}
		fmt.Fprintln(w)
	}

	s := data.Summary
	headColor.Fprintln(w, "Summary")
	fmt.Fprintf(w, "  Aggregators reported: %d\n", s.AggregatorsReported)
	fmt.Fprintf(w, "  Non-compliant rules:  %d\n", s.TotalRules)
	fmt.Fprintf(w, "  Resources:            %d\n", s.TotalResources)

	keys := make([]string, 0, len(s.BySeverity))
	for k := range s.BySeverity {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return metadata.Severity(keys[i]).Rank() < metadata.Severity(keys[j]).Rank()
	})
	for _, k := range keys {
		fmt.Fprintf(w, "    %-8s %d\n", k, s.BySeverity[k])
	}

	if len(data.Errors) > 0 {
		fmt.Fprintf(w, "\nErrors (%d):\n", len(data.Errors))
		for _, e := range data.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	return nil
}
