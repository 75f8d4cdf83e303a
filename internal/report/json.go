package report

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ppiankov/configspectre/internal/analyzer"
)

type jsonEnvelope struct {
	Schema    string           `json:"$schema"`
	Tool      string           `json:"tool"`
	Version   string           `json:"version"`
	Timestamp time.Time        `json:"timestamp"`
	Target    Target           `json:"target"`
	Config    ReportConfig     `json:"config"`
	Reports   []jsonReport     `json:"reports"`
	Summary   analyzer.Summary `json:"summary"`
	Errors    []string         `json:"errors,omitempty"`
}

type jsonReport struct {
	*analyzer.Report
	DataQuality DataQuality `json:"data_quality"`
}

// DataQuality lists the rule names left out of a report.
type DataQuality struct {
	// Unmatched rule names did not yield a base name.
	Unmatched []string `json:"unmatched"`
	// Unknown base names have no metadata.
	Unknown []string `json:"unknown"`
}

// DataQualityOf returns the data-quality gaps of r with empty lists instead of nil.
func DataQualityOf(r *analyzer.Report) DataQuality {
	dq := DataQuality{Unmatched: r.Unmatched, Unknown: r.Unknown}
	if dq.Unmatched == nil {
		dq.Unmatched = []string{}
	}
	if dq.Unknown == nil {
		dq.Unknown = []string{}
	}
	return dq
}

// Generate writes the JSON envelope.
func (r *JSONReporter) Generate(data Data) error {
	reports := make([]jsonReport, 0, len(data.Reports))
	for _, rep := range data.Reports {
		reports = append(reports, jsonReport{Report: rep, DataQuality: DataQualityOf(rep)})
	}
	env := jsonEnvelope{
		Schema:    "spectre/v1",
		Tool:      data.Tool,
		Version:   data.Version,
		Timestamp: data.Timestamp,
		Target:    data.Target,
		Config:    data.Config,
		Reports:   reports,
		Summary:   data.Summary,
		Errors:    data.Errors,
	}

	enc := json.NewEncoder(r.Writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return fmt.Errorf("encode JSON report: %w", err)
	}
	return nil
}
