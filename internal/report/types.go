package report

import (
	"io"
	"time"

	"github.com/ppiankov/configspectre/internal/analyzer"
)

// Reporter renders run data to an output.
type Reporter interface {
	Generate(data Data) error
}

// Data is everything a reporter needs about one run.
type Data struct {
	Tool      string             `json:"tool"`
	Version   string             `json:"version"`
	Timestamp time.Time          `json:"timestamp"`
	Target    Target             `json:"target"`
	Config    ReportConfig       `json:"config"`
	Reports   []*analyzer.Report `json:"reports"`
	Summary   analyzer.Summary   `json:"summary"`
	Errors    []string           `json:"errors,omitempty"`
}

// Target identifies what was audited without exposing account details.
type Target struct {
	Type    string `json:"type"`
	URIHash string `json:"uri_hash"`
}

// ReportConfig records the settings the run used.
type ReportConfig struct {
	Regions  []string `json:"regions"`
	Level    string   `json:"level"`
	Enriched bool     `json:"enriched"`
}

// JSONReporter writes the spectre/v1 JSON envelope.
type JSONReporter struct {
	Writer io.Writer
}

// TextReporter writes a human-readable summary.
type TextReporter struct {
	Writer io.Writer
}

// SARIFReporter writes SARIF v2.1.0.
type SARIFReporter struct {
	Writer io.Writer
}
