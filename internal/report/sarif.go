package report

import (
	"encoding/json"
	"fmt"

	"github.com/ppiankov/configspectre/internal/metadata"
)

const sarifSchema = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json"

// sarifReport is the top-level SARIF v2.1.0 structure.
type sarifReport struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool      `json:"tool"`
	Results []sarifResult  `json:"results"`
	Props   map[string]any `json:"properties,omitempty"`
}

type sarifDataQuality struct {
	Aggregator string `json:"aggregator"`
	DataQuality
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Rules   []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string            `json:"id"`
	ShortDescription sarifMessage      `json:"shortDescription"`
	DefaultConfig    sarifDefaultLevel `json:"defaultConfiguration"`
}

type sarifDefaultLevel struct {
	Level string `json:"level"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID    string         `json:"ruleId"`
	Level     string         `json:"level"`
	Message   sarifMessage   `json:"message"`
	Locations []sarifLoc     `json:"locations,omitempty"`
	Props     map[string]any `json:"properties,omitempty"`
}

type sarifLoc struct {
	PhysicalLocation sarifPhysical `json:"physicalLocation"`
}

type sarifPhysical struct {
	ArtifactLocation sarifArtifact `json:"artifactLocation"`
}

type sarifArtifact struct {
	URI string `json:"uri"`
}

// Generate writes SARIF v2.1.0 output with one rule per base rule name and one
// result per non-compliant resource.
func (r *SARIFReporter) Generate(data Data) error {
	var rules []sarifRule
	seen := make(map[string]bool)
	results := []sarifResult{}
	var gaps []sarifDataQuality

	for _, rep := range data.Reports {
		if len(rep.Unmatched) > 0 || len(rep.Unknown) > 0 {
			gaps = append(gaps, sarifDataQuality{Aggregator: rep.AggregatorName, DataQuality: DataQualityOf(rep)})
		}
		for _, e := range rep.AggregatorRules {
			level := sarifLevel(e.Severity)
			if !seen[e.Rule] {
				seen[e.Rule] = true
				rules = append(rules, sarifRule{
					ID:               e.Rule,
					ShortDescription: sarifMessage{Text: ruleDescription(e.Rule, e.Fields)},
					DefaultConfig:    sarifDefaultLevel{Level: level},
				})
			}

			for _, res := range e.Resources {
				results = append(results, sarifResult{
					RuleID:  e.Rule,
					Level:   level,
					Message: sarifMessage{Text: fmt.Sprintf("%s %s is non-compliant with %s", res.ResourceType, res.ResourceID, res.ConfigRuleName)},
					Locations: []sarifLoc{
						{
							PhysicalLocation: sarifPhysical{
								ArtifactLocation: sarifArtifact{
									URI: fmt.Sprintf("aws://%s/%s/%s/%s", res.AccountID, res.Region, res.ResourceType, res.ResourceID),
								},
							},
						},
					},
					Props: map[string]any{
						"aggregator":   rep.AggregatorName,
						"businessUnit": rep.BusinessUnit,
						"configRule":   res.ConfigRuleName,
					},
				})
			}
		}
	}

	report := sarifReport{
		Schema:  sarifSchema,
		Version: "2.1.0",
		Runs: []sarifRun{
			{
				Tool: sarifTool{
					Driver: sarifDriver{
						Name:    data.Tool,
						Version: data.Version,
						Rules:   rules,
					},
				},
				Results: results,
			},
		},
	}
	if len(gaps) > 0 {
		report.Runs[0].Props = map[string]any{"dataQuality": gaps}
	}

	enc := json.NewEncoder(r.Writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode SARIF report: %w", err)
	}
	return nil
}

func sarifLevel(s metadata.Severity) string {
	switch s {
	case metadata.SeverityHigh:
		return "error"
	case metadata.SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}

func ruleDescription(rule string, fields map[string]any) string {
	if d, ok := fields["description"].(string); ok && d != "" {
		return d
	}
	return rule
}
