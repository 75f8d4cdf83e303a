package report

import (
	"encoding/json"
	"fmt"

	"github.com/ppiankov/configspectre/internal/analyzer"
)

// TemplateData serialises a report into the JSON document handed to the mail
// template. Output is deterministic for equal reports.
func TemplateData(r *analyzer.Report) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode report %s: %w", r.AggregatorName, err)
	}
	return data, nil
}
