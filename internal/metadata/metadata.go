// Package metadata loads the rule metadata side file that maps base rule
// names to a severity and free-form descriptive fields.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Severity is the priority of a rule as declared in the metadata file.
type Severity string

const (
	SeverityHigh   Severity = "High"
	SeverityMedium Severity = "Medium"
	SeverityLow    Severity = "Low"
)

// unrankedSeverity sorts after every known severity.
const unrankedSeverity = 3

// Rank orders severities most severe first: High 0, Medium 1, Low 2.
// An empty or unknown severity ranks last.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	case SeverityLow:
		return 2
	default:
		return unrankedSeverity
	}
}

// ParseSeverity accepts High, Medium or Low in any letter case.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return SeverityHigh, nil
	case "medium":
		return SeverityMedium, nil
	case "low":
		return SeverityLow, nil
	}
	return "", fmt.Errorf("unknown severity %q (want High, Medium or Low)", s)
}

// ErrInvalidMetadata is returned when a record cannot be used for sorting.
var ErrInvalidMetadata = errors.New("invalid rule metadata")

// Record is the metadata of one base rule name.
type Record struct {
	Severity Severity
	// Fields holds every other key of the record, e.g. description or remediation.
	Fields map[string]any
}

// Catalog is an immutable index of records by base rule name.
type Catalog struct {
	records map[string]Record
}

// NewCatalog builds a catalog from already parsed records.
func NewCatalog(records map[string]Record) *Catalog {
	cp := make(map[string]Record, len(records))
	for k, v := range records {
		cp[k] = v
	}
	return &Catalog{records: cp}
}

// Lookup returns the record for a base rule name.
func (c *Catalog) Lookup(name string) (Record, bool) {
	if c == nil {
		return Record{}, false
	}
	r, ok := c.records[name]
	return r, ok
}

// Len returns the number of records.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.records)
}

// Names returns the base rule names in sorted order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.records))
	for n := range c.records {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Fetcher retrieves remote objects, e.g. from S3.
type Fetcher interface {
	Get(ctx context.Context, uri string) ([]byte, error)
}

// Load reads the metadata file at source. Sources starting with s3:// are
// fetched through remote; anything else is read from the local filesystem.
// The format is chosen from the extension: .yaml/.yml, otherwise JSON.
func Load(ctx context.Context, source string, remote Fetcher) (*Catalog, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(source, "s3://") {
		if remote == nil {
			return nil, fmt.Errorf("load metadata %s: no remote fetcher configured", source)
		}
		data, err = remote.Get(ctx, source)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("load metadata %s: %w", source, err)
	}

	cat, err := Parse(data, formatFor(source))
	if err != nil {
		return nil, fmt.Errorf("load metadata %s: %w", source, err)
	}
	return cat, nil
}

// Format selects the decoder for Parse.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

func formatFor(source string) Format {
	switch strings.ToLower(filepath.Ext(source)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Parse decodes a mapping of base rule name to record object.
// Every record must carry a severity of High, Medium or Low.
func Parse(data []byte, format Format) (*Catalog, error) {
	raw := map[string]map[string]any{}

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	}

	records := make(map[string]Record, len(raw))
	for name, obj := range raw {
		rec, err := toRecord(obj)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %s: %v", ErrInvalidMetadata, name, err)
		}
		records[name] = rec
	}
	return &Catalog{records: records}, nil
}

func toRecord(obj map[string]any) (Record, error) {
	v, ok := obj["severity"]
	if !ok {
		return Record{}, errors.New("missing severity")
	}
	s, ok := v.(string)
	if !ok {
		return Record{}, fmt.Errorf("severity must be a string, got %T", v)
	}
	sev, err := ParseSeverity(s)
	if err != nil {
		return Record{}, err
	}

	fields := make(map[string]any, len(obj))
	for k, v := range obj {
		if k == "severity" {
			continue
		}
		fields[k] = normalize(v)
	}
	return Record{Severity: sev, Fields: fields}, nil
}

// normalize converts YAML mappings with non-string keys into map[string]any
// so fields always encode as JSON.
func normalize(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	}
	return v
}
