package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/ppiankov/configspectre/internal/config"
	"github.com/ppiankov/configspectre/internal/metadata"
)

func TestSelectReporter(t *testing.T) {
	var buf bytes.Buffer
	for _, format := range []string{"text", "json", "sarif"} {
		r, closeFn, err := selectReporter(format, "", &buf)
		if err != nil {
			t.Fatalf("format %s: unexpected error: %v", format, err)
		}
		if r == nil {
			t.Fatalf("format %s: nil reporter", format)
		}
		closeFn()
	}

	if _, _, err := selectReporter("spectrehub", "", &buf); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestSelectReporter_FileDisablesColor(t *testing.T) {
	saved := color.NoColor
	t.Cleanup(func() { color.NoColor = saved })
	color.NoColor = false

	out := filepath.Join(t.TempDir(), "report.txt")
	_, closeFn, err := selectReporter("text", out, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	closeFn()

	if !color.NoColor {
		t.Fatal("expected color disabled when writing to a file")
	}
}

func TestSampleFilesParse(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".configspectre.yaml"), []byte(sampleConfig), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	loaded, err := config.Load(dir)
	if err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if err := loaded.Validate(); err != nil {
		t.Fatalf("sample config invalid: %v", err)
	}
	if loaded.Delivery.From == "" {
		t.Fatal("sample config should set delivery.from")
	}

	catalog, err := metadata.Parse([]byte(sampleRuleInfo), metadata.FormatJSON)
	if err != nil {
		t.Fatalf("sample rule info does not parse: %v", err)
	}
	if catalog.Len() != 3 {
		t.Fatalf("expected 3 sample rules, got %d", catalog.Len())
	}

	var policy map[string]any
	if err := json.Unmarshal([]byte(sampleIAMPolicy), &policy); err != nil {
		t.Fatalf("sample policy is not JSON: %v", err)
	}
	if !strings.Contains(sampleIAMPolicy, "config:GetAggregateComplianceDetailsByConfigRule") {
		t.Fatal("policy must allow evaluation lookups")
	}
}

func TestWriteIfNotExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "file.txt")
	if err := writeIfNotExists(path, "first", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := writeIfNotExists(path, "second", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "first" {
		t.Fatalf("existing file overwritten without force: %q", data)
	}
	if err := writeIfNotExists(path, "third", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "third" {
		t.Fatalf("expected forced overwrite, got %q", data)
	}
}
