package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func TestLoad_NoFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Profile != "" {
		t.Fatalf("expected empty profile, got %q", cfg.Profile)
	}
	if cfg.Enrich != nil {
		t.Fatalf("expected enrich unset, got %v", *cfg.Enrich)
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, ".configspectre.yaml", `profile: audit
regions:
  - us-east-1
  - eu-west-1
level: Division
level_tag: Scope
use_contact_tag: true
metadata: s3://compliance-config/rule_info.yaml
enrich: false
rule_name_pattern: "-(.*?)-"
unmatched: fail
concurrency: 4
timeout: 5m
max_attempts: 8
max_backoff: 30s
delivery:
  mode: raw
  from: audit@example.com
  reply_to:
    - devops@example.com
  template: ComplianceReport
  recipients:
    default:
      - audit@example.com
    business_units:
      Finance:
        - cfo@example.com
metrics:
  enabled: true
  namespace: Compliance
archive:
  uri: s3://compliance-reports/daily
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Profile != "audit" {
		t.Fatalf("expected profile audit, got %q", cfg.Profile)
	}
	if len(cfg.Regions) != 2 {
		t.Fatalf("expected 2 regions, got %d", len(cfg.Regions))
	}
	if cfg.Level != "Division" || cfg.LevelTag != "Scope" {
		t.Fatalf("unexpected level %q/%q", cfg.LevelTag, cfg.Level)
	}
	if cfg.EnrichEnabled() {
		t.Fatal("expected enrichment disabled")
	}
	if cfg.RuleNamePattern != "-(.*?)-" {
		t.Fatalf("unexpected pattern %q", cfg.RuleNamePattern)
	}
	if cfg.Concurrency != 4 {
		t.Fatalf("expected concurrency 4, got %d", cfg.Concurrency)
	}
	if cfg.TimeoutDuration() != 5*time.Minute {
		t.Fatalf("expected 5m timeout, got %v", cfg.TimeoutDuration())
	}
	if cfg.MaxBackoffDuration() != 30*time.Second {
		t.Fatalf("expected 30s backoff, got %v", cfg.MaxBackoffDuration())
	}
	if cfg.Delivery.Mode != "raw" || cfg.Delivery.From != "audit@example.com" {
		t.Fatalf("unexpected delivery %+v", cfg.Delivery)
	}
	if got := cfg.Delivery.Recipients.BusinessUnits["Finance"]; len(got) != 1 || got[0] != "cfo@example.com" {
		t.Fatalf("unexpected Finance recipients %v", got)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Namespace != "Compliance" {
		t.Fatalf("unexpected metrics %+v", cfg.Metrics)
	}
	if cfg.Archive.URI != "s3://compliance-reports/daily" {
		t.Fatalf("unexpected archive %q", cfg.Archive.URI)
	}
}

func TestLoad_YMLExtension(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, ".configspectre.yml", "profile: staging\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Profile != "staging" {
		t.Fatalf("expected profile staging, got %q", cfg.Profile)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, ".configspectre.yaml", `[invalid yaml content`)

	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_YAMLPriority(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, ".configspectre.yaml", `profile: from-yaml`)
	writeConfig(t, dir, ".configspectre.yml", `profile: from-yml`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Profile != "from-yaml" {
		t.Fatalf("expected profile from-yaml (priority), got %q", cfg.Profile)
	}
}

func TestWithDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()
	if cfg.LevelTag != "AggregatorLevel" || cfg.Level != "BusinessUnit" {
		t.Fatalf("unexpected level defaults %q/%q", cfg.LevelTag, cfg.Level)
	}
	if cfg.ContactTag != "DevOpsContact" {
		t.Fatalf("unexpected contact tag %q", cfg.ContactTag)
	}
	if cfg.Metadata != "rule_info.json" {
		t.Fatalf("unexpected metadata default %q", cfg.Metadata)
	}
	if cfg.Concurrency != 1 {
		t.Fatalf("expected sequential default, got %d", cfg.Concurrency)
	}
	if !cfg.EnrichEnabled() {
		t.Fatal("expected enrichment on by default")
	}

	kept := Config{Level: "Division", Concurrency: 3}.WithDefaults()
	if kept.Level != "Division" || kept.Concurrency != 3 {
		t.Fatalf("defaults overwrote set values: %+v", kept)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"empty", Config{}, false},
		{"valid", Config{Timeout: "90s", MaxBackoff: "20s", Concurrency: 2}, false},
		{"bad-timeout", Config{Timeout: "soon"}, true},
		{"bad-backoff", Config{MaxBackoff: "1x"}, true},
		{"negative-concurrency", Config{Concurrency: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("CONFIGSPECTRE_REGIONS", "us-east-1, eu-west-1")
	t.Setenv("CONFIGSPECTRE_ENRICH", "false")
	t.Setenv("CONFIGSPECTRE_CONCURRENCY", "3")
	t.Setenv("CONFIGSPECTRE_RECIPIENTS", "a@example.com,b@example.com")
	t.Setenv("FROM_EMAIL", "legacy@example.com")

	cfg, err := ApplyEnv(Config{Profile: "kept", Delivery: Delivery{Mode: "raw"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Profile != "kept" {
		t.Fatalf("unset env changed profile to %q", cfg.Profile)
	}
	if len(cfg.Regions) != 2 || cfg.Regions[1] != "eu-west-1" {
		t.Fatalf("unexpected regions %v", cfg.Regions)
	}
	if cfg.EnrichEnabled() {
		t.Fatal("expected enrichment disabled by env")
	}
	if cfg.Concurrency != 3 {
		t.Fatalf("expected concurrency 3, got %d", cfg.Concurrency)
	}
	if len(cfg.Delivery.Recipients.Default) != 2 {
		t.Fatalf("unexpected recipients %v", cfg.Delivery.Recipients.Default)
	}
	if cfg.Delivery.From != "legacy@example.com" {
		t.Fatalf("expected legacy FROM_EMAIL, got %q", cfg.Delivery.From)
	}
	if cfg.Delivery.Mode != "raw" {
		t.Fatalf("unset env changed mode to %q", cfg.Delivery.Mode)
	}
}

func TestApplyEnv_PrefixedWinsOverLegacy(t *testing.T) {
	t.Setenv("CONFIGSPECTRE_SUBJECT", "new subject")
	t.Setenv("SUBJECT", "old subject")

	cfg, err := ApplyEnv(Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Delivery.Subject != "new subject" {
		t.Fatalf("expected prefixed variable to win, got %q", cfg.Delivery.Subject)
	}
}
