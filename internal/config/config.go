package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Defaults applied by WithDefaults.
const (
	DefaultLevelTag        = "AggregatorLevel"
	DefaultLevel           = "BusinessUnit"
	DefaultBusinessUnitTag = "BusinessUnit"
	DefaultContactTag      = "DevOpsContact"
	DefaultMetadata        = "rule_info.json"
	DefaultTimeout         = "10m"
)

// Config holds configspectre configuration loaded from .configspectre.yaml.
type Config struct {
	Profile         string   `yaml:"profile"`
	Regions         []string `yaml:"regions"`
	HomeRegion      string   `yaml:"home_region"`
	Level           string   `yaml:"level"`
	LevelTag        string   `yaml:"level_tag"`
	BusinessUnitTag string   `yaml:"business_unit_tag"`
	ContactTag      string   `yaml:"contact_tag"`
	UseContactTag   bool     `yaml:"use_contact_tag"`
	Metadata        string   `yaml:"metadata"`
	// Enrich joins entries with rule metadata; unset means true.
	Enrich          *bool    `yaml:"enrich"`
	RuleNamePattern string   `yaml:"rule_name_pattern"`
	Unmatched       string   `yaml:"unmatched"`
	Concurrency     int      `yaml:"concurrency"`
	Timeout         string   `yaml:"timeout"`
	MaxAttempts     int      `yaml:"max_attempts"`
	MaxBackoff      string   `yaml:"max_backoff"`
	Format          string   `yaml:"format"`
	Delivery        Delivery `yaml:"delivery"`
	Metrics         Metrics  `yaml:"metrics"`
	Archive         Archive  `yaml:"archive"`
}

// Delivery configures how reports are mailed.
type Delivery struct {
	Mode             string     `yaml:"mode"`
	From             string     `yaml:"from"`
	ReplyTo          []string   `yaml:"reply_to"`
	SourceARN        string     `yaml:"source_arn"`
	ConfigurationSet string     `yaml:"configuration_set"`
	Template         string     `yaml:"template"`
	Subject          string     `yaml:"subject"`
	Recipients       Recipients `yaml:"recipients"`
}

// Recipients lists addresses per business unit with a fallback.
type Recipients struct {
	Default       []string            `yaml:"default"`
	BusinessUnits map[string][]string `yaml:"business_units"`
}

// Metrics configures CloudWatch publishing of run totals.
type Metrics struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Archive configures where report payloads are stored.
type Archive struct {
	URI string `yaml:"uri"`
}

// EnrichEnabled reports whether metadata enrichment is on.
func (c Config) EnrichEnabled() bool {
	return c.Enrich == nil || *c.Enrich
}

// TimeoutDuration parses the timeout string as a duration.
func (c Config) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout)
}

// MaxBackoffDuration parses max_backoff as a duration.
func (c Config) MaxBackoffDuration() time.Duration {
	return parseDuration(c.MaxBackoff)
}

func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, _ := time.ParseDuration(s)
	return d
}

// WithDefaults returns a copy with unset fields filled in.
func (c Config) WithDefaults() Config {
	if c.LevelTag == "" {
		c.LevelTag = DefaultLevelTag
	}
	if c.Level == "" {
		c.Level = DefaultLevel
	}
	if c.BusinessUnitTag == "" {
		c.BusinessUnitTag = DefaultBusinessUnitTag
	}
	if c.ContactTag == "" {
		c.ContactTag = DefaultContactTag
	}
	if c.Metadata == "" {
		c.Metadata = DefaultMetadata
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.Timeout == "" {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	if c.Timeout != "" {
		if _, err := time.ParseDuration(c.Timeout); err != nil {
			return fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
		}
	}
	if c.MaxBackoff != "" {
		if _, err := time.ParseDuration(c.MaxBackoff); err != nil {
			return fmt.Errorf("invalid max_backoff %q: %w", c.MaxBackoff, err)
		}
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency)
	}
	return nil
}

// Load searches for .configspectre.yaml or .configspectre.yml in the given
// directory and returns the parsed config. Returns an empty Config if no file
// is found.
func Load(dir string) (Config, error) {
	candidates := []string{
		filepath.Join(dir, ".configspectre.yaml"),
		filepath.Join(dir, ".configspectre.yml"),
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}

		var cfg Config
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		return cfg, nil
	}

	return Config{}, nil
}

// envBindings maps config keys to the environment variables that override them.
// FROM_EMAIL and SUBJECT are accepted for existing lambda deployments.
var envBindings = map[string][]string{
	"profile":             {"CONFIGSPECTRE_PROFILE"},
	"regions":             {"CONFIGSPECTRE_REGIONS"},
	"home_region":         {"CONFIGSPECTRE_HOME_REGION"},
	"level":               {"CONFIGSPECTRE_LEVEL"},
	"metadata":            {"CONFIGSPECTRE_METADATA"},
	"enrich":              {"CONFIGSPECTRE_ENRICH"},
	"use_contact_tag":     {"CONFIGSPECTRE_USE_CONTACT_TAG"},
	"unmatched":           {"CONFIGSPECTRE_UNMATCHED"},
	"concurrency":         {"CONFIGSPECTRE_CONCURRENCY"},
	"timeout":             {"CONFIGSPECTRE_TIMEOUT"},
	"delivery.mode":       {"CONFIGSPECTRE_DELIVERY_MODE"},
	"delivery.from":       {"CONFIGSPECTRE_FROM", "FROM_EMAIL"},
	"delivery.subject":    {"CONFIGSPECTRE_SUBJECT", "SUBJECT"},
	"delivery.template":   {"CONFIGSPECTRE_TEMPLATE"},
	"delivery.recipients": {"CONFIGSPECTRE_RECIPIENTS"},
	"metrics.enabled":     {"CONFIGSPECTRE_METRICS"},
	"archive.uri":         {"CONFIGSPECTRE_ARCHIVE_URI"},
}

// ApplyEnv overrides cfg with values set in the environment.
func ApplyEnv(cfg Config) (Config, error) {
	v := viper.New()
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return cfg, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if v.IsSet("profile") {
		cfg.Profile = v.GetString("profile")
	}
	if v.IsSet("regions") {
		cfg.Regions = splitList(v.GetString("regions"))
	}
	if v.IsSet("home_region") {
		cfg.HomeRegion = v.GetString("home_region")
	}
	if v.IsSet("level") {
		cfg.Level = v.GetString("level")
	}
	if v.IsSet("metadata") {
		cfg.Metadata = v.GetString("metadata")
	}
	if v.IsSet("enrich") {
		enrich := v.GetBool("enrich")
		cfg.Enrich = &enrich
	}
	if v.IsSet("use_contact_tag") {
		cfg.UseContactTag = v.GetBool("use_contact_tag")
	}
	if v.IsSet("unmatched") {
		cfg.Unmatched = v.GetString("unmatched")
	}
	if v.IsSet("concurrency") {
		cfg.Concurrency = v.GetInt("concurrency")
	}
	if v.IsSet("timeout") {
		cfg.Timeout = v.GetString("timeout")
	}
	if v.IsSet("delivery.mode") {
		cfg.Delivery.Mode = v.GetString("delivery.mode")
	}
	if v.IsSet("delivery.from") {
		cfg.Delivery.From = v.GetString("delivery.from")
	}
	if v.IsSet("delivery.subject") {
		cfg.Delivery.Subject = v.GetString("delivery.subject")
	}
	if v.IsSet("delivery.template") {
		cfg.Delivery.Template = v.GetString("delivery.template")
	}
	if v.IsSet("delivery.recipients") {
		cfg.Delivery.Recipients.Default = splitList(v.GetString("delivery.recipients"))
	}
	if v.IsSet("metrics.enabled") {
		cfg.Metrics.Enabled = v.GetBool("metrics.enabled")
	}
	if v.IsSet("archive.uri") {
		cfg.Archive.URI = v.GetString("archive.uri")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
