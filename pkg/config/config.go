// Package config loads gh-uses settings from an optional file at the scan
// root, environment variables and defaults.
//
// Files are YAML (.gh-uses.yml, .gh-uses.yaml) or TOML (.gh-uses.toml). Each
// file is checked against an embedded JSON Schema before it is decoded, then
// semantic problems such as unknown rule ids are gathered by Validate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gobwas/glob"
	"github.com/goccy/go-yaml"

	"github.com/githubnext/gh-uses/pkg/constants"
	"github.com/githubnext/gh-uses/pkg/diagnostic"
	"github.com/githubnext/gh-uses/pkg/envutil"
	"github.com/githubnext/gh-uses/pkg/logger"
	"github.com/githubnext/gh-uses/pkg/rules"
)

var log = logger.New("config:config")

// Resolver modes.
const (
	// ModeAuto uses the GitHub API when a token is available and git otherwise.
	ModeAuto    = "auto"
	ModeOffline = "offline"
	ModeGit     = "git"
	ModeAPI     = "api"
)

var modes = []string{ModeAuto, ModeOffline, ModeGit, ModeAPI}

// Config is the complete set of scan settings.
type Config struct {
	Strict    bool                  `yaml:"strict" toml:"strict"`
	MaxDepth  int                   `yaml:"max_depth" toml:"max_depth"`
	FailOn    string                `yaml:"fail_on" toml:"fail_on"`
	Discovery Discovery             `yaml:"discovery" toml:"discovery"`
	Rules     map[string]RuleConfig `yaml:"rules" toml:"rules"`
	Pinning   Pinning               `yaml:"pinning" toml:"pinning"`
	Resolver  Resolver              `yaml:"resolver" toml:"resolver"`

	// Source is the file the configuration was read from, if any.
	Source string `yaml:"-" toml:"-"`
}

// Discovery selects entry documents.
type Discovery struct {
	// Patterns replace the default workflow and action patterns when set.
	Patterns    []string `yaml:"patterns" toml:"patterns"`
	Exclude     []string `yaml:"exclude" toml:"exclude"`
	SkipActions bool     `yaml:"skip_actions" toml:"skip_actions"`
	// RequireEntries makes a scan without entry documents fail. Unset means
	// true.
	RequireEntries *bool `yaml:"require_entries" toml:"require_entries"`
}

// EntriesRequired reports whether a scan needs at least one entry document.
func (d Discovery) EntriesRequired() bool {
	return d.RequireEntries == nil || *d.RequireEntries
}

// RuleConfig enables, disables or re-grades one rule.
type RuleConfig struct {
	Enabled  *bool  `yaml:"enabled" toml:"enabled"`
	Severity string `yaml:"severity" toml:"severity"`
}

// Pinning tunes the unpinned-ref rule.
type Pinning struct {
	RequireSHA    bool     `yaml:"require_sha" toml:"require_sha"`
	AllowedOwners []string `yaml:"allowed_owners" toml:"allowed_owners"`
}

// Resolver configures remote resolution.
type Resolver struct {
	Mode           string   `yaml:"mode" toml:"mode"`
	TimeoutSeconds int      `yaml:"timeout_seconds" toml:"timeout_seconds"`
	Concurrency    int      `yaml:"concurrency" toml:"concurrency"`
	CacheDir       string   `yaml:"cache_dir" toml:"cache_dir"`
	Host           string   `yaml:"host" toml:"host"`
	RateLimit      *float64 `yaml:"rate_limit" toml:"rate_limit"`
}

// RequestsPerSecond returns the API request budget; 0 disables limiting.
func (r Resolver) RequestsPerSecond() float64 {
	if r.RateLimit == nil {
		return constants.DefaultRateLimit
	}
	return *r.RateLimit
}

// Default returns the built-in settings.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills zero values. max_depth, timeout_seconds and concurrency
// have schema minimums of 1, so zero always means unset.
func (c *Config) applyDefaults() {
	if c.MaxDepth == 0 {
		c.MaxDepth = constants.DefaultMaxDepth
	}
	if c.FailOn == "" {
		c.FailOn = string(diagnostic.SeverityError)
	}
	if c.Resolver.Mode == "" {
		c.Resolver.Mode = ModeAuto
	}
	if c.Resolver.TimeoutSeconds == 0 {
		c.Resolver.TimeoutSeconds = int(constants.DefaultResolveTimeout / time.Second)
	}
	if c.Resolver.Concurrency == 0 {
		c.Resolver.Concurrency = constants.DefaultConcurrency
	}
}

// Find returns the first configuration file present in root, or "".
func Find(root string) string {
	for _, name := range constants.ConfigFileNames {
		p := filepath.Join(root, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// Load reads path and fills every value the file leaves out with its default.
func Load(path string) (*Config, error) {
	log.Printf("Loading configuration: %s", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{Source: path}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yml", ".yaml":
		err = decodeYAML(data, path, cfg)
	case ".toml":
		err = decodeTOML(data, path, cfg)
	default:
		err = fmt.Errorf("%s: unsupported config format %q (expected .yml, .yaml or .toml)", path, ext)
	}
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func decodeYAML(data []byte, path string, cfg *Config) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%s: invalid YAML: %w", path, err)
	}
	if raw == nil {
		return nil
	}
	if err := validateWithSchema(raw, path); err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func decodeTOML(data []byte, path string, cfg *Config) error {
	raw := map[string]any{}
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return fmt.Errorf("%s: invalid TOML: %w", path, err)
	}
	if err := validateWithSchema(raw, path); err != nil {
		return err
	}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// LoadForRoot loads explicit when set, otherwise the configuration file
// found in root, otherwise the defaults. Environment overrides are applied
// and the result is validated.
func LoadForRoot(root, explicit string) (*Config, error) {
	path := explicit
	if path == "" {
		path = Find(root)
	}

	cfg := Default()
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		log.Print("No configuration file found, using defaults")
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides values from GH_USES_* environment variables. Invalid
// values are logged and ignored.
func (c *Config) ApplyEnv() {
	if v, ok := envutil.LookupInt(constants.EnvMaxDepth, 1, constants.MaxMaxDepth, log); ok {
		c.MaxDepth = v
	}
	if v, ok := envutil.LookupInt(constants.EnvConcurrency, 1, constants.MaxConcurrency, log); ok {
		c.Resolver.Concurrency = v
	}
	if v, ok := envutil.LookupInt(constants.EnvTimeoutSeconds, 1, constants.MaxTimeoutSeconds, log); ok {
		c.Resolver.TimeoutSeconds = v
	}
	if dir := os.Getenv(constants.EnvCacheDir); dir != "" {
		c.Resolver.CacheDir = dir
	}
}

// Validate reports every semantic problem at once.
func (c *Config) Validate() error {
	collector := NewErrorCollector(false)

	if c.MaxDepth < 1 || c.MaxDepth > constants.MaxMaxDepth {
		_ = collector.Addf("max_depth must be between 1 and %d, got %d", constants.MaxMaxDepth, c.MaxDepth)
	}
	if _, err := diagnostic.ParseSeverity(c.FailOn); err != nil {
		_ = collector.Addf("fail_on: %v", err)
	}

	ids := make([]string, 0, len(c.Rules))
	for id := range c.Rules {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if _, ok := rules.Lookup(id); !ok {
			_ = collector.Addf("rules: unknown rule %q (known rules: %s)", id, strings.Join(rules.IDs(), ", "))
			continue
		}
		if sev := c.Rules[id].Severity; sev != "" {
			if _, err := diagnostic.ParseSeverity(sev); err != nil {
				_ = collector.Addf("rules.%s.severity: %v", id, err)
			}
		}
	}

	checkGlobs(collector, "discovery.patterns", c.Discovery.Patterns)
	checkGlobs(collector, "discovery.exclude", c.Discovery.Exclude)
	checkGlobs(collector, "pinning.allowed_owners", c.Pinning.AllowedOwners)

	if !slices.Contains(modes, c.Resolver.Mode) {
		_ = collector.Addf("resolver.mode must be one of %s, got %q", strings.Join(modes, ", "), c.Resolver.Mode)
	}
	if c.Resolver.Concurrency < 1 || c.Resolver.Concurrency > constants.MaxConcurrency {
		_ = collector.Addf("resolver.concurrency must be between 1 and %d, got %d", constants.MaxConcurrency, c.Resolver.Concurrency)
	}
	if c.Resolver.TimeoutSeconds < 1 || c.Resolver.TimeoutSeconds > constants.MaxTimeoutSeconds {
		_ = collector.Addf("resolver.timeout_seconds must be between 1 and %d, got %d", constants.MaxTimeoutSeconds, c.Resolver.TimeoutSeconds)
	}
	if rps := c.Resolver.RequestsPerSecond(); rps < 0 {
		_ = collector.Addf("resolver.rate_limit must not be negative, got %g", rps)
	}

	if err := collector.FormattedError("configuration"); err != nil {
		if c.Source != "" {
			return fmt.Errorf("%s: %w", c.Source, err)
		}
		return err
	}
	return nil
}

func checkGlobs(collector *ErrorCollector, field string, patterns []string) {
	for _, p := range patterns {
		if _, err := glob.Compile(p, '/'); err != nil {
			_ = collector.Addf("%s: invalid pattern %q: %v", field, p, err)
		}
	}
}

// RuleSettings converts the rule and pinning sections for rules.NewEngine.
// Call Validate first; invalid severities are passed through for the engine
// to reject.
func (c *Config) RuleSettings() rules.Settings {
	settings := rules.Settings{
		Strict:        c.Strict,
		RequireSHA:    c.Pinning.RequireSHA,
		AllowedOwners: slices.Clone(c.Pinning.AllowedOwners),
	}
	if len(c.Rules) > 0 {
		settings.Overrides = make(map[string]rules.Override, len(c.Rules))
		for id, rc := range c.Rules {
			o := rules.Override{Enabled: rc.Enabled}
			if rc.Severity != "" {
				sev, err := diagnostic.ParseSeverity(rc.Severity)
				if err != nil {
					sev = diagnostic.Severity(rc.Severity)
				}
				o.Severity = sev
			}
			settings.Overrides[id] = o
		}
	}
	return settings
}

// FailOnSeverity returns the parsed fail_on threshold, defaulting to error.
func (c *Config) FailOnSeverity() diagnostic.Severity {
	sev, err := diagnostic.ParseSeverity(c.FailOn)
	if err != nil {
		return diagnostic.SeverityError
	}
	return sev
}

// ResolveTimeout returns the per-resolution timeout.
func (c *Config) ResolveTimeout() time.Duration {
	if c.Resolver.TimeoutSeconds <= 0 {
		return constants.DefaultResolveTimeout
	}
	return time.Duration(c.Resolver.TimeoutSeconds) * time.Second
}
