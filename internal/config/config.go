package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/chris-regnier/ctrap/internal/issue"
	"github.com/chris-regnier/ctrap/internal/rules"
)

// Config holds the full ctrap configuration.
type Config struct {
	// Template names the rule template applied before per-rule overrides.
	Template     string `yaml:"template,omitempty"`
	TemplatesDir string `yaml:"templates_dir,omitempty"`
	RulesDir     string `yaml:"rules_dir,omitempty"`

	// Rules overrides individual rules after the template is applied.
	Rules map[string]rules.RuleSetting `yaml:"rules,omitempty"`

	Workers  int      `yaml:"workers,omitempty"`
	Encoding string   `yaml:"encoding,omitempty"`
	Exclude  []string `yaml:"exclude,omitempty"`

	Output    OutputConfig    `yaml:"output,omitempty"`
	Gate      GateConfig      `yaml:"gate,omitempty"`
	Cache     CacheConfig     `yaml:"cache,omitempty"`
	History   HistoryConfig   `yaml:"history,omitempty"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
	LSP       LSPConfig       `yaml:"lsp,omitempty"`
}

type OutputConfig struct {
	Format string `yaml:"format,omitempty"`
	// Dir is where analysis runs are stored.
	Dir string `yaml:"dir,omitempty"`
}

type GateConfig struct {
	// PolicyDir holds .rego files that replace the default gate policy.
	PolicyDir string `yaml:"policy_dir,omitempty"`
}

type CacheConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Dir     string `yaml:"dir,omitempty"`
	TTL     string `yaml:"ttl,omitempty"`
}

// On reports whether the result cache is enabled.
func (c CacheConfig) On() bool { return c.Enabled == nil || *c.Enabled }

// TTLDuration parses TTL, returning 0 (no expiry) when unset.
func (c CacheConfig) TTLDuration() (time.Duration, error) {
	if c.TTL == "" {
		return 0, nil
	}
	return time.ParseDuration(c.TTL)
}

type HistoryConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// On reports whether runs are recorded in the history database.
func (h HistoryConfig) On() bool { return h.Enabled != nil && *h.Enabled }

// TelemetryConfig configures OTLP export of traces and metrics.
type TelemetryConfig struct {
	Enabled        bool              `yaml:"enabled,omitempty"`
	Endpoint       string            `yaml:"endpoint,omitempty"`
	Protocol       string            `yaml:"protocol,omitempty"`
	Insecure       bool              `yaml:"insecure,omitempty"`
	SampleRate     float64           `yaml:"sample_rate,omitempty"`
	Headers        map[string]string `yaml:"headers,omitempty"`
	ServiceName    string            `yaml:"service_name,omitempty"`
	ServiceVersion string            `yaml:"service_version,omitempty"`
}

// TelemetryEnv overrides TelemetryConfig.Enabled when set.
const TelemetryEnv = "CTRAP_TELEMETRY_ENABLED"

// ApplyEnv applies environment overrides in place.
func (t *TelemetryConfig) ApplyEnv() {
	if v := os.Getenv(TelemetryEnv); v != "" {
		on, err := strconv.ParseBool(v)
		t.Enabled = err == nil && on
	}
}

type LSPConfig struct {
	Watcher WatcherConfig `yaml:"watcher,omitempty"`
}

type WatcherConfig struct {
	DebounceDuration string   `yaml:"debounce_duration,omitempty"`
	WatchPatterns    []string `yaml:"watch_patterns,omitempty"`
	IgnorePatterns   []string `yaml:"ignore_patterns,omitempty"`
}

var outputFormats = map[string]bool{
	"": true, "json": true, "sarif": true, "markdown": true, "text": true, "pretty": true,
}

// Validate checks that the configuration is valid and ready to use.
func (c *Config) Validate() error {
	var errs []error
	if !outputFormats[c.Output.Format] {
		errs = append(errs, fmt.Errorf("output.format must be one of json, sarif, markdown, text or pretty, got: %s", c.Output.Format))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got: %d", c.Workers))
	}
	for id, rs := range c.Rules {
		if rs.Severity == "" {
			continue
		}
		if _, err := issue.ParseSeverity(rs.Severity); err != nil {
			errs = append(errs, fmt.Errorf("rules.%s.severity: %w", id, err))
		}
	}
	for _, p := range append(append([]string{}, c.Exclude...), c.LSP.Watcher.WatchPatterns...) {
		if _, err := glob.Compile(p, '/'); err != nil {
			errs = append(errs, fmt.Errorf("invalid glob %q: %w", p, err))
		}
	}
	if _, err := c.Cache.TTLDuration(); err != nil {
		errs = append(errs, fmt.Errorf("cache.ttl: %w", err))
	}
	if d := c.LSP.Watcher.DebounceDuration; d != "" {
		if _, err := time.ParseDuration(d); err != nil {
			errs = append(errs, fmt.Errorf("lsp.watcher.debounce_duration: %w", err))
		}
	}
	switch c.Telemetry.Protocol {
	case "", "grpc", "http":
	default:
		errs = append(errs, fmt.Errorf("telemetry.protocol must be 'grpc' or 'http', got: %s", c.Telemetry.Protocol))
	}
	if r := c.Telemetry.SampleRate; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got: %v", r))
	}
	return errors.Join(errs...)
}

// Apply loads custom templates, applies the configured template and then
// the per-rule overrides. Override problems (unknown rules, bad
// severities) are joined into the returned error after everything valid
// has been applied.
func (c *Config) Apply(reg *rules.Registry) error {
	if _, err := reg.LoadTemplates(c.TemplatesDir); err != nil {
		return err
	}
	if c.Template != "" {
		if err := reg.ApplyTemplate(c.Template); err != nil {
			return err
		}
	}
	if len(c.Rules) == 0 {
		return nil
	}
	return errors.Join(reg.ApplyDocument(&rules.ConfigDocument{RuleSettings: c.Rules})...)
}

// MergeConfigs merges configs in order of increasing precedence.
// Later configs override earlier ones. Non-zero scalar fields override,
// lists replace, and rule overrides merge field by field.
func MergeConfigs(configs ...*Config) *Config {
	result := &Config{Rules: make(map[string]rules.RuleSetting)}

	for _, cfg := range configs {
		if cfg == nil {
			continue
		}
		setString(&result.Template, cfg.Template)
		setString(&result.TemplatesDir, cfg.TemplatesDir)
		setString(&result.RulesDir, cfg.RulesDir)
		setString(&result.Encoding, cfg.Encoding)
		if cfg.Workers != 0 {
			result.Workers = cfg.Workers
		}
		if len(cfg.Exclude) > 0 {
			result.Exclude = cfg.Exclude
		}

		setString(&result.Output.Format, cfg.Output.Format)
		setString(&result.Output.Dir, cfg.Output.Dir)
		setString(&result.Gate.PolicyDir, cfg.Gate.PolicyDir)

		if cfg.Cache.Enabled != nil {
			result.Cache.Enabled = cfg.Cache.Enabled
		}
		setString(&result.Cache.Dir, cfg.Cache.Dir)
		setString(&result.Cache.TTL, cfg.Cache.TTL)

		if cfg.History.Enabled != nil {
			result.History.Enabled = cfg.History.Enabled
		}
		setString(&result.History.Path, cfg.History.Path)

		mergeTelemetry(&result.Telemetry, cfg.Telemetry)

		w := cfg.LSP.Watcher
		setString(&result.LSP.Watcher.DebounceDuration, w.DebounceDuration)
		if len(w.WatchPatterns) > 0 {
			result.LSP.Watcher.WatchPatterns = w.WatchPatterns
		}
		if len(w.IgnorePatterns) > 0 {
			result.LSP.Watcher.IgnorePatterns = w.IgnorePatterns
		}

		for id, rs := range cfg.Rules {
			existing, ok := result.Rules[id]
			if !ok {
				result.Rules[id] = rs
				continue
			}
			if rs.Enabled != nil {
				existing.Enabled = rs.Enabled
			}
			if rs.Severity != "" {
				existing.Severity = rs.Severity
			}
			// Config keys merge so a project can tune one key of a rule
			// the machine tier already configured.
			if rs.Config != nil {
				merged := maps.Clone(existing.Config)
				if merged == nil {
					merged = map[string]any{}
				}
				maps.Copy(merged, rs.Config)
				existing.Config = merged
			}
			result.Rules[id] = existing
		}
	}

	return result
}

func mergeTelemetry(dst *TelemetryConfig, src TelemetryConfig) {
	if src.Enabled {
		dst.Enabled = true
	}
	if src.Insecure {
		dst.Insecure = true
	}
	setString(&dst.Endpoint, src.Endpoint)
	setString(&dst.Protocol, src.Protocol)
	setString(&dst.ServiceName, src.ServiceName)
	setString(&dst.ServiceVersion, src.ServiceVersion)
	if src.SampleRate != 0 {
		dst.SampleRate = src.SampleRate
	}
	if len(src.Headers) > 0 {
		dst.Headers = src.Headers
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// LoadFromFile reads a YAML config file. Returns nil, nil if the file doesn't exist.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return &cfg, nil
}

// WriteFile writes cfg as YAML, creating the parent directory.
func WriteFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// LoadTiered loads system defaults, then machine config, then project config,
// and merges them in order of increasing precedence. Environment overrides
// are applied last.
func LoadTiered(machinePath, projectPath string) (*Config, error) {
	system := SystemDefaults()

	machine, err := LoadFromFile(machinePath)
	if err != nil {
		return nil, fmt.Errorf("loading machine config: %w", err)
	}

	project, err := LoadFromFile(projectPath)
	if err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	cfg := MergeConfigs(system, machine, project)
	cfg.Telemetry.ApplyEnv()
	return cfg, nil
}

// MachinePath is ~/.config/ctrap/config.yaml, or "" when the home
// directory is unknown.
func MachinePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "ctrap", "config.yaml")
}

// ProjectPath is .ctrap/config.yaml under root.
func ProjectPath(root string) string {
	return filepath.Join(root, ".ctrap", "config.yaml")
}

// UserRulesDir is the machine-wide pattern rule directory.
func UserRulesDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "ctrap", "rules")
}

// ExpandHome replaces a leading "~/" with the home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
