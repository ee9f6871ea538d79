package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/chris-regnier/ctrap/internal/checks"
	"github.com/chris-regnier/ctrap/internal/issue"
	"github.com/chris-regnier/ctrap/internal/rules"
)

func boolPtr(b bool) *bool { return &b }

func TestMergeRules_HigherTierOverrides(t *testing.T) {
	system := &Config{
		Rules: map[string]rules.RuleSetting{
			"S002": {Severity: "suggestion", Config: map[string]any{"max_lines": 50, "warning_lines": 30}},
		},
	}
	project := &Config{
		Rules: map[string]rules.RuleSetting{
			"S002": {Severity: "warning", Config: map[string]any{"max_lines": 80}},
		},
	}
	merged := MergeConfigs(system, project)
	rs := merged.Rules["S002"]
	if rs.Severity != "warning" {
		t.Errorf("expected severity 'warning', got %q", rs.Severity)
	}
	if rs.Config["max_lines"] != 80 {
		t.Errorf("expected max_lines 80, got %v", rs.Config["max_lines"])
	}
	if rs.Config["warning_lines"] != 30 {
		t.Errorf("expected warning_lines preserved, got %v", rs.Config["warning_lines"])
	}
	if system.Rules["S002"].Config["max_lines"] != 50 {
		t.Error("merging must not modify the lower tier")
	}
}

func TestMergeRules_DisableRule(t *testing.T) {
	system := &Config{Rules: map[string]rules.RuleSetting{"L004": {Enabled: boolPtr(true)}}}
	project := &Config{Rules: map[string]rules.RuleSetting{"L004": {Enabled: boolPtr(false)}}}
	merged := MergeConfigs(system, project)
	if e := merged.Rules["L004"].Enabled; e == nil || *e {
		t.Error("expected rule to be disabled")
	}

	// A tier that only changes the severity leaves enablement alone.
	again := MergeConfigs(merged, &Config{Rules: map[string]rules.RuleSetting{"L004": {Severity: "warning"}}})
	if e := again.Rules["L004"].Enabled; e == nil || *e {
		t.Error("expected rule to stay disabled")
	}
}

func TestMergeConfigs_Scalars(t *testing.T) {
	merged := MergeConfigs(SystemDefaults(), &Config{
		Template: "embedded",
		Workers:  4,
		Exclude:  []string{"vendor/**"},
		Cache:    CacheConfig{Enabled: boolPtr(false)},
		Output:   OutputConfig{Format: "sarif"},
	}, nil)

	if merged.Template != "embedded" {
		t.Errorf("expected template 'embedded', got %q", merged.Template)
	}
	if merged.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", merged.Workers)
	}
	if len(merged.Exclude) != 1 || merged.Exclude[0] != "vendor/**" {
		t.Errorf("expected exclude list to be replaced, got %v", merged.Exclude)
	}
	if merged.Cache.On() {
		t.Error("expected cache to be disabled")
	}
	if merged.Cache.Dir != ".ctrap/cache" {
		t.Errorf("expected default cache dir preserved, got %q", merged.Cache.Dir)
	}
	if merged.Output.Dir != ".ctrap/results" {
		t.Errorf("expected default output dir preserved, got %q", merged.Output.Dir)
	}
	if merged.Output.Format != "sarif" {
		t.Errorf("expected format 'sarif', got %q", merged.Output.Format)
	}
}

func TestValidate(t *testing.T) {
	if err := SystemDefaults().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	bad := SystemDefaults()
	bad.Output.Format = "html"
	bad.Rules = map[string]rules.RuleSetting{"C001": {Severity: "fatal"}}
	bad.Exclude = []string{"[oops"}
	bad.Cache.TTL = "a week"
	bad.Telemetry.Protocol = "udp"
	err := bad.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	if !errors.Is(err, issue.ErrInvalidSeverity) {
		t.Errorf("expected the severity error to be wrapped, got %v", err)
	}
}

func TestApply(t *testing.T) {
	reg := checks.NewRegistry()
	cfg := &Config{
		Template: "beginner",
		Rules: map[string]rules.RuleSetting{
			"S002": {Enabled: boolPtr(true), Config: map[string]any{"max_lines": 80}},
			"C001": {Severity: "warning"},
		},
	}
	if err := cfg.Apply(reg); err != nil {
		t.Fatal(err)
	}
	if n := len(reg.Enabled()); n != 6 {
		t.Errorf("expected 5 template rules plus S002, got %d", n)
	}
	s, _ := reg.Settings("C001")
	if s.Severity != issue.Warning {
		t.Errorf("expected C001 severity warning, got %v", s.Severity)
	}
	s, _ = reg.Settings("S002")
	if s.Config["max_lines"] != 80 {
		t.Errorf("expected S002 max_lines 80, got %v", s.Config["max_lines"])
	}
}

func TestApply_UnknownTemplate(t *testing.T) {
	err := (&Config{Template: "nope"}).Apply(checks.NewRegistry())
	if !errors.Is(err, rules.ErrUnknownTemplate) {
		t.Errorf("expected ErrUnknownTemplate, got %v", err)
	}
}

func TestApply_UnknownRule(t *testing.T) {
	reg := checks.NewRegistry()
	cfg := &Config{Rules: map[string]rules.RuleSetting{"X999": {Severity: "warning"}}}
	if err := cfg.Apply(reg); !errors.Is(err, rules.ErrUnknownRule) {
		t.Errorf("expected ErrUnknownRule, got %v", err)
	}
	if len(reg.Enabled()) != 20 {
		t.Error("an unknown rule must not change the other rules")
	}
}

func TestLoadFromFile_Valid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("template: embedded\nrules:\n  E002:\n    config:\n      max_isr_lines: 10\n"), 0644)
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if cfg.Template != "embedded" {
		t.Errorf("expected template 'embedded', got %q", cfg.Template)
	}
	if cfg.Rules["E002"].Config["max_isr_lines"] != 10 {
		t.Errorf("expected max_isr_lines 10, got %v", cfg.Rules["E002"].Config["max_isr_lines"])
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	cfg, err := LoadFromFile("/nonexistent/path.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg != nil {
		t.Error("expected nil config for missing file")
	}
}

func TestLoadFromFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("template: [unterminated\n"), 0644)
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected a parse error")
	}
}

func TestWriteFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".ctrap", "config.yaml")
	want := &Config{Template: "misra_c", Workers: 2}
	if err := WriteFile(path, want); err != nil {
		t.Fatal(err)
	}
	got, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Template != "misra_c" || got.Workers != 2 {
		t.Errorf("round trip lost fields: %+v", got)
	}
}

func TestLoadTiered(t *testing.T) {
	dir := t.TempDir()
	machineConf := filepath.Join(dir, "machine.yaml")
	os.WriteFile(machineConf, []byte("template: embedded\nrules:\n  S001:\n    severity: warning\n"), 0644)
	projectConf := filepath.Join(dir, "project.yaml")
	os.WriteFile(projectConf, []byte("rules:\n  S001:\n    enabled: false\n"), 0644)

	cfg, err := LoadTiered(machineConf, projectConf)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Template != "embedded" {
		t.Errorf("expected machine template 'embedded', got %q", cfg.Template)
	}
	rs := cfg.Rules["S001"]
	if rs.Severity != "warning" {
		t.Errorf("expected machine severity 'warning', got %q", rs.Severity)
	}
	if rs.Enabled == nil || *rs.Enabled {
		t.Error("expected project tier to disable S001")
	}
	if cfg.Encoding != "auto" {
		t.Errorf("expected system default encoding 'auto', got %q", cfg.Encoding)
	}
}

func TestLoadTiered_TelemetryEnv(t *testing.T) {
	t.Setenv(TelemetryEnv, "true")
	cfg, err := LoadTiered("", "")
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Telemetry.Enabled {
		t.Error("expected the environment to enable telemetry")
	}

	t.Setenv(TelemetryEnv, "0")
	cfg, _ = LoadTiered("", "")
	if cfg.Telemetry.Enabled {
		t.Error("expected the environment to disable telemetry")
	}
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/dev")
	if got := ExpandHome("~/rules"); got != filepath.Join("/home/dev", "rules") {
		t.Errorf("unexpected expansion %q", got)
	}
	if got := ExpandHome("/abs/rules"); got != "/abs/rules" {
		t.Errorf("absolute path changed: %q", got)
	}
}
