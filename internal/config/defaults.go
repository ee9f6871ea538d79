package config

// SystemDefaults returns the built-in configuration every tier merges over.
func SystemDefaults() *Config {
	cacheOn := true
	historyOff := false
	return &Config{
		Template: "c_traps",
		Encoding: "auto",
		Exclude:  []string{"build/**", "third_party/**"},
		Output: OutputConfig{
			Dir: ".ctrap/results",
		},
		Gate: GateConfig{},
		Cache: CacheConfig{
			Enabled: &cacheOn,
			Dir:     ".ctrap/cache",
			TTL:     "168h",
		},
		History: HistoryConfig{
			Enabled: &historyOff,
			Path:    ".ctrap/history.db",
		},
		Telemetry: TelemetryConfig{
			Endpoint:       "localhost:4317",
			Protocol:       "grpc",
			Insecure:       true,
			SampleRate:     1.0,
			ServiceName:    "ctrap",
			ServiceVersion: "dev",
		},
		LSP: LSPConfig{
			Watcher: WatcherConfig{
				DebounceDuration: "300ms",
				WatchPatterns:    []string{"**/*.c", "**/*.h", "**/*.cpp", "**/*.hpp", "**/*.cc", "**/*.cxx"},
				IgnorePatterns:   []string{"**/.git/**", "**/build/**", "**/.ctrap/**"},
			},
		},
	}
}
