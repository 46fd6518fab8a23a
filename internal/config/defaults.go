package config

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Import: ImportConfig{
			BatchSize:     1000,
			Mode:          "buffered",
			VisitIdentity: "timestamp",
			Schema:        "auto",
			DryRun:        false,
		},
		Filter: FilterConfig{
			ExcludeDomains:    []string{},
			ExcludeRegex:      []string{},
			SensitiveDefaults: false,
		},
		Destination: DestinationConfig{
			JournalMode:   "wal",
			Synchronous:   "normal",
			BusyTimeoutMS: 5000,
		},
		Progress: ProgressConfig{
			Dir:    "",
			Resume: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: false,
		},
		Metrics: MetricsConfig{
			Textfile: "",
		},
	}
}
