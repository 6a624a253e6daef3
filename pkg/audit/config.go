package audit

// Config controls audit behavior.
type Config struct {
	RetentionDays int  // Default 365
	LogDenied     bool // Whether to record operations refused by the role gate
	Enabled       bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 365,
		LogDenied:     true,
		Enabled:       true,
	}
}
