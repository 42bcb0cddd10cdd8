package jskernel

import "fmt"

// SecurityLevel defines the restriction profile applied to each session VM
const (
	SecurityLevelStrict   = "strict"
	SecurityLevelStandard = "standard"
)

// Config represents the configuration for the JavaScript kernel provider
type Config struct {
	// SecurityLevel selects the sandbox profile (strict, standard)
	SecurityLevel string `json:"security_level,omitempty"`

	// MaxStackDepth is the maximum call stack depth
	MaxStackDepth int `json:"max_stack_depth,omitempty"`

	// MaxStreamRecords caps the number of captured stream records per
	// fragment; further writes are dropped
	MaxStreamRecords int `json:"max_stream_records,omitempty"`
}

// ApplyDefaults sets default values for configuration fields
func (c *Config) ApplyDefaults() {
	if c.SecurityLevel == "" {
		c.SecurityLevel = SecurityLevelStandard
	}
	if c.MaxStackDepth == 0 {
		c.MaxStackDepth = 100
	}
	if c.MaxStreamRecords == 0 {
		c.MaxStreamRecords = 1000
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.SecurityLevel != SecurityLevelStrict && c.SecurityLevel != SecurityLevelStandard {
		return fmt.Errorf("invalid security level: %s", c.SecurityLevel)
	}
	if c.MaxStackDepth <= 0 {
		return fmt.Errorf("max_stack_depth must be positive")
	}
	if c.MaxStreamRecords <= 0 {
		return fmt.Errorf("max_stream_records must be positive")
	}
	return nil
}
