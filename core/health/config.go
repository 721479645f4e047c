package health

import (
	"fmt"
	"time"
)

// Config defines the probe loop settings.
type Config struct {
	// ProbeIntervalMS is the pause after a successful probe.
	ProbeIntervalMS int `json:"probe_interval_ms"`
	// RetryIntervalMS is the pause after a failed probe.
	RetryIntervalMS int `json:"retry_interval_ms"`
	// ProbeTimeoutMS bounds one liveness request.
	ProbeTimeoutMS int `json:"probe_timeout_ms"`
	// FailureThreshold is the number of consecutive failures that triggers
	// activation of the replica.
	FailureThreshold int `json:"failure_threshold"`
	// ActivationTimeoutMS bounds the activation exchange.
	ActivationTimeoutMS int `json:"activation_timeout_ms"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ProbeIntervalMS <= 0 {
		c.ProbeIntervalMS = 2000
	}
	if c.RetryIntervalMS <= 0 {
		c.RetryIntervalMS = 1000
	}
	if c.ProbeTimeoutMS <= 0 {
		c.ProbeTimeoutMS = 5000
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.ActivationTimeoutMS <= 0 {
		c.ActivationTimeoutMS = 5000
	}
}

// Validate checks the settings.
func (c Config) Validate() error {
	if c.FailureThreshold < 1 {
		return fmt.Errorf("failure_threshold must be positive")
	}
	return nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
