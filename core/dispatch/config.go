package dispatch

import (
	"fmt"
	"time"
)

// Config defines dispatch-related settings.
type Config struct {
	// AssignTimeoutSeconds bounds one assignment exchange with an agent.
	AssignTimeoutSeconds int `json:"assign_timeout_seconds"`
	// SnapshotPath is the durable state file.
	SnapshotPath string `json:"snapshot_path"`
	// MemoryOnly keeps state in memory and ignores SnapshotPath.
	MemoryOnly bool `json:"memory_only"`
	// StateSyncSeconds is the interval at which a primary broadcasts its
	// state to the standby. Zero disables the broadcast.
	StateSyncSeconds int `json:"state_sync_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.AssignTimeoutSeconds <= 0 {
		c.AssignTimeoutSeconds = 5
	}
	if c.SnapshotPath == "" && !c.MemoryOnly {
		c.SnapshotPath = DefaultSnapshotPath
	}
}

// DefaultSnapshotPath is used when no snapshot path is configured.
const DefaultSnapshotPath = "data/state.json"

// StorePath returns the snapshot file to persist to, empty when state is
// kept in memory.
func (c Config) StorePath() string {
	if c.MemoryOnly {
		return ""
	}
	return c.SnapshotPath
}

// Validate checks the settings.
func (c Config) Validate() error {
	if c.AssignTimeoutSeconds > 30 {
		return fmt.Errorf("assign_timeout_seconds must be at most 30, got %d", c.AssignTimeoutSeconds)
	}
	if c.StateSyncSeconds < 0 {
		return fmt.Errorf("state_sync_seconds must not be negative")
	}
	return nil
}

// AssignTimeout returns the assignment timeout as a duration.
func (c Config) AssignTimeout() time.Duration {
	if c.AssignTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.AssignTimeoutSeconds) * time.Second
}

// StateSyncInterval returns the broadcast interval, zero when disabled.
func (c Config) StateSyncInterval() time.Duration {
	return time.Duration(c.StateSyncSeconds) * time.Second
}
