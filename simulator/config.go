package simulator

import (
	"fmt"
	"time"
)

// Config holds parameters for simulated agents.
type Config struct {
	GridWidth         int     `json:"grid_width"`
	GridHeight        int     `json:"grid_height"`
	Speed             float64 `json:"speed"`
	PublishIntervalMS int     `json:"publish_interval_ms"`
	MaxServices       int     `json:"max_services"`
	ServiceMinMS      int     `json:"service_min_ms"`
	ServiceMaxMS      int     `json:"service_max_ms"`
}

// SetDefaults applies the defaults of a 10x10 grid with three services per agent.
func (c *Config) SetDefaults() {
	if c.GridWidth <= 0 {
		c.GridWidth = 10
	}
	if c.GridHeight <= 0 {
		c.GridHeight = 10
	}
	if c.Speed <= 0 {
		c.Speed = 2
	}
	if c.PublishIntervalMS <= 0 {
		c.PublishIntervalMS = 1000
	}
	if c.MaxServices <= 0 {
		c.MaxServices = 3
	}
	if c.ServiceMinMS <= 0 {
		c.ServiceMinMS = 1000
	}
	if c.ServiceMaxMS <= 0 {
		c.ServiceMaxMS = 3000
	}
}

// Validate checks the settings.
func (c Config) Validate() error {
	if c.ServiceMaxMS < c.ServiceMinMS {
		return fmt.Errorf("service_max_ms %d below service_min_ms %d", c.ServiceMaxMS, c.ServiceMinMS)
	}
	return nil
}

func (c Config) publishInterval() time.Duration {
	return time.Duration(c.PublishIntervalMS) * time.Millisecond
}

// moveInterval is the time between moves; faster agents move more often.
func (c Config) moveInterval() time.Duration {
	return time.Duration(30 / c.Speed * float64(time.Second))
}

// step is the distance covered by one move.
func (c Config) step() float64 { return c.Speed * 30 / 60 }
