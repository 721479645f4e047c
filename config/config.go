package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/taxidispatch/core/dispatch"
	"github.com/kilianp07/taxidispatch/core/health"
	"github.com/kilianp07/taxidispatch/core/journal"
	"github.com/kilianp07/taxidispatch/core/metrics"
	"github.com/kilianp07/taxidispatch/infra/monitoring"
	"github.com/kilianp07/taxidispatch/infra/mqtt"
	"github.com/kilianp07/taxidispatch/simulator"
)

type Config struct {
	Network  NetworkConfig           `json:"network"`
	MQTT     mqtt.Config             `json:"mqtt"`
	Dispatch dispatch.Config         `json:"dispatch"`
	Health   health.Config           `json:"health"`
	Journal  journal.Config          `json:"journal"`
	Metrics  metrics.Config          `json:"metrics"`
	Sentry   monitoring.SentryConfig `json:"sentry"`
	Agent    simulator.Config        `json:"agent"`
}

// Load reads the configuration file at path, then applies K_ environment
// overrides (K_DISPATCH__ASSIGN_TIMEOUT_SECONDS=10). A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			parser, err := parserFor(path)
			if err != nil {
				return nil, err
			}
			if err := k.Load(file.Provider(path), parser); err != nil {
				return nil, err
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Network.SetDefaults()
	c.Dispatch.SetDefaults()
	c.Health.SetDefaults()
	c.Journal.SetDefaults()
	c.Agent.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"network", c.Network.Validate},
		{"mqtt", c.validateMQTT},
		{"dispatch", c.Dispatch.Validate},
		{"health", c.Health.Validate},
		{"journal", c.Journal.Validate},
		{"agent", c.Agent.Validate},
	}
	for _, ch := range checks {
		if err := ch.fn(); err != nil {
			return fmt.Errorf("%s: %w", ch.name, err)
		}
	}
	return nil
}

func (c Config) validateMQTT() error {
	m := c.SubscriberMQTT("")
	m.SetDefaults()
	return m.Validate()
}

// SubscriberMQTT returns the bus settings for a server process. An explicit
// mqtt.broker wins over the network bus endpoints.
func (c Config) SubscriberMQTT(clientID string) mqtt.Config {
	m := c.MQTT
	if m.Broker == "" {
		m.Broker = c.Network.BusSubscribeBroker()
	}
	m.ClientID = clientID
	return m
}

// PublisherMQTT returns the bus settings for an agent process.
func (c Config) PublisherMQTT(clientID string) mqtt.Config {
	m := c.MQTT
	if m.Broker == "" {
		m.Broker = c.Network.BusPublishBroker()
	}
	m.ClientID = clientID
	return m
}
