package config

import (
	"fmt"
	"net"
	"strconv"

	"github.com/kilianp07/taxidispatch/core/model"
)

// NetworkConfig lists the hosts and ports of every channel between the
// processes. BusSubPort defaults to BusPubPort since one broker listener
// serves both sides; set it only when the broker exposes a second listener.
type NetworkConfig struct {
	BusHost           string `json:"bus_host"`
	BusPubPort        int    `json:"bus_pub_port"`
	BusSubPort        int    `json:"bus_sub_port"`
	PrimaryHost       string `json:"primary_host"`
	ReplicaHost       string `json:"replica_host"`
	BindHost          string `json:"bind_host"`
	RequestPort       int    `json:"request_port"`
	ReplicaPort       int    `json:"replica_port"`
	HealthPort        int    `json:"health_port"`
	ReplicaHealthPort int    `json:"replica_health_port"`
	ActivationPort    int    `json:"activation_port"`
	AgentHost         string `json:"agent_host"`
	AgentPortBase     int    `json:"agent_port_base"`
}

// SetDefaults applies the default deployment layout.
func (c *NetworkConfig) SetDefaults() {
	setStr := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}
	setInt := func(v *int, d int) {
		if *v == 0 {
			*v = d
		}
	}
	setStr(&c.BusHost, "localhost")
	setStr(&c.PrimaryHost, "localhost")
	setStr(&c.ReplicaHost, "localhost")
	setStr(&c.AgentHost, "localhost")
	setInt(&c.BusPubPort, 5555)
	setInt(&c.BusSubPort, c.BusPubPort)
	setInt(&c.RequestPort, 5551)
	setInt(&c.ReplicaPort, 5552)
	setInt(&c.HealthPort, 5558)
	setInt(&c.ReplicaHealthPort, 5559)
	setInt(&c.ActivationPort, 5561)
	setInt(&c.AgentPortBase, 6000)
}

// Validate checks port ranges and collisions between server endpoints.
func (c NetworkConfig) Validate() error {
	ports := map[string]int{
		"bus_pub_port":        c.BusPubPort,
		"bus_sub_port":        c.BusSubPort,
		"request_port":        c.RequestPort,
		"replica_port":        c.ReplicaPort,
		"health_port":         c.HealthPort,
		"replica_health_port": c.ReplicaHealthPort,
		"activation_port":     c.ActivationPort,
	}
	for name, p := range ports {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("network: %s %d out of range", name, p)
		}
	}
	seen := map[int]string{}
	for _, name := range []string{"request_port", "replica_port", "health_port", "replica_health_port", "activation_port"} {
		p := ports[name]
		if other, dup := seen[p]; dup {
			return fmt.Errorf("network: %s and %s share port %d", other, name, p)
		}
		seen[p] = name
	}
	if c.AgentPortBase <= 0 || c.AgentPortBase >= 65535 {
		return fmt.Errorf("network: agent_port_base %d out of range", c.AgentPortBase)
	}
	return nil
}

func join(host string, port int) string { return net.JoinHostPort(host, strconv.Itoa(port)) }

// PrimaryRequestAddr is the canonical request endpoint.
func (c NetworkConfig) PrimaryRequestAddr() string { return join(c.PrimaryHost, c.RequestPort) }

// ReplicaRequestAddr is the standby request endpoint.
func (c NetworkConfig) ReplicaRequestAddr() string { return join(c.ReplicaHost, c.ReplicaPort) }

// PrimaryHealthAddr is the canonical health endpoint.
func (c NetworkConfig) PrimaryHealthAddr() string { return join(c.PrimaryHost, c.HealthPort) }

// ActivationAddr is the replica's activation endpoint.
func (c NetworkConfig) ActivationAddr() string { return join(c.ReplicaHost, c.ActivationPort) }

// Bind returns the listen address for port on the bind host.
func (c NetworkConfig) Bind(port int) string { return join(c.BindHost, port) }

// AgentPort returns the assignment port of agent id.
func (c NetworkConfig) AgentPort(id int) int { return c.AgentPortBase + id }

// AgentAddress returns the address agent id advertises.
func (c NetworkConfig) AgentAddress(id int) model.Address {
	return model.Address{Host: c.AgentHost, Port: c.AgentPort(id)}
}

// BusPublishBroker is the broker URL agents publish to.
func (c NetworkConfig) BusPublishBroker() string {
	return "tcp://" + join(c.BusHost, c.BusPubPort)
}

// BusSubscribeBroker is the broker URL servers subscribe on.
func (c NetworkConfig) BusSubscribeBroker() string {
	return "tcp://" + join(c.BusHost, c.BusSubPort)
}
