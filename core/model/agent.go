package model

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Status is the availability of an agent as published on the feed.
type Status string

const (
	StatusAvailable Status = "available"
	StatusBusy      Status = "busy"
)

// ParseStatus accepts the feed spelling of a status, case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusAvailable:
		return StatusAvailable, nil
	case StatusBusy:
		return StatusBusy, nil
	default:
		return "", fmt.Errorf("unknown agent status %q", s)
	}
}

// Address is the host/port an agent advertises for assignment exchanges.
type Address struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Valid reports whether the address can be dialed.
func (a Address) Valid() bool {
	return a.Host != "" && a.Port > 0 && a.Port <= 65535
}

func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Position is a point on the service grid.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// AgentRecord is the registry's view of one agent. Records are only ever
// written by feed ingestion; dispatch reads them.
type AgentRecord struct {
	ID                int     `json:"id"`
	X                 float64 `json:"x"`
	Y                 float64 `json:"y"`
	Address           Address `json:"address"`
	Status            Status  `json:"status"`
	ServicesCompleted int     `json:"services_completed"`
	MaxServices       int     `json:"max_services"`
}

// Position returns the agent's last published coordinates.
func (a AgentRecord) Position() Position { return Position{X: a.X, Y: a.Y} }

// Available reports whether the agent may be offered a service.
func (a AgentRecord) Available() bool { return a.Status == StatusAvailable }
