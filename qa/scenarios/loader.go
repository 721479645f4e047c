package scenarios

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/taxidispatch/core/dispatch"
	"github.com/kilianp07/taxidispatch/core/model"
)

type AgentDef struct {
	ID     int     `yaml:"id"`
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Status string  `yaml:"status,omitempty"`
}

func (a AgentDef) ToModel() model.AgentRecord {
	st := model.StatusAvailable
	if a.Status != "" {
		st = model.Status(a.Status)
	}
	return model.AgentRecord{
		ID:      a.ID,
		X:       a.X,
		Y:       a.Y,
		Address: model.Address{Host: "127.0.0.1", Port: 6000 + a.ID},
		Status:  st,
	}
}

// RequestDef is one user request. Busy and Available are status updates
// fed to the registry before the request is dispatched.
type RequestDef struct {
	User      int     `yaml:"user"`
	X         float64 `yaml:"x"`
	Y         float64 `yaml:"y"`
	Busy      []int   `yaml:"busy,omitempty"`
	Available []int   `yaml:"available,omitempty"`
	Expect    string  `yaml:"expect"`
}

func (r RequestDef) ToModel() model.ServiceRequest {
	return model.ServiceRequest{Version: model.RequestSchemaVersion, UserID: r.User, X: r.X, Y: r.Y}
}

type Expected struct {
	Granted int `yaml:"granted"`
	Denied  int `yaml:"denied"`
}

type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Agents      []AgentDef     `yaml:"agents"`
	Requests    []RequestDef   `yaml:"requests"`
	FailAgents  map[int]string `yaml:"fail_agents,omitempty"`
	Expected    Expected       `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	for id, mode := range sc.FailAgents {
		if _, err := failureFor(mode); err != nil {
			return nil, fmt.Errorf("fail_agents[%d]: %w", id, err)
		}
	}
	return &sc, nil
}

func failureFor(mode string) (error, error) {
	switch mode {
	case "timeout":
		return dispatch.ErrAssignTimeout, nil
	case "connection":
		return dispatch.ErrAssignConnection, nil
	default:
		return nil, fmt.Errorf("unknown failure mode %q", mode)
	}
}
