// internal/config/pools.go
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

const (
	ProvisionerDev   = "dev"
	ProvisionerAgent = "agent"
)

// PoolsFile is the server pool topology.
type PoolsFile struct {
	// Root is the pool game sessions allocate from.
	Root       string           `json:"root"`
	Agents     []AgentEntry     `json:"agents"`
	Leaves     []LeafPoolEntry  `json:"leaves"`
	Composites []CompositeEntry `json:"composites"`
}

type AgentEntry struct {
	ID         string `json:"id"`
	BaseURL    string `json:"baseUrl"`
	SecretHash string `json:"secretHash"`
}

type LeafPoolEntry struct {
	ID             string   `json:"id"`
	MaxServers     int      `json:"maxServers"`
	ReadyThreshold int      `json:"readyThreshold"`
	Provisioner    string   `json:"provisioner"`
	Endpoints      []string `json:"endpoints,omitempty"`
	Image          string   `json:"image,omitempty"`
}

type CompositeEntry struct {
	ID             string   `json:"id"`
	ReadyThreshold int      `json:"readyThreshold"`
	Children       []string `json:"children"`
}

// LoadPools reads and validates a pool topology file. Unknown fields are rejected.
func LoadPools(path string) (*PoolsFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pools file: %w", err)
	}
	return ParsePools(b)
}

func ParsePools(data []byte) (*PoolsFile, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var f PoolsFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode pools file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the topology is buildable: unique ids, sane limits, known provisioners,
// and that every referenced pool exists.
func (f *PoolsFile) Validate() error {
	var errs []error
	ids := make(map[string]bool)
	claim := func(id string) {
		if id == "" {
			errs = append(errs, errors.New("pool id must not be empty"))
			return
		}
		if ids[id] {
			errs = append(errs, fmt.Errorf("duplicate pool id %q", id))
		}
		ids[id] = true
	}

	agents := make(map[string]bool)
	for _, a := range f.Agents {
		if a.ID == "" || a.BaseURL == "" {
			errs = append(errs, errors.New("agents need an id and a baseUrl"))
			continue
		}
		agents[a.ID] = true
	}

	for _, l := range f.Leaves {
		claim(l.ID)
		if l.MaxServers <= 0 {
			errs = append(errs, fmt.Errorf("leaf %q: maxServers must be positive", l.ID))
		}
		if l.ReadyThreshold < 0 || l.ReadyThreshold > l.MaxServers {
			errs = append(errs, fmt.Errorf("leaf %q: readyThreshold must be within [0, maxServers]", l.ID))
		}
		switch l.Provisioner {
		case ProvisionerDev:
			if len(l.Endpoints) == 0 {
				errs = append(errs, fmt.Errorf("leaf %q: dev provisioner needs endpoints", l.ID))
			}
		case ProvisionerAgent:
			if l.Image == "" {
				errs = append(errs, fmt.Errorf("leaf %q: agent provisioner needs an image", l.ID))
			}
			if len(agents) == 0 {
				errs = append(errs, fmt.Errorf("leaf %q: agent provisioner needs at least one agent", l.ID))
			}
		default:
			errs = append(errs, fmt.Errorf("leaf %q: unknown provisioner %q", l.ID, l.Provisioner))
		}
	}
	for _, c := range f.Composites {
		claim(c.ID)
		if c.ReadyThreshold < 0 {
			errs = append(errs, fmt.Errorf("composite %q: readyThreshold must not be negative", c.ID))
		}
	}
	for _, c := range f.Composites {
		for _, child := range c.Children {
			if !ids[child] {
				errs = append(errs, fmt.Errorf("composite %q: unknown child %q", c.ID, child))
			}
		}
	}
	if f.Root == "" || !ids[f.Root] {
		errs = append(errs, fmt.Errorf("root pool %q is not defined", f.Root))
	}
	return errors.Join(errs...)
}
