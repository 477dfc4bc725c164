// internal/pool/build.go
package pool

import (
	"context"
	"fmt"

	"github.com/jason-s-yu/partyhost/internal/config"
	"github.com/sirupsen/logrus"
)

// Deps are the collaborators pools are built with.
type Deps struct {
	Events      EventSink
	Tokens      TokenIssuer
	AgentClient *AgentClient
	CallbackURL string
	Logger      *logrus.Entry
}

// Topology is the built pool hierarchy.
type Topology struct {
	Registry *Registry
	Root     Pool
	Agents   *AgentDirectory
}

// Build constructs leaves, then composites, from a validated pools file and warms the leaves.
func Build(ctx context.Context, file *config.PoolsFile, deps Deps) (*Topology, error) {
	agents := make([]AgentInfo, 0, len(file.Agents))
	for _, a := range file.Agents {
		agents = append(agents, AgentInfo{ID: a.ID, BaseURL: a.BaseURL, SecretHash: a.SecretHash})
	}
	topo := &Topology{
		Registry: NewRegistry(),
		Agents:   NewAgentDirectory(agents),
	}

	var leaves []*LeafPool
	for _, entry := range file.Leaves {
		var prov Provisioner
		switch entry.Provisioner {
		case config.ProvisionerDev:
			prov = NewDevProvisioner(entry.Endpoints, deps.Logger.WithField("pool", entry.ID))
		case config.ProvisionerAgent:
			prov = NewAgentProvisioner(entry.Image, deps.CallbackURL, topo.Agents, deps.AgentClient, deps.Tokens,
				deps.Logger.WithField("pool", entry.ID))
		default:
			return nil, fmt.Errorf("leaf %q: unknown provisioner %q", entry.ID, entry.Provisioner)
		}
		leaf := NewLeafPool(LeafConfig{
			ID:             entry.ID,
			MaxServers:     entry.MaxServers,
			ReadyThreshold: entry.ReadyThreshold,
		}, prov, deps.Events, deps.Logger)
		if err := topo.Registry.Register(leaf); err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf)
	}

	// register every composite first so composites may reference each other
	for _, entry := range file.Composites {
		if err := topo.Registry.Register(NewCompositePool(entry.ID, topo.Registry, deps.Logger)); err != nil {
			return nil, err
		}
	}
	for _, entry := range file.Composites {
		c, err := topo.Registry.Composite(entry.ID)
		if err != nil {
			return nil, err
		}
		if err := c.UpdateConfiguration(CompositeConfig{ReadyThreshold: entry.ReadyThreshold, Children: entry.Children}); err != nil {
			return nil, err
		}
	}

	root, err := topo.Registry.Get(file.Root)
	if err != nil {
		return nil, err
	}
	topo.Root = root

	for _, leaf := range leaves {
		leaf.Warm(ctx)
	}
	return topo, nil
}
