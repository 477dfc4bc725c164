// internal/pool/agent.go
package pool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partyhost/internal/models"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoAgentAvailable means every registered agent is faulted.
	ErrNoAgentAvailable = errors.New("no healthy agent available")
	ErrUnknownAgent     = errors.New("unknown agent")
)

// AgentInfo is the static registration of a machine agent that runs server containers.
type AgentInfo struct {
	ID         string `json:"id"`
	BaseURL    string `json:"baseUrl"`
	SecretHash string `json:"secretHash"`
}

// AgentStatus is the admin view of an agent.
type AgentStatus struct {
	ID          string    `json:"id"`
	BaseURL     string    `json:"baseUrl"`
	Faulted     bool      `json:"faulted"`
	FaultReason string    `json:"faultReason,omitempty"`
	Containers  int       `json:"containers"`
	LastSeen    time.Time `json:"lastSeen,omitempty"`
}

type agentEntry struct {
	info   AgentInfo
	status AgentStatus
}

// AgentDirectory tracks agent health and load.
type AgentDirectory struct {
	mu     sync.RWMutex
	agents map[string]*agentEntry
}

func NewAgentDirectory(agents []AgentInfo) *AgentDirectory {
	d := &AgentDirectory{agents: make(map[string]*agentEntry, len(agents))}
	for _, a := range agents {
		d.agents[a.ID] = &agentEntry{
			info:   a,
			status: AgentStatus{ID: a.ID, BaseURL: a.BaseURL},
		}
	}
	return d
}

// Agents lists every agent sorted by id.
func (d *AgentDirectory) Agents() []AgentStatus {
	d.mu.RLock()
	out := make([]AgentStatus, 0, len(d.agents))
	for _, e := range d.agents {
		out = append(out, e.status)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get retrieves an agent's static registration.
func (d *AgentDirectory) Get(id string) (AgentInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.agents[id]
	if !ok {
		return AgentInfo{}, fmt.Errorf("%w: %q", ErrUnknownAgent, id)
	}
	return e.info, nil
}

// Seen records a successful callback and clears any fault.
func (d *AgentDirectory) Seen(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.agents[id]; ok {
		e.status.LastSeen = time.Now()
		e.status.Faulted = false
		e.status.FaultReason = ""
	}
}

// MarkFaulted takes an agent out of placement until it calls back again.
func (d *AgentDirectory) MarkFaulted(id string, reason error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.agents[id]; ok {
		e.status.Faulted = true
		e.status.FaultReason = reason.Error()
	}
}

// acquire reserves a container slot on the least-loaded healthy agent.
func (d *AgentDirectory) acquire() (AgentInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var best *agentEntry
	for _, e := range d.agents {
		if e.status.Faulted {
			continue
		}
		if best == nil || e.status.Containers < best.status.Containers ||
			(e.status.Containers == best.status.Containers && e.info.ID < best.info.ID) {
			best = e
		}
	}
	if best == nil {
		return AgentInfo{}, ErrNoAgentAvailable
	}
	best.status.Containers++
	return best.info, nil
}

func (d *AgentDirectory) release(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.agents[id]; ok && e.status.Containers > 0 {
		e.status.Containers--
	}
}

// Container is one server container as reported by an agent.
type Container struct {
	ID       string `json:"id"`
	ServerID string `json:"serverId"`
	Image    string `json:"image"`
	State    string `json:"state"`
}

// StartContainerRequest asks an agent to launch a server container.
type StartContainerRequest struct {
	ServerID    uuid.UUID `json:"serverId"`
	PoolID      string    `json:"poolId"`
	Image       string    `json:"image"`
	ServerToken string    `json:"serverToken"`
	CallbackURL string    `json:"callbackUrl"`
}

type startContainerResponse struct {
	ContainerID string `json:"containerId"`
}

// AgentClient talks to the agents' HTTP API.
type AgentClient struct {
	HTTP *http.Client
}

func NewAgentClient(timeout time.Duration) *AgentClient {
	return &AgentClient{HTTP: &http.Client{Timeout: timeout}}
}

func (c *AgentClient) do(ctx context.Context, method, url string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if s, ok := out.(*string); ok {
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		*s = string(b)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func agentURL(agent AgentInfo, path string) string {
	return strings.TrimRight(agent.BaseURL, "/") + path
}

// StartContainer launches a container and returns its id.
func (c *AgentClient) StartContainer(ctx context.Context, agent AgentInfo, req StartContainerRequest) (string, error) {
	var resp startContainerResponse
	if err := c.do(ctx, http.MethodPost, agentURL(agent, "/containers"), req, &resp); err != nil {
		return "", err
	}
	return resp.ContainerID, nil
}

func (c *AgentClient) StopContainer(ctx context.Context, agent AgentInfo, containerID string) error {
	return c.do(ctx, http.MethodDelete, agentURL(agent, "/containers/"+containerID), nil, nil)
}

func (c *AgentClient) ListContainers(ctx context.Context, agent AgentInfo) ([]Container, error) {
	var out []Container
	if err := c.do(ctx, http.MethodGet, agentURL(agent, "/containers"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Logs fetches a container's log output as plain text.
func (c *AgentClient) Logs(ctx context.Context, agent AgentInfo, containerID string) (string, error) {
	var out string
	if err := c.do(ctx, http.MethodGet, agentURL(agent, "/containers/"+containerID+"/logs"), nil, &out); err != nil {
		return "", err
	}
	return out, nil
}

// TokenIssuer signs the credential a dedicated server presents when it connects back.
type TokenIssuer interface {
	IssueServerToken(serverID uuid.UUID, poolID string) (string, error)
}

type placement struct {
	agentID     string
	containerID string
}

// AgentProvisioner starts server containers on registered agents. The agents report
// readiness and shutdown through the agent callback endpoints.
type AgentProvisioner struct {
	Image       string
	CallbackURL string

	directory *AgentDirectory
	client    *AgentClient
	tokens    TokenIssuer
	logger    *logrus.Entry

	mu         sync.Mutex
	placements map[uuid.UUID]placement
}

func NewAgentProvisioner(image, callbackURL string, directory *AgentDirectory, client *AgentClient, tokens TokenIssuer, logger *logrus.Entry) *AgentProvisioner {
	return &AgentProvisioner{
		Image:       image,
		CallbackURL: callbackURL,
		directory:   directory,
		client:      client,
		tokens:      tokens,
		logger:      logger,
		placements:  make(map[uuid.UUID]placement),
	}
}

func (a *AgentProvisioner) Start(ctx context.Context, server *models.Server, report Reporter) error {
	token, err := a.tokens.IssueServerToken(server.ID, server.PoolID)
	if err != nil {
		return fmt.Errorf("issue server token: %w", err)
	}
	agent, err := a.directory.acquire()
	if err != nil {
		return err
	}
	placer, _ := report.(Placer)
	// the agent may call back before StartContainer returns
	if placer != nil {
		if err := placer.SetPlacement(server.ID, agent.ID, ""); err != nil {
			a.directory.release(agent.ID)
			return fmt.Errorf("record placement: %w", err)
		}
	}
	containerID, err := a.client.StartContainer(ctx, agent, StartContainerRequest{
		ServerID:    server.ID,
		PoolID:      server.PoolID,
		Image:       a.Image,
		ServerToken: token,
		CallbackURL: a.CallbackURL,
	})
	if err != nil {
		a.directory.release(agent.ID)
		a.directory.MarkFaulted(agent.ID, err)
		return fmt.Errorf("agent %s: start container: %w", agent.ID, err)
	}

	a.mu.Lock()
	a.placements[server.ID] = placement{agentID: agent.ID, containerID: containerID}
	a.mu.Unlock()

	if placer != nil {
		if err := placer.SetPlacement(server.ID, agent.ID, containerID); err != nil {
			a.logger.WithError(err).WithField("server_id", server.ID).Warn("failed to record placement")
		}
	}
	a.logger.WithFields(logrus.Fields{
		"server_id":    server.ID,
		"agent_id":     agent.ID,
		"container_id": containerID,
	}).Info("container started")
	return nil
}

// Stop asks the agent to stop the container. A server with no known placement is reported shut down directly.
func (a *AgentProvisioner) Stop(ctx context.Context, server *models.Server, report Reporter) error {
	a.mu.Lock()
	pl, ok := a.placements[server.ID]
	delete(a.placements, server.ID)
	a.mu.Unlock()
	if !ok {
		return report.SetShutdown(server.ID)
	}
	defer a.directory.release(pl.agentID)

	agent, err := a.directory.Get(pl.agentID)
	if err != nil {
		return err
	}
	if err := a.client.StopContainer(ctx, agent, pl.containerID); err != nil {
		a.directory.MarkFaulted(agent.ID, err)
		return fmt.Errorf("agent %s: stop container %s: %w", agent.ID, pl.containerID, err)
	}
	return nil
}
