// internal/pool/agent_test.go
package pool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partyhost/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct{}

func (staticTokens) IssueServerToken(serverID uuid.UUID, poolID string) (string, error) {
	return "token-" + serverID.String(), nil
}

// placementReporter records placements the way a leaf pool does.
type placementReporter struct {
	mu     sync.Mutex
	agents map[uuid.UUID]string
}

func (r *placementReporter) SetReady(serverID uuid.UUID, endpoint string) error { return nil }
func (r *placementReporter) SetShutdown(serverID uuid.UUID) error               { return nil }

func (r *placementReporter) SetPlacement(serverID uuid.UUID, agentID, containerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[serverID] = agentID
	return nil
}

func (r *placementReporter) agent(serverID uuid.UUID) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.agents[serverID]
}

func TestAgentProvisionerRecordsPlacementBeforeDispatch(t *testing.T) {
	report := &placementReporter{agents: make(map[uuid.UUID]string)}
	server := &models.Server{ID: uuid.New(), PoolID: "eu"}

	duringStart := make(chan string, 1)
	agentSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req StartContainerRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		// an agent may report ready before this response is read
		duringStart <- report.agent(req.ServerID)
		_ = json.NewEncoder(w).Encode(startContainerResponse{ContainerID: "c-1"})
	}))
	defer agentSrv.Close()

	dir := NewAgentDirectory([]AgentInfo{{ID: "a1", BaseURL: agentSrv.URL}})
	prov := NewAgentProvisioner("game:latest", "http://host/agent", dir, NewAgentClient(time.Second), staticTokens{}, testLogger())

	require.NoError(t, prov.Start(context.Background(), server, report))
	assert.Equal(t, "a1", <-duringStart)
	assert.Equal(t, "a1", report.agent(server.ID))
	assert.Equal(t, 1, dir.Agents()[0].Containers)
}

func TestAgentProvisionerStartFailureFaultsAgent(t *testing.T) {
	report := &placementReporter{agents: make(map[uuid.UUID]string)}
	agentSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "disk full", http.StatusInternalServerError)
	}))
	defer agentSrv.Close()

	dir := NewAgentDirectory([]AgentInfo{{ID: "a1", BaseURL: agentSrv.URL}})
	prov := NewAgentProvisioner("game:latest", "http://host/agent", dir, NewAgentClient(time.Second), staticTokens{}, testLogger())

	err := prov.Start(context.Background(), &models.Server{ID: uuid.New(), PoolID: "eu"}, report)
	require.Error(t, err)
	status := dir.Agents()[0]
	assert.True(t, status.Faulted)
	assert.Equal(t, 0, status.Containers)

	_, err = dir.acquire()
	assert.ErrorIs(t, err, ErrNoAgentAvailable)
}
