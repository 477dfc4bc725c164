// internal/pool/registry_test.go
package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/partyhost/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stopProvisioner starts nothing and records the context state each Stop sees.
type stopProvisioner struct {
	delay time.Duration
	err   error

	mu      sync.Mutex
	ctxErrs []error
}

func (s *stopProvisioner) Start(ctx context.Context, server *models.Server, report Reporter) error {
	return nil
}

func (s *stopProvisioner) Stop(ctx context.Context, server *models.Server, report Reporter) error {
	time.Sleep(s.delay)
	s.mu.Lock()
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	return report.SetShutdown(server.ID)
}

func (s *stopProvisioner) seen() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.ctxErrs...)
}

func warmLeaf(t *testing.T, id string, prov Provisioner) *LeafPool {
	t.Helper()
	leaf := NewLeafPool(LeafConfig{ID: id, MaxServers: 1, ReadyThreshold: 1}, prov, nil, testLogger())
	leaf.Warm(context.Background())
	require.Len(t, leaf.Servers(), 1)
	return leaf
}

func TestRegistryDisposeContinuesPastFailure(t *testing.T) {
	failing := &stopProvisioner{err: errors.New("agent unreachable")}
	slow := &stopProvisioner{delay: 50 * time.Millisecond}

	reg := NewRegistry()
	require.NoError(t, reg.Register(warmLeaf(t, "bad", failing)))
	good := warmLeaf(t, "good", slow)
	require.NoError(t, reg.Register(good))

	err := reg.Dispose(context.Background())
	assert.ErrorContains(t, err, "agent unreachable")

	assert.Equal(t, []error{nil}, slow.seen())
	assert.Empty(t, good.Servers())
}

func TestCompositeDisposeContinuesPastFailure(t *testing.T) {
	failing := &stopProvisioner{err: errors.New("agent unreachable")}
	slow := &stopProvisioner{delay: 50 * time.Millisecond}

	reg := NewRegistry()
	require.NoError(t, reg.Register(warmLeaf(t, "bad", failing)))
	good := warmLeaf(t, "good", slow)
	require.NoError(t, reg.Register(good))
	comp := NewCompositePool("root", reg, testLogger())
	require.NoError(t, comp.UpdateConfiguration(CompositeConfig{Children: []string{"bad", "good"}}))

	assert.Error(t, comp.Dispose(context.Background()))
	assert.Equal(t, []error{nil}, slow.seen())
	assert.Empty(t, good.Servers())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&stubPool{id: "a"}))
	assert.Error(t, reg.Register(&stubPool{id: "a"}))

	_, err := reg.Get("missing")
	assert.ErrorIs(t, err, ErrUnknownPool)
	_, err = reg.Leaf("a")
	assert.ErrorIs(t, err, ErrUnknownPool)
}
