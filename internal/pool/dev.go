// internal/pool/dev.go
package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partyhost/internal/models"
	"github.com/sirupsen/logrus"
)

// DevProvisioner serves a fixed list of endpoints, e.g. locally running servers.
// Readiness and shutdown are reported right away on a separate goroutine.
type DevProvisioner struct {
	mu     sync.Mutex
	free   []string
	inUse  map[uuid.UUID]string
	logger *logrus.Entry
}

func NewDevProvisioner(endpoints []string, logger *logrus.Entry) *DevProvisioner {
	free := make([]string, len(endpoints))
	copy(free, endpoints)
	return &DevProvisioner{
		free:   free,
		inUse:  make(map[uuid.UUID]string),
		logger: logger,
	}
}

func (d *DevProvisioner) Start(ctx context.Context, server *models.Server, report Reporter) error {
	d.mu.Lock()
	if len(d.free) == 0 {
		d.mu.Unlock()
		return fmt.Errorf("no free dev endpoint for server %s", server.ID)
	}
	endpoint := d.free[0]
	d.free = d.free[1:]
	d.inUse[server.ID] = endpoint
	d.mu.Unlock()

	go func() {
		if err := report.SetReady(server.ID, endpoint); err != nil {
			d.logger.WithError(err).WithField("server_id", server.ID).Debug("ready report dropped")
		}
	}()
	return nil
}

func (d *DevProvisioner) Stop(ctx context.Context, server *models.Server, report Reporter) error {
	d.mu.Lock()
	endpoint, ok := d.inUse[server.ID]
	if ok {
		delete(d.inUse, server.ID)
		d.free = append(d.free, endpoint)
	}
	d.mu.Unlock()

	go func() {
		if err := report.SetShutdown(server.ID); err != nil {
			d.logger.WithError(err).WithField("server_id", server.ID).Debug("shutdown report dropped")
		}
	}()
	return nil
}
