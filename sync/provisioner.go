package sync

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/savesync/errors"
	"github.com/teranos/savesync/logger"
	"github.com/teranos/savesync/remote"
)

// Provisioner creates the remote save file. It never checks for an existing
// file; the controller only calls it after a lookup found none.
type Provisioner struct {
	transport remote.Transport
	namespace string
	logger    *zap.SugaredLogger
}

// NewProvisioner creates a provisioner writing into AppDataNamespace
func NewProvisioner(transport remote.Transport, logger *zap.SugaredLogger) *Provisioner {
	return &Provisioner{transport: transport, namespace: AppDataNamespace, logger: logger}
}

// Create makes one new entry named name and returns its handle
func (p *Provisioner) Create(ctx context.Context, name string) (Handle, error) {
	id, err := p.transport.Create(ctx, name, p.namespace)
	if err != nil {
		return "", errors.Wrapf(err, "failed to create %s in %s", name, p.namespace)
	}
	if id == "" {
		return "", errors.Newf("transport returned an empty id for %s", name)
	}

	logger.FromContext(ctx, p.logger).Infow("Remote save file created",
		logger.FieldFilename, name,
		logger.FieldHandle, id,
	)
	return Handle(id), nil
}
