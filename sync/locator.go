package sync

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/savesync/errors"
	"github.com/teranos/savesync/logger"
	"github.com/teranos/savesync/remote"
)

// Locator finds the remote save file by name
type Locator struct {
	transport remote.Transport
	namespace string
	logger    *zap.SugaredLogger
}

// NewLocator creates a locator searching AppDataNamespace
func NewLocator(transport remote.Transport, logger *zap.SugaredLogger) *Locator {
	return &Locator{transport: transport, namespace: AppDataNamespace, logger: logger}
}

// Locate returns the first entry named exactly name. Zero matches is found=false,
// not an error. Extra matches are ignored and logged.
func (l *Locator) Locate(ctx context.Context, name string) (Handle, bool, error) {
	files, err := l.transport.List(ctx, name, l.namespace)
	if err != nil {
		return "", false, errors.Wrapf(err, "failed to list %s in %s", name, l.namespace)
	}

	var matches []remote.File
	for _, f := range files {
		if f.Name == name {
			matches = append(matches, f)
		}
	}

	if len(matches) == 0 {
		return "", false, nil
	}
	if len(matches) > 1 {
		logger.FromContext(ctx, l.logger).Warnw("Multiple remote save files found, using the first",
			logger.FieldFilename, name,
			logger.FieldCount, len(matches),
			logger.FieldHandle, matches[0].ID,
		)
	}
	return Handle(matches[0].ID), true, nil
}
