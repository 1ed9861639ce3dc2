package sync

import (
	"context"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/savesync/errors"
	"github.com/teranos/savesync/events"
	"github.com/teranos/savesync/logger"
	"github.com/teranos/savesync/savestore"
)

// reconcileQueueSize bounds remote blobs waiting for the worker. One arrives per session.
const reconcileQueueSize = 4

// Reconciler applies ConflictPolicy to remote content published at session
// start. It is the only place remote content may overwrite the local slot,
// and it never writes to the remote. Subscribed reconciles run on a worker
// goroutine because TopicRemoteStateAvailable is published from the
// controller loop.
type Reconciler struct {
	policy  ConflictPolicy
	store   savestore.Store
	key     string
	bus     *events.Bus
	logger  *zap.SugaredLogger
	timeout time.Duration

	mu   gosync.Mutex
	sub  *events.Subscription
	work chan SaveBlob
	quit chan struct{}
	done chan struct{}
}

// NewReconciler creates a reconciler for the local slot key
func NewReconciler(policy ConflictPolicy, store savestore.Store, key string, bus *events.Bus, logger *zap.SugaredLogger) *Reconciler {
	if key == "" {
		key = DefaultLocalKey
	}
	return &Reconciler{
		policy:  policy,
		store:   store,
		key:     key,
		bus:     bus,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// Start subscribes to TopicRemoteStateAvailable. Calling it twice is a no-op.
func (r *Reconciler) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		return
	}
	work := make(chan SaveBlob, reconcileQueueSize)
	r.work, r.quit, r.done = work, make(chan struct{}), make(chan struct{})
	go r.worker(work, r.quit, r.done)

	r.sub = r.bus.Subscribe(events.TopicRemoteStateAvailable, func(e events.Event) {
		select {
		case work <- SaveBlob(e.Blob):
		default:
			r.logger.Warnw("Reconcile queue full, dropping remote save",
				logger.FieldKey, r.key,
				logger.FieldSize, len(e.Blob),
			)
		}
	})
}

// Stop unsubscribes and waits for a reconcile in progress to finish.
// Blobs still queued are dropped.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub == nil {
		return
	}
	r.sub.Unsubscribe()
	r.sub = nil
	close(r.quit)
	<-r.done
}

func (r *Reconciler) worker(work <-chan SaveBlob, quit, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-quit:
			return
		case blob := <-work:
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			if _, err := r.Reconcile(ctx, blob); err != nil {
				r.logger.Warnw("Remote save not applied",
					logger.FieldKey, r.key,
					logger.FieldError, err,
				)
			}
			cancel()
		}
	}
}

// Reconcile compares remote with the local slot and, when remote wins, stores
// it and publishes TopicStateReloaded so the governing program reloads.
func (r *Reconciler) Reconcile(ctx context.Context, remote SaveBlob) (bool, error) {
	local, _, err := r.store.Get(ctx, r.key)
	if err != nil {
		return false, errors.Wrap(err, "failed to read local save")
	}

	wins, err := r.policy.RemoteWins(SaveBlob(local), remote)
	if err != nil {
		return false, err
	}
	if !wins {
		r.logger.Debugw("Local save is current, keeping it",
			logger.FieldKey, r.key,
		)
		return false, nil
	}

	if err := r.store.Set(ctx, r.key, string(remote)); err != nil {
		return false, errors.Wrap(err, "failed to store remote save locally")
	}

	r.logger.Infow("Remote save is newer, reloading",
		logger.FieldKey, r.key,
		logger.FieldSize, len(remote),
	)
	r.bus.Publish(events.Event{Topic: events.TopicStateReloaded, Blob: string(remote)})
	return true, nil
}
