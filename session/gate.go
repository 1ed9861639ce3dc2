// Package session turns an identity provider's sign-in state into a single
// stream of session activations and deactivations.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/savesync/errors"
	"github.com/teranos/savesync/logger"
)

// ErrAlreadySubscribed is returned by a second Gate.Subscribe
var ErrAlreadySubscribed = errors.New("session gate already has a subscriber")

// Provider is the identity provider behind a Gate.
//
// Start initializes the provider and returns the current state. Afterwards
// notify is called whenever the state may have changed, until ctx is done.
// notify may repeat values and must not be called before Start returns.
type Provider interface {
	Start(ctx context.Context, notify func(active bool)) (active bool, err error)
}

// Gate forwards session state to exactly one subscriber
type Gate struct {
	provider Provider
	logger   *zap.SugaredLogger

	mu         sync.Mutex
	subscribed bool
	delivered  bool
	last       bool
	fn         func(active bool)
}

// NewGate creates a gate over provider
func NewGate(provider Provider, logger *zap.SugaredLogger) *Gate {
	return &Gate{provider: provider, logger: logger}
}

// Subscribe registers fn, starts the provider and reports its current state
// immediately. Later changes are forwarded only when the value differs from
// the last one delivered.
//
// If the provider fails to start the error is logged, returned, and fn is
// never called. There is no retry.
func (g *Gate) Subscribe(ctx context.Context, fn func(active bool)) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.subscribed {
		return ErrAlreadySubscribed
	}
	g.subscribed = true

	active, err := g.provider.Start(ctx, g.forward)
	if err != nil {
		g.logger.Errorw("Identity provider failed to initialize; sync will not start",
			logger.FieldError, err,
		)
		return errors.Wrap(err, "failed to initialize identity provider")
	}

	g.fn = fn
	g.deliverLocked(active)
	return nil
}

// Active reports the last state delivered to the subscriber
func (g *Gate) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.delivered && g.last
}

func (g *Gate) forward(active bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deliverLocked(active)
}

func (g *Gate) deliverLocked(active bool) {
	if g.fn == nil {
		return
	}
	if g.delivered && g.last == active {
		return
	}
	g.delivered = true
	g.last = active

	g.logger.Infow("Session state changed", "active", active)
	g.fn(active)
}
