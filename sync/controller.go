package sync

import (
	"context"
	"strings"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/savesync/events"
	"github.com/teranos/savesync/logger"
	"github.com/teranos/savesync/remote"
)

// DefaultRequestTimeout bounds each transport call
const DefaultRequestTimeout = 30 * time.Second

// inboxSize is the number of messages that can wait for the loop
const inboxSize = 64

// Hooks observe the controller. They run on the loop goroutine and must not
// block. Result hooks fire only for results the controller accepted; results
// from an earlier session are dropped silently.
type Hooks struct {
	Transition func(from Phase, to State)
	Locate     func(session uint64, h Handle, found bool, err error)
	Create     func(session uint64, h Handle, err error)
	Fetch      func(session uint64, h Handle, content SaveBlob, err error)
	Write      func(session uint64, h Handle, blob SaveBlob, err error)
}

// Options configures a Controller
type Options struct {
	RequestTimeout time.Duration
	Hooks          Hooks
}

// message is anything the loop consumes
type message interface{}

type sessionChanged struct{ active bool }

type saveRequested struct {
	session uint64
	blob    SaveBlob
}

type located struct {
	session uint64
	handle  Handle
	found   bool
	err     error
}

type provisioned struct {
	session uint64
	handle  Handle
	err     error
}

type fetched struct {
	session uint64
	handle  Handle
	content string
	err     error
}

type written struct {
	session uint64
	handle  Handle
	blob    SaveBlob
	err     error
}

// Controller drives the per-session lifecycle of the remote save file.
//
// All state lives on the Run goroutine. Transport calls run in their own
// goroutines and report back through the inbox, tagged with the session
// generation that issued them; results from an older generation are ignored.
type Controller struct {
	locator     *Locator
	provisioner *Provisioner
	transport   remote.Transport
	bus         *events.Bus
	logger      *zap.SugaredLogger
	timeout     time.Duration
	hooks       Hooks

	inbox   chan message
	stopped chan struct{}

	// loop-owned
	phase    Phase
	handle   Handle
	session  uint64
	active   bool
	listener *events.Subscription
	pending  []SaveBlob
	writing  bool
	fetching bool

	mu      gosync.Mutex
	state   State
	changed chan struct{}
}

// NewController creates a controller. Call Run to start it.
func NewController(transport remote.Transport, bus *events.Bus, logger *zap.SugaredLogger, opts Options) *Controller {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	return &Controller{
		locator:     NewLocator(transport, logger),
		provisioner: NewProvisioner(transport, logger),
		transport:   transport,
		bus:         bus,
		logger:      logger,
		timeout:     opts.RequestTimeout,
		hooks:       opts.Hooks,
		inbox:       make(chan message, inboxSize),
		stopped:     make(chan struct{}),
		changed:     make(chan struct{}),
	}
}

// OnSessionChanged feeds a session state change into the loop.
// It is the callback handed to session.Gate.Subscribe.
func (c *Controller) OnSessionChanged(active bool) {
	c.post(sessionChanged{active: active})
}

// State returns a snapshot of the controller
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Wait blocks until cond holds for the current state or ctx is done
func (c *Controller) Wait(ctx context.Context, cond func(State) bool) (State, error) {
	for {
		c.mu.Lock()
		st, ch := c.state, c.changed
		c.mu.Unlock()

		if cond(st) {
			return st, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return st, ctx.Err()
		case <-c.stopped:
			return c.State(), context.Canceled
		}
	}
}

// Run processes messages until ctx is done. On return the session is unbound.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.stopped)

	for {
		select {
		case <-ctx.Done():
			if c.active {
				c.deactivate()
			}
			return nil
		case m := <-c.inbox:
			c.dispatch(ctx, m)
		}
	}
}

func (c *Controller) post(m message) {
	select {
	case c.inbox <- m:
	case <-c.stopped:
	}
}

func (c *Controller) dispatch(ctx context.Context, m message) {
	switch m := m.(type) {
	case sessionChanged:
		if m.active {
			c.activate(ctx)
		} else if c.active {
			c.deactivate()
		}
	case located:
		c.onLocated(ctx, m)
	case provisioned:
		c.onProvisioned(ctx, m)
	case fetched:
		c.onFetched(ctx, m)
	case saveRequested:
		c.onSaveRequested(ctx, m)
	case written:
		c.onWritten(ctx, m)
	}
}

func (c *Controller) activate(ctx context.Context) {
	if c.active {
		c.logger.Debugw("Session already active, ignoring activation",
			logger.FieldSession, c.session,
			logger.FieldPhase, c.phase.String(),
		)
		return
	}

	c.active = true
	c.session++
	if c.phase == PhaseUnbound {
		c.transition(PhaseIdle)
	}
	c.transition(PhaseResolving)

	session := c.session
	c.call(ctx, "locate", func(callCtx context.Context) message {
		h, found, err := c.locator.Locate(callCtx, SaveFilename)
		return located{session: session, handle: h, found: found, err: err}
	})
}

func (c *Controller) deactivate() {
	c.active = false
	if c.listener != nil {
		c.listener.Unsubscribe()
		c.listener = nil
	}
	if len(c.pending) > 0 {
		c.logger.Infow("Dropping queued writes on sign-out",
			logger.FieldSession, c.session,
			logger.FieldPending, len(c.pending),
		)
	}
	c.pending = nil
	c.writing = false
	c.fetching = false
	c.handle = ""
	c.transition(PhaseUnbound)
}

func (c *Controller) onLocated(ctx context.Context, m located) {
	if !c.accept(m.session, PhaseResolving) {
		return
	}
	if c.hooks.Locate != nil {
		c.hooks.Locate(m.session, m.handle, m.found, m.err)
	}

	if m.err != nil {
		c.logger.Warnw("Failed to locate remote save file; retrying on next sign-in",
			logger.FieldSession, m.session,
			logger.FieldError, m.err,
		)
		return
	}

	if m.found {
		c.enterReady(ctx, m.handle, true)
		return
	}

	c.transition(PhaseProvisioning)
	session := c.session
	c.call(ctx, "create", func(callCtx context.Context) message {
		h, err := c.provisioner.Create(callCtx, SaveFilename)
		return provisioned{session: session, handle: h, err: err}
	})
}

func (c *Controller) onProvisioned(ctx context.Context, m provisioned) {
	if !c.accept(m.session, PhaseProvisioning) {
		return
	}
	if c.hooks.Create != nil {
		c.hooks.Create(m.session, m.handle, m.err)
	}

	if m.err != nil {
		c.logger.Warnw("Failed to create remote save file; retrying on next sign-in",
			logger.FieldSession, m.session,
			logger.FieldError, m.err,
		)
		return
	}

	// a freshly created file is empty, nothing to fetch
	c.enterReady(ctx, m.handle, false)
}

func (c *Controller) enterReady(ctx context.Context, h Handle, fetch bool) {
	c.handle = h
	session := c.session

	// attach before the phase becomes visible so a Ready observer can save at once;
	// its writes queue until the initial fetch has been read
	c.fetching = fetch
	c.listener = c.bus.Subscribe(events.TopicSaveRequested, func(e events.Event) {
		c.post(saveRequested{session: session, blob: SaveBlob(e.Blob)})
	})
	c.transition(PhaseReady)

	if fetch {
		c.call(ctx, "fetch", func(callCtx context.Context) message {
			content, err := c.transport.Get(callCtx, string(h))
			return fetched{session: session, handle: h, content: content, err: err}
		})
	}
}

func (c *Controller) onFetched(ctx context.Context, m fetched) {
	if !c.accept(m.session, PhaseReady) || m.handle != c.handle {
		return
	}
	c.fetching = false
	defer c.pump(ctx)

	if c.hooks.Fetch != nil {
		c.hooks.Fetch(m.session, m.handle, SaveBlob(m.content), m.err)
	}

	if m.err != nil {
		c.logger.Warnw("Failed to fetch remote save",
			logger.FieldSession, m.session,
			logger.FieldHandle, m.handle,
			logger.FieldError, m.err,
		)
		return
	}

	blob := strings.TrimSpace(m.content)
	if blob == "" {
		c.logger.Debugw("Remote save file is empty, nothing to publish",
			logger.FieldHandle, m.handle,
		)
		return
	}

	c.logger.Infow("Remote save available",
		logger.FieldSession, m.session,
		logger.FieldHandle, m.handle,
		logger.FieldSize, len(blob),
	)
	c.bus.Publish(events.Event{Topic: events.TopicRemoteStateAvailable, Blob: blob})
}

func (c *Controller) onSaveRequested(ctx context.Context, m saveRequested) {
	if !c.accept(m.session, PhaseReady) {
		return
	}
	c.pending = append(c.pending, m.blob)
	c.pump(ctx)
}

// pump starts the next queued write unless one is in flight or the
// remote content has not been read yet
func (c *Controller) pump(ctx context.Context) {
	defer c.publishState()

	if c.writing || c.fetching || len(c.pending) == 0 {
		return
	}

	blob := c.pending[0]
	c.pending = c.pending[1:]
	c.writing = true

	session, h := c.session, c.handle
	c.call(ctx, "write", func(callCtx context.Context) message {
		err := c.transport.Patch(callCtx, string(h), string(blob))
		return written{session: session, handle: h, blob: blob, err: err}
	})
}

func (c *Controller) onWritten(ctx context.Context, m written) {
	if !c.accept(m.session, PhaseReady) {
		return
	}
	c.writing = false
	if c.hooks.Write != nil {
		c.hooks.Write(m.session, m.handle, m.blob, m.err)
	}

	if m.err != nil {
		c.logger.Errorw("Failed to write save to remote; local copy remains authoritative",
			logger.FieldSession, m.session,
			logger.FieldHandle, m.handle,
			logger.FieldError, m.err,
		)
	} else {
		c.logger.Debugw("Remote save written",
			logger.FieldHandle, m.handle,
			logger.FieldSize, len(m.blob),
		)
	}

	c.pump(ctx)
}

// accept reports whether a result belongs to the current session and phase
func (c *Controller) accept(session uint64, phase Phase) bool {
	if session != c.session || c.phase != phase || !c.active {
		c.logger.Debugw("Ignoring stale result",
			logger.FieldSession, session,
			"current_session", c.session,
			logger.FieldPhase, c.phase.String(),
		)
		return false
	}
	return true
}

// call runs fn in its own goroutine with a per-call timeout and posts its result.
// The call context carries the session and operation for logging.
// Sign-out does not cancel it; the result is discarded by accept instead.
func (c *Controller) call(ctx context.Context, op string, fn func(context.Context) message) {
	ctx = logger.WithOperation(logger.WithSession(ctx, c.session), op)
	go func() {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		c.post(fn(callCtx))
	}()
}

func (c *Controller) transition(to Phase) {
	from := c.phase
	c.phase = to

	c.logger.Infow("Sync phase changed",
		logger.FieldFrom, from.String(),
		logger.FieldPhase, to.String(),
		logger.FieldSession, c.session,
	)

	st := c.snapshot()
	if c.hooks.Transition != nil {
		c.hooks.Transition(from, st)
	}
	c.store(st)
}

// publishState makes the loop's current state visible to State and Wait
func (c *Controller) publishState() {
	c.store(c.snapshot())
}

func (c *Controller) snapshot() State {
	st := State{
		Phase:   c.phase,
		Handle:  c.handle,
		Session: c.session,
		Active:  c.active,
		Pending: len(c.pending),
	}
	if c.writing {
		st.Pending++
	}
	return st
}

func (c *Controller) store(st State) {
	c.mu.Lock()
	c.state = st
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()
}
