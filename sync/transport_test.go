package sync

import (
	"context"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/savesync/events"
	"github.com/teranos/savesync/remote"
)

// call is one recorded transport invocation
type call struct {
	op      string // list, create, get, patch
	id      string
	content string
}

// fakeTransport records every call and can hold an operation until released
type fakeTransport struct {
	mu       gosync.Mutex
	calls    []call
	files    []remote.File
	contents map[string]string
	nextID   string

	listErr   error
	createErr error
	getErr    error
	patchErr  error

	holds map[string]chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		contents: make(map[string]string),
		nextID:   "created-1",
		holds:    make(map[string]chan struct{}),
	}
}

// withFile seeds an existing remote save file
func (f *fakeTransport) withFile(id, name, content string) *fakeTransport {
	f.files = append(f.files, remote.File{ID: id, Name: name})
	f.contents[id] = content
	return f
}

// hold makes every call of op block until release(op)
func (f *fakeTransport) hold(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holds[op] = make(chan struct{})
}

func (f *fakeTransport) release(op string) {
	f.mu.Lock()
	ch := f.holds[op]
	delete(f.holds, op)
	f.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

func (f *fakeTransport) record(c call) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	ch := f.holds[c.op]
	f.mu.Unlock()
	if ch != nil {
		<-ch
	}
}

func (f *fakeTransport) List(ctx context.Context, name, namespace string) ([]remote.File, error) {
	f.record(call{op: "list", content: name + "@" + namespace})
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]remote.File(nil), f.files...), nil
}

func (f *fakeTransport) Create(ctx context.Context, name, namespace string) (string, error) {
	f.record(call{op: "create", content: name + "@" + namespace})
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	id := f.nextID
	f.files = append(f.files, remote.File{ID: id, Name: name})
	f.contents[id] = ""
	return id, nil
}

func (f *fakeTransport) Get(ctx context.Context, id string) (string, error) {
	f.record(call{op: "get", id: id})
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", f.getErr
	}
	return f.contents[id], nil
}

func (f *fakeTransport) Patch(ctx context.Context, id, content string) error {
	f.record(call{op: "patch", id: id, content: content})
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.patchErr != nil {
		return f.patchErr
	}
	f.contents[id] = content
	return nil
}

// ops returns the recorded calls of one kind
func (f *fakeTransport) ops(op string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeTransport) content(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contents[id]
}

func (f *fakeTransport) sequence() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.op
	}
	return out
}

// harness runs a controller over a fake transport
type harness struct {
	t         *testing.T
	transport *fakeTransport
	bus       *events.Bus
	ctrl      *Controller

	mu        gosync.Mutex
	published []string
	writes    []string
	fetches   int
}

func newHarness(t *testing.T, transport *fakeTransport) *harness {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()

	h := &harness{t: t, transport: transport, bus: events.NewBus(log)}
	h.bus.Subscribe(events.TopicRemoteStateAvailable, func(e events.Event) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.published = append(h.published, e.Blob)
	})

	h.ctrl = NewController(transport, h.bus, log, Options{
		RequestTimeout: time.Second,
		Hooks: Hooks{
			Fetch: func(session uint64, handle Handle, content SaveBlob, err error) {
				h.mu.Lock()
				defer h.mu.Unlock()
				h.fetches++
			},
			Write: func(session uint64, handle Handle, blob SaveBlob, err error) {
				h.mu.Lock()
				defer h.mu.Unlock()
				h.writes = append(h.writes, string(blob))
			},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ctrl.Run(ctx)
	}()
	t.Cleanup(func() {
		// unblock anything still held so goroutines can finish
		for _, op := range []string{"list", "create", "get", "patch"} {
			transport.release(op)
		}
		cancel()
		<-done
	})
	return h
}

func (h *harness) waitFor(cond func(State) bool) State {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := h.ctrl.Wait(ctx, cond)
	require.NoError(h.t, err, "state never reached, last %+v", st)
	return st
}

func (h *harness) waitPhase(p Phase) State {
	h.t.Helper()
	return h.waitFor(func(st State) bool { return st.Phase == p })
}

// waitFetched blocks until the initial fetch result has been accepted
func (h *harness) waitFetched() {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.fetches > 0
	}, 2*time.Second, 5*time.Millisecond)
}

func (h *harness) save(blob string) int {
	return h.bus.Publish(events.Event{Topic: events.TopicSaveRequested, Blob: blob})
}

func (h *harness) publishedBlobs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.published...)
}

func (h *harness) writtenBlobs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.writes...)
}

// settle gives in-flight goroutines a moment to (not) do something
func settle() {
	time.Sleep(50 * time.Millisecond)
}
