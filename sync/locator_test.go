package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/savesync/errors"
	"github.com/teranos/savesync/events"
	"github.com/teranos/savesync/logger"
	"github.com/teranos/savesync/remote"
)

func TestLocator_Found(t *testing.T) {
	transport := newFakeTransport().withFile("abc123", "config.json", "")
	l := NewLocator(transport, zaptest.NewLogger(t).Sugar())

	h, found, err := l.Locate(context.Background(), "config.json")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, Handle("abc123"), h)
}

func TestLocator_AbsentIsNotAnError(t *testing.T) {
	l := NewLocator(newFakeTransport(), zaptest.NewLogger(t).Sugar())

	h, found, err := l.Locate(context.Background(), "config.json")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, h)
}

func TestLocator_ExactNameMatch(t *testing.T) {
	// a loose backend query may return near matches
	transport := newFakeTransport().
		withFile("bak", "config.json.bak", "").
		withFile("real", "config.json", "")
	l := NewLocator(transport, zaptest.NewLogger(t).Sugar())

	h, found, err := l.Locate(context.Background(), "config.json")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, Handle("real"), h)
}

func TestLocator_MultipleMatchesFirstWinsWithWarning(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	transport := newFakeTransport().
		withFile("first", "config.json", "").
		withFile("second", "config.json", "")
	l := NewLocator(transport, zap.New(core).Sugar())

	ctx := logger.WithOperation(logger.WithSession(context.Background(), 4), "locate")
	h, found, err := l.Locate(ctx, "config.json")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, Handle("first"), h)

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 1)
	assert.Equal(t, int64(2), warnings[0].ContextMap()["count"])
	assert.Equal(t, "first", warnings[0].ContextMap()["handle"])
	assert.Equal(t, uint64(4), warnings[0].ContextMap()[logger.FieldSession])
	assert.Equal(t, "locate", warnings[0].ContextMap()[logger.FieldOperation])
}

// Calls issued by the controller carry their session and operation into transport-side logs
func TestController_CallsAreTaggedForLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	transport := newFakeTransport()
	bus := events.NewBus(zap.NewNop().Sugar())
	ctrl := NewController(transport, bus, zap.New(core).Sugar(), Options{RequestTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ctrl.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	ctrl.OnSessionChanged(true)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	_, err := ctrl.Wait(waitCtx, func(st State) bool { return st.Phase == PhaseReady })
	require.NoError(t, err)

	created := logs.FilterMessage("Remote save file created").All()
	require.Len(t, created, 1)
	assert.Equal(t, uint64(1), created[0].ContextMap()[logger.FieldSession])
	assert.Equal(t, "create", created[0].ContextMap()[logger.FieldOperation])
}

func TestLocator_TransportErrorPropagates(t *testing.T) {
	transport := newFakeTransport()
	transport.listErr = errors.Mark(errors.New("401"), errors.ErrUnauthorized)
	l := NewLocator(transport, zaptest.NewLogger(t).Sugar())

	_, found, err := l.Locate(context.Background(), "config.json")
	require.Error(t, err)
	assert.False(t, found)
	assert.True(t, errors.IsUnauthorizedError(err))
}

func TestProvisioner_Create(t *testing.T) {
	transport := newFakeTransport()
	transport.nextID = "abc123"
	p := NewProvisioner(transport, zaptest.NewLogger(t).Sugar())

	h, err := p.Create(context.Background(), "config.json")
	require.NoError(t, err)
	assert.Equal(t, Handle("abc123"), h)
	assert.Equal(t, []call{{op: "create", content: "config.json@appDataFolder"}}, transport.ops("create"))
	assert.Empty(t, transport.ops("list"), "no existence check")
}

func TestProvisioner_EmptyIDIsAnError(t *testing.T) {
	transport := newFakeTransport()
	transport.nextID = ""
	p := NewProvisioner(transport, zaptest.NewLogger(t).Sugar())

	_, err := p.Create(context.Background(), "config.json")
	assert.Error(t, err)
}

func TestProvisioner_WithMemoryTransport(t *testing.T) {
	ctx := context.Background()
	mem := remote.NewMemory()
	p := NewProvisioner(mem, zaptest.NewLogger(t).Sugar())
	l := NewLocator(mem, zaptest.NewLogger(t).Sugar())

	created, err := p.Create(ctx, SaveFilename)
	require.NoError(t, err)

	found, ok, err := l.Locate(ctx, SaveFilename)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, created, found)
}
