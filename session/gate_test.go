package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/savesync/errors"
)

type failingProvider struct {
	err     error
	started int
}

func (f *failingProvider) Start(ctx context.Context, notify func(bool)) (bool, error) {
	f.started++
	return false, f.err
}

func TestGate_ReportsInitialActiveState(t *testing.T) {
	provider := NewStatic(true)
	gate := NewGate(provider, zap.NewNop().Sugar())

	var got []bool
	require.NoError(t, gate.Subscribe(context.Background(), func(active bool) { got = append(got, active) }))

	assert.Equal(t, []bool{true}, got, "a subscriber attaching after sign-in still sees the activation")
	assert.True(t, gate.Active())
}

func TestGate_ForwardsOnlyChanges(t *testing.T) {
	provider := NewStatic(false)
	gate := NewGate(provider, zap.NewNop().Sugar())

	var got []bool
	require.NoError(t, gate.Subscribe(context.Background(), func(active bool) { got = append(got, active) }))

	provider.SetActive(false)
	provider.SetActive(true)
	provider.SetActive(true)
	provider.SetActive(false)
	provider.SetActive(true)

	assert.Equal(t, []bool{false, true, false, true}, got)
}

func TestGate_SecondSubscriberRejected(t *testing.T) {
	gate := NewGate(NewStatic(true), zap.NewNop().Sugar())

	require.NoError(t, gate.Subscribe(context.Background(), func(bool) {}))
	err := gate.Subscribe(context.Background(), func(bool) {})
	assert.True(t, errors.Is(err, ErrAlreadySubscribed))
}

func TestGate_InitFailureLoggedOnceNoActivation(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	provider := &failingProvider{err: errors.New("token file unreadable")}
	gate := NewGate(provider, zap.New(core).Sugar())

	calls := 0
	err := gate.Subscribe(context.Background(), func(bool) { calls++ })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "token file unreadable")
	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, provider.started, "no retry")
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
	assert.False(t, gate.Active())
}

func TestStatic_SetActiveBeforeStart(t *testing.T) {
	provider := NewStatic(false)
	provider.SetActive(true)
	assert.True(t, provider.Active())

	active, err := provider.Start(context.Background(), func(bool) {})
	require.NoError(t, err)
	assert.True(t, active)
}
