package remote

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/savesync/errors"
)

func TestMemory_CreateListGetPatch(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	files, err := m.List(ctx, "config.json", "appDataFolder")
	require.NoError(t, err)
	assert.Empty(t, files)

	id, err := m.Create(ctx, "config.json", "appDataFolder")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	files, err = m.List(ctx, "config.json", "appDataFolder")
	require.NoError(t, err)
	assert.Equal(t, []File{{ID: id, Name: "config.json"}}, files)

	content, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, content, "new entries start empty")

	require.NoError(t, m.Patch(ctx, id, `{"seed":3}`))
	content, err = m.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, `{"seed":3}`, content)
}

func TestMemory_ListFiltersNameAndNamespace(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Put("a", "config.json", "appDataFolder", "")
	m.Put("b", "config.json", "other", "")
	m.Put("c", "config.json.bak", "appDataFolder", "")
	m.Put("d", "config.json", "appDataFolder", "")

	files, err := m.List(ctx, "config.json", "appDataFolder")
	require.NoError(t, err)
	assert.Equal(t, []File{{ID: "a", Name: "config.json"}, {ID: "d", Name: "config.json"}}, files)
	assert.Equal(t, 4, m.Len())
}

func TestMemory_UnknownID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Get(ctx, "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	assert.True(t, errors.Is(m.Patch(ctx, "missing", "x"), errors.ErrNotFound))
}

func TestMemory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMemory()

	_, err := m.List(ctx, "config.json", "appDataFolder")
	assert.Error(t, err)
	_, err = m.Create(ctx, "config.json", "appDataFolder")
	assert.Error(t, err)
	assert.Equal(t, 0, m.Len())
}
