package remote

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/teranos/savesync/errors"
)

type memoryFile struct {
	name      string
	namespace string
	content   string
}

// Memory is an in-process Transport, used by the memory backend and in tests
type Memory struct {
	mu    sync.Mutex
	files map[string]*memoryFile
	seq   int64 // creation order for stable listings
	order map[string]int64
}

// NewMemory creates an empty in-process transport
func NewMemory() *Memory {
	return &Memory{
		files: make(map[string]*memoryFile),
		order: make(map[string]int64),
	}
}

// List returns entries named name in namespace, oldest first
func (m *Memory) List(ctx context.Context, name, namespace string) ([]File, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "list cancelled")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []File
	for id, f := range m.files {
		if f.name == name && f.namespace == namespace {
			out = append(out, File{ID: id, Name: f.name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return m.order[out[i].ID] < m.order[out[j].ID] })
	return out, nil
}

// Create adds an empty entry with a random identifier
func (m *Memory) Create(ctx context.Context, name, namespace string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Wrap(err, "create cancelled")
	}

	id := uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.files[id] = &memoryFile{name: name, namespace: namespace}
	m.order[id] = m.seq
	return id, nil
}

// Get returns the entry's content
func (m *Memory) Get(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Wrap(err, "get cancelled")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return "", errors.NewNotFoundError("file %s", id)
	}
	return f.content, nil
}

// Patch replaces the entry's content
func (m *Memory) Patch(ctx context.Context, id, content string) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "patch cancelled")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return errors.NewNotFoundError("file %s", id)
	}
	f.content = content
	return nil
}

// Put seeds an entry with a known identifier and content
func (m *Memory) Put(id, name, namespace, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.files[id] = &memoryFile{name: name, namespace: namespace, content: content}
	m.order[id] = m.seq
}

// Len returns the number of stored entries
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}
