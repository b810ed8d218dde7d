package backend

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// MemoryBackend keeps documents in process. It backs offline mode and tests.
type MemoryBackend struct {
	mu     sync.RWMutex
	docs   map[string]json.RawMessage
	broker *broker
}

func NewMemoryBackend(buffer int) *MemoryBackend {
	return &MemoryBackend{
		docs:   make(map[string]json.RawMessage),
		broker: newBroker(buffer),
	}
}

func (m *MemoryBackend) Read(_ context.Context, path string, out any) error {
	clean, err := CleanPath(path)
	if err != nil {
		return err
	}
	m.mu.RLock()
	raw, ok := m.docs[clean]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return decode(raw, out)
}

func (m *MemoryBackend) Write(ctx context.Context, path string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean, err := CleanPath(path)
	if err != nil {
		return err
	}
	raw, err := encode(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[clean] = raw
	m.broker.publish(Snapshot{Path: clean, Value: raw})
	return nil
}

func (m *MemoryBackend) Update(ctx context.Context, path string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean, err := CleanPath(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	merged, err := mergeFields(m.docs[clean], fields)
	if err != nil {
		return err
	}
	m.docs[clean] = merged
	m.broker.publish(Snapshot{Path: clean, Value: merged})
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean, err := CleanPath(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := make([]string, 0)
	for p := range m.docs {
		if under(p, clean) {
			removed = append(removed, p)
		}
	}
	if len(removed) == 0 {
		return ErrNotFound
	}
	sort.Strings(removed)
	for _, p := range removed {
		delete(m.docs, p)
		m.broker.publish(Snapshot{Path: p})
	}
	return nil
}

func (m *MemoryBackend) List(_ context.Context, prefix string) (map[string]json.RawMessage, error) {
	clean, err := CleanPath(prefix)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(clean), nil
}

func (m *MemoryBackend) listLocked(root string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage)
	for p, raw := range m.docs {
		if under(p, root) {
			out[p] = raw
		}
	}
	return out
}

func (m *MemoryBackend) Subscribe(ctx context.Context, path string) (*Subscription, error) {
	clean, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.broker.add(ctx, clean, snapshotsOf(m.listLocked(clean)))
}

func (m *MemoryBackend) Close() error {
	m.broker.close()
	return nil
}

func snapshotsOf(docs map[string]json.RawMessage) []Snapshot {
	paths := make([]string, 0, len(docs))
	for p := range docs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	out := make([]Snapshot, 0, len(paths))
	for _, p := range paths {
		out = append(out, Snapshot{Path: p, Value: docs[p]})
	}
	return out
}
