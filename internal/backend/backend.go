// Package backend is the realtime document store the app persists to:
// JSON documents addressed by slash-separated paths, with shallow updates
// and push subscriptions, plus a blob store for images.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound    = errors.New("backend: not found")
	ErrInvalidPath = errors.New("backend: invalid path")
	ErrClosed      = errors.New("backend: closed")
)

// Backend is the document store contract. Writes replace the whole
// document, updates merge top-level fields, and deletes remove the path
// and everything below it. Concurrent writers to one path: last one wins.
type Backend interface {
	Read(ctx context.Context, path string, out any) error
	Write(ctx context.Context, path string, value any) error
	Update(ctx context.Context, path string, fields map[string]any) error
	Delete(ctx context.Context, path string) error
	// List returns every document at or below prefix, keyed by path.
	List(ctx context.Context, prefix string) (map[string]json.RawMessage, error)
	// Subscribe delivers the current documents at or below path, then one
	// snapshot per later change. Cancelling ctx closes the subscription.
	Subscribe(ctx context.Context, path string) (*Subscription, error)
	Close() error
}

// Snapshot is one document state pushed to a subscriber. A nil Value
// means the document was deleted.
type Snapshot struct {
	Path  string
	Value json.RawMessage
}

func (s Snapshot) Exists() bool {
	return len(s.Value) > 0
}

func (s Snapshot) Decode(out any) error {
	if !s.Exists() {
		return ErrNotFound
	}
	return json.Unmarshal(s.Value, out)
}

func CleanPath(path string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(path), "/")
	if trimmed == "" {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(trimmed, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return trimmed, nil
}

// under reports whether path equals root or lies below it.
func under(path, root string) bool {
	return path == root || strings.HasPrefix(path, root+"/")
}

func encode(value any) (json.RawMessage, error) {
	if raw, ok := value.(json.RawMessage); ok {
		return raw, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return raw, nil
}

func decode(raw json.RawMessage, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// mergeFields applies a shallow update to a JSON object. An absent or
// null document starts as an empty object.
func mergeFields(raw json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	obj := make(map[string]json.RawMessage)
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("update non-object document: %w", err)
		}
	}
	for key, value := range fields {
		encoded, err := encode(value)
		if err != nil {
			return nil, err
		}
		obj[key] = encoded
	}
	return json.Marshal(obj)
}
