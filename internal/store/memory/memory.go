// Package memory is the lightweight enumerate-only backend. It keeps every
// document in a map and answers Find by scanning.
package memory

import (
	"context"
	"sort"
	"sync"

	"clinic-management-api/internal/model"
	"clinic-management-api/internal/store"
)

type Collection[T store.Document] struct {
	mu   sync.RWMutex
	docs map[string]T
}

func NewCollection[T store.Document]() *Collection[T] {
	return &Collection[T]{docs: make(map[string]T)}
}

// Find returns matches ordered by id so results are deterministic.
func (c *Collection[T]) Find(_ context.Context, f store.Filter) ([]T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, 0, len(c.docs))
	for _, d := range c.docs {
		if f.Matches(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func (c *Collection[T]) Get(_ context.Context, id string) (T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.docs[id]
	if !ok {
		var zero T
		return zero, store.ErrNotFound
	}
	return d, nil
}

func (c *Collection[T]) Insert(_ context.Context, doc T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[doc.Key()]; ok {
		return store.ErrDuplicate
	}
	c.docs[doc.Key()] = doc
	return nil
}

func (c *Collection[T]) Replace(_ context.Context, doc T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[doc.Key()]; !ok {
		return store.ErrNotFound
	}
	c.docs[doc.Key()] = doc
	return nil
}

func (c *Collection[T]) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[id]; !ok {
		return store.ErrNotFound
	}
	delete(c.docs, id)
	return nil
}

func New() *store.Backend {
	return &store.Backend{
		Name:         "memory",
		Users:        NewCollection[model.User](),
		Appointments: NewCollection[model.Appointment](),
		Analyses:     NewCollection[model.Analysis](),
		Reports:      NewCollection[model.Report](),
	}
}
