// Package leveldb is an embedded, enumerate-only backend. Documents are JSON
// values under "<collection>/<id>" keys; Find walks the collection prefix.
package leveldb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"clinic-management-api/internal/model"
	"clinic-management-api/internal/store"
)

type Collection[T store.Document] struct {
	db     *leveldb.DB
	prefix []byte
	mu     *sync.Mutex // serializes existence checks with writes
}

func newCollection[T store.Document](db *leveldb.DB, name string, mu *sync.Mutex) *Collection[T] {
	return &Collection[T]{db: db, prefix: []byte(name + "/"), mu: mu}
}

func (c *Collection[T]) key(id string) []byte {
	return append(append([]byte{}, c.prefix...), id...)
}

func (c *Collection[T]) Find(ctx context.Context, f store.Filter) ([]T, error) {
	iter := c.db.NewIterator(util.BytesPrefix(c.prefix), nil)
	defer iter.Release()

	var out []T
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var d T
		if err := json.Unmarshal(iter.Value(), &d); err != nil {
			return nil, fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		if f.Matches(d) {
			out = append(out, d)
		}
	}
	return out, iter.Error()
}

func (c *Collection[T]) Get(_ context.Context, id string) (T, error) {
	var d T
	raw, err := c.db.Get(c.key(id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return d, store.ErrNotFound
	}
	if err != nil {
		return d, err
	}
	err = json.Unmarshal(raw, &d)
	return d, err
}

func (c *Collection[T]) put(doc T, mustExist bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := c.key(doc.Key())
	exists, err := c.db.Has(k, nil)
	if err != nil {
		return err
	}
	if exists && !mustExist {
		return store.ErrDuplicate
	}
	if !exists && mustExist {
		return store.ErrNotFound
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return c.db.Put(k, raw, nil)
}

func (c *Collection[T]) Insert(_ context.Context, doc T) error  { return c.put(doc, false) }
func (c *Collection[T]) Replace(_ context.Context, doc T) error { return c.put(doc, true) }

func (c *Collection[T]) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := c.key(id)
	exists, err := c.db.Has(k, nil)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return c.db.Delete(k, nil)
}

// Open opens (or creates) the database directory at path.
func Open(path string) (*store.Backend, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return wrap(db), nil
}

// OpenMem opens a database that lives only in memory.
func OpenMem() (*store.Backend, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return wrap(db), nil
}

func wrap(db *leveldb.DB) *store.Backend {
	mu := &sync.Mutex{}
	b := &store.Backend{
		Name:         "leveldb",
		Users:        newCollection[model.User](db, model.Users, mu),
		Appointments: newCollection[model.Appointment](db, model.Appointments, mu),
		Analyses:     newCollection[model.Analysis](db, model.Analyses, mu),
		Reports:      newCollection[model.Report](db, model.Reports, mu),
	}
	b.OnClose(func(context.Context) error { return db.Close() })
	return b
}
