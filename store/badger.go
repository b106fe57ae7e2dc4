package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/monkeygold/automaton"
)

const (
	childPrefix        = "child:"
	modificationPrefix = "modification:"
)

// BadgerStore implements automaton.Store with Badger DB. Records are JSON
// values; keys embed the UUIDv7 ids so prefix scans return creation order.
type BadgerStore struct {
	db *badger.DB
}

var _ automaton.Store = (*BadgerStore)(nil)

// OpenBadger opens or creates a Badger database in dir.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(filepath.Clean(dir))
	opts.Logger = nil
	opts = opts.WithValueLogFileSize(1 << 20)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func childKey(id string) []byte {
	return []byte(childPrefix + id)
}

func modificationKey(id string) []byte {
	return []byte(modificationPrefix + id)
}

// Children returns every child ordered by id.
func (s *BadgerStore) Children(ctx context.Context) ([]automaton.ChildRecord, error) {
	var out []automaton.ChildRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, childPrefix, func(v []byte) error {
			var c automaton.ChildRecord
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			out = append(out, c)
			return nil
		})
	})
	return out, err
}

// Child returns the child with the given id.
func (s *BadgerStore) Child(ctx context.Context, id string) (*automaton.ChildRecord, error) {
	var out automaton.ChildRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, childKey(id), &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// InsertChild persists a new child. An existing id is rejected.
func (s *BadgerStore) InsertChild(ctx context.Context, c automaton.ChildRecord) error {
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(childKey(c.ID))
		if err == nil {
			return fmt.Errorf("child %s already exists", c.ID)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return setJSON(txn, childKey(c.ID), c)
	})
}

// UpdateChildStatus rewrites the status of an existing child in a single
// transaction.
func (s *BadgerStore) UpdateChildStatus(ctx context.Context, id string, status automaton.Status) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var c automaton.ChildRecord
		if err := getJSON(txn, childKey(id), &c); err != nil {
			return err
		}
		c.Status = status
		return setJSON(txn, childKey(id), c)
	})
}

// InsertModification appends an audit log entry. An existing id is
// rejected so entries are never rewritten.
func (s *BadgerStore) InsertModification(ctx context.Context, m automaton.ModificationRecord) error {
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(modificationKey(m.ID))
		if err == nil {
			return fmt.Errorf("modification %s already exists", m.ID)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return setJSON(txn, modificationKey(m.ID), m)
	})
}

// Modifications returns the audit log in key order.
func (s *BadgerStore) Modifications(ctx context.Context) ([]automaton.ModificationRecord, error) {
	var out []automaton.ModificationRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, modificationPrefix, func(v []byte) error {
			var m automaton.ModificationRecord
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			out = append(out, m)
			return nil
		})
	})
	return out, err
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return automaton.ErrChildNotFound
		}
		return err
	}
	return item.Value(func(data []byte) error {
		return json.Unmarshal(data, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func scanPrefix(txn *badger.Txn, prefix string, fn func([]byte) error) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}
