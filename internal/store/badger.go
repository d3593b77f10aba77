package store

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerStore is the production Store backed by a local badger database.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// OpenBadger opens (or creates) the badger database at dir.
func OpenBadger(dir string, logger *slog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // badger's own logger is too chatty for our log files
	db, err := badger.Open(opts)
	if err != nil {
		return nil, &UnavailableError{Op: "open", Err: err}
	}
	return &BadgerStore{db: db, logger: logger}, nil
}

func (s *BadgerStore) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &UnavailableError{Op: "get", Err: err}
	}
	return value, nil
}

func (s *BadgerStore) GetJSON(key string, out interface{}) (bool, error) {
	raw, err := s.Get(key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, &UnavailableError{Op: "decode", Err: err}
	}
	return true, nil
}

func (s *BadgerStore) Set(key string, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return &UnavailableError{Op: "set", Err: err}
	}
	return nil
}

func (s *BadgerStore) SetJSON(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return &UnavailableError{Op: "encode", Err: err}
	}
	return s.Set(key, raw)
}

// SetWithTTL writes an entry that badger expires on its own. Used for daily
// salts and seen-visitor markers so no sweep job is needed.
func (s *BadgerStore) SetWithTTL(key string, value []byte, ttl time.Duration) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return &UnavailableError{Op: "set", Err: err}
	}
	return nil
}

func (s *BadgerStore) Has(key string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &UnavailableError{Op: "has", Err: err}
	}
	return true, nil
}

func (s *BadgerStore) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return &UnavailableError{Op: "delete", Err: err}
	}
	return nil
}

func (s *BadgerStore) List(prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, &UnavailableError{Op: "list", Err: err}
	}
	return keys, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// keyMatchesPrefix reports whether key falls under prefix; kept separate so
// the in-memory store shares the exact same matching rule.
func keyMatchesPrefix(key, prefix string) bool {
	return prefix == "" || strings.HasPrefix(key, prefix)
}
