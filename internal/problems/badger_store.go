package problems

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"

	"github.com/rpattn/afsync/internal/domain"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore keeps markers and archive entries in a badger database, keyed
// by (kind, entity id).
//
// Key layout:
//
//	m/<kind>/<id>                              marker dump
//	a/<kind>/<id>/<source>/<state>/<hash>      label, NUL, archived body
type BadgerStore struct {
	db *badger.DB
}

// BadgerConfig configures OpenBadgerStore.
type BadgerConfig struct {
	Path     string
	InMemory bool
	Logger   *slog.Logger
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadgerStore opens or creates the database.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent problem store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, dirPerm); err != nil {
			return nil, fmt.Errorf("create problem store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open problem store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func markerKey(kind domain.Kind, id int64) []byte {
	return []byte("m/" + string(kind) + "/" + strconv.FormatInt(id, 10))
}

func markerPrefix(kind domain.Kind) []byte {
	return []byte("m/" + string(kind) + "/")
}

func badgerArchiveKey(entry ArchiveEntry) []byte {
	return []byte("a/" + string(entry.Kind) + "/" + entry.EntityID.String() + "/" +
		sanitize(entry.Source, 0) + "/" + string(entry.State) + "/" + entry.Hash)
}

func (s *BadgerStore) ListMarked(_ context.Context, kind domain.Kind) ([]int64, error) {
	prefix := markerPrefix(kind)
	var ids []int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			raw := bytes.TrimPrefix(it.Item().Key(), prefix)
			id, err := strconv.ParseInt(string(raw), 10, 64)
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list markers: %w", err)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *BadgerStore) ReadMarker(_ context.Context, kind domain.Kind, id int64) (string, error) {
	var dump []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(markerKey(kind, id))
		if err != nil {
			return err
		}
		dump, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read marker: %w", err)
	}
	return string(dump), nil
}

func (s *BadgerStore) WriteMarker(_ context.Context, kind domain.Kind, id int64, dump string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(markerKey(kind, id), []byte(dump))
	})
	if err != nil {
		return fmt.Errorf("failed to write marker: %w", err)
	}
	return nil
}

func (s *BadgerStore) AppendMarker(_ context.Context, kind domain.Kind, id int64, dump string) error {
	key := markerKey(kind, id)
	err := s.db.Update(func(txn *badger.Txn) error {
		var current []byte
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			if current, err = item.ValueCopy(nil); err != nil {
				return err
			}
		}
		return txn.Set(key, append(current, dump...))
	})
	if err != nil {
		return fmt.Errorf("failed to append marker: %w", err)
	}
	return nil
}

func (s *BadgerStore) DeleteMarker(_ context.Context, kind domain.Kind, id int64) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(markerKey(kind, id))
	})
	if err != nil {
		return fmt.Errorf("failed to delete marker: %w", err)
	}
	return nil
}

func (s *BadgerStore) Archive(_ context.Context, entry ArchiveEntry) (bool, error) {
	key := badgerArchiveKey(entry)
	written := false
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		value := append([]byte(entry.Label), 0)
		value = append(value, entry.Body...)
		if err := txn.Set(key, value); err != nil {
			return err
		}
		written = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to archive entry: %w", err)
	}
	return written, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
