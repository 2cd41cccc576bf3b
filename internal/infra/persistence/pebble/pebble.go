// Package pebble implements the durable local store behind the session and
// profile cache repositories, on an embedded Pebble database.
package pebble

import (
	"context"
	"log/slog"

	"lens/config"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// Store wraps one opened Pebble database. All repository implementations in
// this package share a single Store.
type Store struct {
	db     *pebble.DB
	logger *slog.Logger
}

// StoreParams defines the dependencies for the store, injected by Fx.
type StoreParams struct {
	fx.In
	fx.Lifecycle

	Config *config.Config
	Logger *slog.Logger
}

// New opens (or creates) the database at the configured path and registers
// its shutdown hook.
func New(params StoreParams) (*Store, error) {
	db, err := pebble.Open(params.Config.Storage.Path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open pebble store at %s", params.Config.Storage.Path)
	}
	params.Logger.Info("opened local store", slog.String("path", params.Config.Storage.Path))

	store := &Store{db: db, logger: params.Logger}

	params.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return store.Close()
		},
	})

	return store, nil
}

// Open opens a store without Fx wiring, for tests and tools.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open pebble store at %s", path)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return errors.WithStack(s.db.Close())
}

// get returns the value for key, or (nil, false) when absent.
func (s *Store) get(key []byte) ([]byte, bool, error) {
	value, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "get %s", key)
	}
	defer closer.Close()

	out := make([]byte, len(value))
	copy(out, value)

	return out, true, nil
}

// set writes the value synchronously: the in-memory state of callers must
// never run ahead of durable state.
func (s *Store) set(key, value []byte) error {
	return errors.Wrapf(s.db.Set(key, value, pebble.Sync), "set %s", key)
}

// delete removes the key synchronously. Deleting an absent key is a no-op.
func (s *Store) delete(key []byte) error {
	return errors.Wrapf(s.db.Delete(key, pebble.Sync), "delete %s", key)
}

// scanPrefix visits every key with the given prefix. The visitor's value
// slice is only valid during the call.
func (s *Store) scanPrefix(prefix []byte, visit func(key, value []byte) error) error {
	upper := append(append([]byte{}, prefix...), 0xFF)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return errors.Wrap(err, "open iterator")
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := visit(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}

	return errors.Wrap(iter.Error(), "scan prefix")
}
