package memstore

import (
	"context"
	"sync"

	"github.com/jrsteele09/dentalization-auth/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps session values in process memory. It does not survive a
// restart and is meant for tests and the mock-only CLI mode.
type Store struct {
	values map[store.Key]string
	lock   sync.RWMutex
}

func New() *Store {
	return &Store{values: make(map[store.Key]string)}
}

func (s *Store) Write(_ context.Context, entries map[store.Key]string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	for k, v := range entries {
		s.values[k] = v
	}
	return nil
}

func (s *Store) ReadAll(_ context.Context, keys []store.Key) (map[store.Key]*string, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	out := make(map[store.Key]*string, len(keys))
	for _, k := range keys {
		if v, ok := s.values[k]; ok {
			out[k] = &v
		} else {
			out[k] = nil
		}
	}
	return out, nil
}

func (s *Store) Clear(_ context.Context, keys []store.Key) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, k := range keys {
		delete(s.values, k)
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.values)
}
