package eventlog

import (
	"sync"

	pebblestore "github.com/rzbill/rtm/internal/storage/pebble"
)

// Store hands out one Log per stream over a shared database.
type Store struct {
	db *pebblestore.DB

	mu   sync.RWMutex
	logs map[string]*Log
}

func NewStore(db *pebblestore.DB) *Store {
	return &Store{db: db, logs: make(map[string]*Log)}
}

// Open returns the cached Log for stream, loading it on first use.
func (s *Store) Open(stream string) (*Log, error) {
	s.mu.RLock()
	l, ok := s.logs[stream]
	s.mu.RUnlock()
	if ok {
		return l, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.logs[stream]; ok {
		return l, nil
	}
	l, err := OpenLog(s.db, stream)
	if err != nil {
		return nil, err
	}
	s.logs[stream] = l
	return l, nil
}

// DB exposes the underlying database.
func (s *Store) DB() *pebblestore.DB { return s.db }
