package inmem

import (
	"sync"

	"github.com/trezcool/masomo-offline/core"
)

type Storage struct {
	sync.RWMutex
	table map[string][]byte
}

var _ core.StorageCloser = (*Storage)(nil)

func Open() *Storage {
	return &Storage{table: make(map[string][]byte)}
}

func (s *Storage) GetItem(key string) ([]byte, bool, error) {
	s.RLock()
	defer s.RUnlock()

	val, ok := s.table[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), val...), true, nil
}

func (s *Storage) SetItem(key string, value []byte) error {
	s.Lock()
	defer s.Unlock()
	s.table[key] = append([]byte(nil), value...)
	return nil
}

func (s *Storage) RemoveItem(key string) error {
	s.Lock()
	defer s.Unlock()
	delete(s.table, key)
	return nil
}

// Keys returns the stored keys, in no particular order.
func (s *Storage) Keys() []string {
	s.RLock()
	defer s.RUnlock()

	keys := make([]string, 0, len(s.table))
	for k := range s.table {
		keys = append(keys, k)
	}
	return keys
}

func (s *Storage) Close() error { return nil }
