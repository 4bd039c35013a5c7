package offline

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

// readStudents loads the student map. Missing, unreadable and malformed blobs all read as empty.
func (s *Service) readStudents() studentCache {
	cache := make(studentCache)
	if !s.readJSON(StudentDataKey, &cache) || cache == nil {
		return make(studentCache)
	}
	return cache
}

// readParent loads the parent record without any expiry or version check.
func (s *Service) readParent() *CachedParentRecord {
	var rec CachedParentRecord
	if !s.readJSON(ParentDataKey, &rec) {
		return nil
	}
	return &rec
}

func (s *Service) readJSON(key string, v interface{}) bool {
	data, ok, err := s.storage.GetItem(key)
	if err != nil {
		s.logger.Error("reading offline data", errors.Wrapf(err, "get %s", key))
		return false
	}
	if !ok || len(data) == 0 {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("discarding malformed offline data", errors.Wrapf(err, "decode %s", key))
		return false
	}
	return true
}

// writeJSON persists v under key. Failures are logged, never returned: the update is lost.
func (s *Service) writeJSON(key string, v interface{}) bool {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encoding offline data", errors.Wrapf(err, "encode %s", key))
		return false
	}
	if err := s.storage.SetItem(key, data); err != nil {
		s.logger.Error("writing offline data", errors.Wrapf(err, "set %s", key))
		return false
	}
	return true
}

func (s *Service) removeKey(key string) {
	if err := s.storage.RemoveItem(key); err != nil {
		s.logger.Error("removing offline data", errors.Wrapf(err, "remove %s", key))
	}
}

// validIDs returns the ids of the non-expired records, sorted.
func (c studentCache) validIDs(now int64) []string {
	ids := make([]string, 0, len(c))
	for id, rec := range c {
		if !rec.expired(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
