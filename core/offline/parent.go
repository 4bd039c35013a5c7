package offline

import (
	"github.com/trezcool/masomo-offline/core"
)

// CacheParentData replaces the parent record. Children records share the parent's timestamps.
func (s *Service) CacheParentData(data ParentData) error {
	if data.Children != nil {
		children := make([]ParentChild, len(data.Children))
		for i, child := range data.Children {
			child.ID = core.CleanString(child.ID)
			children[i] = child
		}
		data.Children = children
	}
	childrenData := make(map[string]StudentData, len(data.ChildrenData))
	for id, child := range data.ChildrenData {
		id = core.CleanString(id)
		if _, dup := childrenData[id]; dup {
			return core.NewFieldError("childrenData", ErrDuplicateKey)
		}
		if child.Student.ID == "" {
			child.Student.ID = id
		}
		childrenData[id] = child
	}
	data.ChildrenData = childrenData
	if err := core.Validate.Struct(data); err != nil {
		return err
	}

	now := NowFunc()
	rec := CachedParentRecord{
		Children:     data.Children,
		ChildrenData: make(map[string]CachedStudentRecord, len(data.ChildrenData)),
		Version:      s.opts.SchemaVersion,
	}
	if rec.Children == nil {
		rec.Children = []ParentChild{}
	}
	for id, child := range data.ChildrenData {
		rec.ChildrenData[id] = s.newRecord(child, now)
	}
	rec.LastUpdated = core.Millis(now)
	rec.ExpiresAt = rec.LastUpdated + s.ttlMillis()

	s.mu.Lock()
	written := s.writeJSON(ParentDataKey, rec)
	s.mu.Unlock()

	if written {
		s.notify()
	}
	return nil
}

// GetCachedParentData returns the parent record, or nil when absent, expired or of another schema version.
func (s *Service) GetCachedParentData() *CachedParentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validParent(core.Millis(NowFunc()))
}

func (s *Service) validParent(now int64) *CachedParentRecord {
	rec := s.readParent()
	if rec == nil {
		return nil
	}
	if rec.Version != s.opts.SchemaVersion {
		s.logger.Debug("ignoring parent data of another schema version", map[string]interface{}{
			"stored":   rec.Version,
			"expected": s.opts.SchemaVersion,
		})
		return nil
	}
	if rec.expired(now) {
		return nil
	}
	return rec
}

// GetCachedChildData looks a child up inside the parent record.
func (s *Service) GetCachedChildData(studentID string) *CachedStudentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := core.Millis(NowFunc())
	parent := s.validParent(now)
	if parent == nil {
		return nil
	}
	rec, ok := parent.ChildrenData[core.CleanString(studentID)]
	if !ok || rec.expired(now) {
		return nil
	}
	return &rec
}

func (s *Service) IsParentDataCached() bool {
	return s.GetCachedParentData() != nil
}
