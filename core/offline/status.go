package offline

import (
	"github.com/trezcool/masomo-offline/core"
)

// GetSyncStatus computes the sync status from the stored records, expired ones included. It never fails:
// with nothing cached it reports lastSync 0, an infinite cache age and needsSync.
func (s *Service) GetSyncStatus() SyncStatus {
	now := core.Millis(NowFunc())

	s.mu.RLock()
	lastSync := s.lastSync()
	s.mu.RUnlock()

	status := SyncStatus{
		LastSync:       lastSync,
		PendingActions: s.pendingActions(),
		IsOnline:       s.isOnline(),
		CacheAge:       InfiniteAge,
	}
	if lastSync > 0 {
		status.CacheAge = now - lastSync
		if status.CacheAge < 0 {
			status.CacheAge = 0
		}
	}
	status.NeedsSync = status.CacheAge > s.ttlMillis() || status.PendingActions > 0
	return status
}

// lastSync is the most recent lastUpdated across students, the parent and its children.
// Expired records still count, so that stale data reports needsSync.
// A parent record of another schema version does not count.
func (s *Service) lastSync() int64 {
	var last int64
	for _, rec := range s.readStudents() {
		if rec.LastUpdated > last {
			last = rec.LastUpdated
		}
	}
	if parent := s.readParent(); parent != nil && parent.Version == s.opts.SchemaVersion {
		if parent.LastUpdated > last {
			last = parent.LastUpdated
		}
		for _, rec := range parent.ChildrenData {
			if rec.LastUpdated > last {
				last = rec.LastUpdated
			}
		}
	}
	return last
}

func (s *Service) pendingActions() int {
	if s.queue == nil {
		return 0
	}
	return s.queue.Count()
}

func (s *Service) isOnline() bool {
	if s.conn == nil {
		return true
	}
	return s.conn.IsOnline()
}
