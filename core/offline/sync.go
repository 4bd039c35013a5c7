package offline

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-offline/core"
)

// ClearOfflineData removes the student and parent blobs and notifies listeners.
func (s *Service) ClearOfflineData() {
	s.mu.Lock()
	s.removeKey(StudentDataKey)
	s.removeKey(ParentDataKey)
	s.mu.Unlock()

	s.notify()
}

// ForceSync invalidates the whole cache, then refetches what was cached through the Fetcher.
// Students the API no longer has are dropped; other fetch errors are returned wrapped
// and nothing is retried here.
// Concurrent calls are not coalesced.
func (s *Service) ForceSync(ctx context.Context) error {
	s.mu.RLock()
	now := core.Millis(NowFunc())
	ids := s.readStudents().validIDs(now)
	parentCached := s.validParent(now) != nil
	s.mu.RUnlock()

	s.ClearOfflineData()
	if s.fetcher == nil {
		return nil
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "force sync")
		}
		data, err := s.fetcher.FetchStudent(ctx, id)
		if errors.Cause(err) == ErrRemoteNotFound {
			s.logger.Info("dropping student unknown to the school API", map[string]interface{}{"id": id})
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "refetching student %s", id)
		}
		if err := s.CacheStudentData(data); err != nil {
			return errors.Wrapf(err, "caching student %s", id)
		}
	}

	if parentCached {
		data, err := s.fetcher.FetchParent(ctx)
		if err != nil {
			return errors.Wrap(err, "refetching parent data")
		}
		if err := s.CacheParentData(data); err != nil {
			return errors.Wrap(err, "caching parent data")
		}
	}
	return nil
}

// Init starts the periodic connectivity check; listeners are notified whenever the online flag flips.
// It is a no-op when already running, without a Connectivity, or with a zero interval.
func (s *Service) Init(ctx context.Context) {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()

	if s.conn == nil || s.opts.StatusCheckInterval <= 0 {
		return
	}
	if s.done != nil {
		select {
		case <-s.done: // stopped by its context, restart
		default:
			return
		}
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.watchConnectivity(ctx, s.opts.StatusCheckInterval, s.stop, s.done)
}

func (s *Service) watchConnectivity(ctx context.Context, interval time.Duration, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := s.isOnline()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			online := s.isOnline()
			if online == last {
				continue
			}
			select {
			case <-stop:
				return
			default:
			}
			last = online
			s.logger.Info("connectivity changed", map[string]interface{}{"online": online})
			s.watching.Store(true)
			s.notify()
			s.watching.Store(false)
		}
	}
}

// Cleanup stops the connectivity check and drops every listener. Safe to call repeatedly,
// including from a listener.
func (s *Service) Cleanup() {
	s.loopMu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	if stop != nil {
		close(stop)
	}
	s.loopMu.Unlock()

	// a listener run by the watcher cannot wait for it; the loop exits right after notifying
	if done != nil && !s.watching.Load() {
		<-done
	}
	s.listeners.clear()
}
