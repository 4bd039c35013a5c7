package offline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-offline/storage/local/inmem"
)

type logEntry struct {
	level string
	msg   string
	args  []interface{}
}

type testLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *testLogger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level, msg, args})
}

func (l *testLogger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *testLogger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *testLogger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *testLogger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *testLogger) Fatal(msg string, args ...interface{}) { l.log("fatal", msg, args) }

func (l *testLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

// failingStorage wraps a Storage and fails writes on demand.
type failingStorage struct {
	*inmem.Storage
	failWrites bool
}

func (s *failingStorage) SetItem(key string, value []byte) error {
	if s.failWrites {
		return fmt.Errorf("quota exceeded")
	}
	return s.Storage.SetItem(key, value)
}

type counter int

func (c counter) Count() int { return int(c) }

type flag struct {
	mu     sync.Mutex
	online bool
}

func (f *flag) IsOnline() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

func (f *flag) set(online bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = online
}

type fakeFetcher struct {
	students map[string]StudentData
	parent   ParentData
	gone     map[string]bool
	err      error
	fetched  []string
}

func (f *fakeFetcher) FetchStudent(_ context.Context, id string) (StudentData, error) {
	f.fetched = append(f.fetched, id)
	if f.err != nil {
		return StudentData{}, f.err
	}
	if f.gone[id] {
		return StudentData{}, errors.Wrap(ErrRemoteNotFound, "GET /students/"+id+"/offline: status 404")
	}
	return f.students[id], nil
}

func (f *fakeFetcher) FetchParent(context.Context) (ParentData, error) {
	f.fetched = append(f.fetched, "parent")
	if f.err != nil {
		return ParentData{}, f.err
	}
	return f.parent, nil
}

// setNow freezes NowFunc at now for the duration of the test.
func setNow(t *testing.T, now time.Time) {
	t.Helper()
	NowFunc = func() time.Time { return now }
	t.Cleanup(func() { NowFunc = time.Now })
}

func setup(t *testing.T, deps ...Deps) (*Service, *failingStorage, *testLogger) {
	t.Helper()
	store := &failingStorage{Storage: inmem.Open()}
	logger := &testLogger{}

	var d Deps
	if len(deps) > 0 {
		d = deps[0]
	}
	d.Storage = store
	d.Logger = logger
	svc := NewService(Options{TTL: 24 * time.Hour, SchemaVersion: "1.0"}, d)
	t.Cleanup(svc.Cleanup)
	return svc, store, logger
}

func studentData(id string, grades ...Grade) StudentData {
	return StudentData{
		Student: Student{ID: id, Name: "Student " + id, ClassName: "5A"},
		Grades:  grades,
		Attendance: []AttendanceRecord{
			{ID: "a1", Date: "2026-10-01", Status: "present"},
			{ID: "a2", Date: "2026-10-02", Status: "late", Note: "bus"},
		},
		Schedule: []ScheduleEntry{
			{ID: "c1", Day: "monday", StartTime: "08:00", EndTime: "09:00", Subject: "Maths", Room: "B12"},
		},
	}
}

func grade(id, subject string, score float64) Grade {
	return Grade{ID: id, Subject: subject, Score: score, MaxScore: 20, Term: "T1"}
}
