package offline

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-offline/core"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound     = errors.New("no cached data")
	ErrUnknownField = errors.New("unknown cache field")
	ErrValueType    = errors.New("value does not match the field type")
	ErrDuplicateKey = errors.New("two childrenData keys name the same student")

	// ErrRemoteNotFound is returned by a Fetcher for an entity the school API no longer has.
	ErrRemoteNotFound = errors.New("not found on the school API")
)

type (
	// PendingCounter reports how many offline actions await synchronization.
	PendingCounter interface {
		Count() int
	}

	// Connectivity is the platform online/offline signal.
	Connectivity interface {
		IsOnline() bool
	}

	// Fetcher refetches entities from the school API after a force sync.
	Fetcher interface {
		FetchStudent(ctx context.Context, id string) (StudentData, error)
		FetchParent(ctx context.Context) (ParentData, error)
	}

	Options struct {
		TTL                   time.Duration
		SchemaVersion         string
		RefreshExpiryOnUpdate bool
		StatusCheckInterval   time.Duration
	}

	Deps struct {
		Storage      core.Storage
		Logger       core.Logger
		Queue        PendingCounter // optional
		Connectivity Connectivity   // optional; online when nil
		Fetcher      Fetcher        // optional; ForceSync only invalidates when nil
	}

	// Service is the offline data cache. Construct it once at start up,
	// call Init to start the connectivity check and Cleanup on shut down.
	Service struct {
		opts    Options
		storage core.Storage
		logger  core.Logger
		queue   PendingCounter
		conn    Connectivity
		fetcher Fetcher

		mu        sync.RWMutex // guards storage read-modify-write
		listeners listenerRegistry

		loopMu   sync.Mutex
		stop     chan struct{}
		done     chan struct{}
		watching atomic.Bool // set while the watcher goroutine notifies listeners
	}
)

func OptionsFromConfig(conf *core.Config) Options {
	return Options{
		TTL:                   conf.Cache.TTL,
		SchemaVersion:         conf.Cache.SchemaVersion,
		RefreshExpiryOnUpdate: conf.Cache.RefreshExpiryOnUpdate,
		StatusCheckInterval:   conf.Cache.StatusCheckInterval,
	}
}

func NewService(opts Options, deps Deps) *Service {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.SchemaVersion == "" {
		opts.SchemaVersion = DefaultSchemaVersion
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	return &Service{
		opts:    opts,
		storage: deps.Storage,
		logger:  logger,
		queue:   deps.Queue,
		conn:    deps.Connectivity,
		fetcher: deps.Fetcher,
	}
}

func (s *Service) ttlMillis() int64 {
	return int64(s.opts.TTL / time.Millisecond)
}

func (s *Service) newRecord(data StudentData, now time.Time) CachedStudentRecord {
	nowMs := core.Millis(now)
	return CachedStudentRecord{
		StudentData: data.normalized(),
		LastUpdated: nowMs,
		ExpiresAt:   nowMs + s.ttlMillis(),
	}
}

// normalized makes empty lists encode as [] rather than null.
func (d StudentData) normalized() StudentData {
	if d.Grades == nil {
		d.Grades = []Grade{}
	}
	if d.Attendance == nil {
		d.Attendance = []AttendanceRecord{}
	}
	if d.Schedule == nil {
		d.Schedule = []ScheduleEntry{}
	}
	return d
}

// CacheStudentData stores data as a fresh record keyed by its student id.
// Only validation errors are returned; a failed write is logged and the update is dropped.
func (s *Service) CacheStudentData(data StudentData) error {
	data.Student.ID = core.CleanString(data.Student.ID)
	if err := core.Validate.Struct(data); err != nil {
		return err
	}

	s.mu.Lock()
	cache := s.readStudents()
	cache[data.Student.ID] = s.newRecord(data, NowFunc())
	written := s.writeJSON(StudentDataKey, cache)
	s.mu.Unlock()

	if written {
		s.notify()
	}
	return nil
}

// GetCachedStudentData returns the record for id, or nil when absent or expired.
func (s *Service) GetCachedStudentData(id string) *CachedStudentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.readStudents()[core.CleanString(id)]
	if !ok || rec.expired(core.Millis(NowFunc())) {
		return nil
	}
	return &rec
}

func (s *Service) IsStudentDataCached(id string) bool {
	return s.GetCachedStudentData(id) != nil
}

// CachedStudentIDs lists the students with a valid record.
func (s *Service) CachedStudentIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readStudents().validIDs(core.Millis(NowFunc()))
}

// UpdateStudentData overwrites one field of the record for id, creating a skeleton record if needed.
// value is the field's slice type ([]Grade, []AttendanceRecord, []ScheduleEntry) or its raw JSON.
// lastUpdated is refreshed; expiresAt is kept unless Options.RefreshExpiryOnUpdate is set.
func (s *Service) UpdateStudentData(id string, field Field, value interface{}) error {
	upd := fieldUpdate{StudentID: core.CleanString(id), Field: field}
	if err := core.Validate.Struct(upd); err != nil {
		return err
	}

	probe := StudentData{Student: Student{ID: upd.StudentID}}
	if err := probe.set(field, value); err != nil {
		return err
	}
	if err := core.Validate.Struct(probe); err != nil {
		return err
	}

	s.mu.Lock()
	now := NowFunc()
	nowMs := core.Millis(now)
	cache := s.readStudents()
	rec, ok := cache[upd.StudentID]
	if !ok || rec.expired(nowMs) {
		rec = s.newRecord(StudentData{Student: Student{ID: upd.StudentID}}, now)
	}
	_ = rec.StudentData.set(field, value) // already checked on probe
	rec.StudentData = rec.StudentData.normalized()
	rec.LastUpdated = nowMs
	if s.opts.RefreshExpiryOnUpdate {
		rec.ExpiresAt = nowMs + s.ttlMillis()
	}
	cache[upd.StudentID] = rec
	written := s.writeJSON(StudentDataKey, cache)
	s.mu.Unlock()

	if written {
		s.notify()
	}
	return nil
}

func (d *StudentData) set(field Field, value interface{}) error {
	if raw, ok := value.(json.RawMessage); ok {
		v, err := decodeFieldValue(field, raw)
		if err != nil {
			if err == ErrUnknownField {
				return core.NewFieldError("field", err)
			}
			return core.NewFieldError(string(field), errors.Wrap(err, "decoding value"))
		}
		value = v
	}

	var ok bool
	switch field {
	case FieldGrades:
		d.Grades, ok = value.([]Grade)
	case FieldAttendance:
		d.Attendance, ok = value.([]AttendanceRecord)
	case FieldSchedule:
		d.Schedule, ok = value.([]ScheduleEntry)
	default:
		return core.NewFieldError("field", ErrUnknownField)
	}
	if !ok {
		return core.NewFieldError(string(field), ErrValueType)
	}
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}
