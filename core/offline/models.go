package offline

import (
	"encoding/json"
	"math"
	"time"
)

// Storage keys. The Service is the only writer of these keys.
const (
	StudentDataKey = "offline_student_data"
	ParentDataKey  = "offline_parent_data"
)

const (
	DefaultTTL           = 24 * time.Hour
	DefaultSchemaVersion = "1.0"

	// InfiniteAge is the cache age reported when nothing is cached.
	InfiniteAge int64 = math.MaxInt64
)

// Field names a partially updatable part of a CachedStudentRecord.
type Field string

const (
	FieldGrades     Field = "grades"
	FieldAttendance Field = "attendance"
	FieldSchedule   Field = "schedule"
)

var Fields = []Field{FieldGrades, FieldAttendance, FieldSchedule}

type (
	Student struct {
		ID        string `json:"id" validate:"required,idchars"`
		Name      string `json:"name,omitempty"`
		ClassName string `json:"className,omitempty"`
		Email     string `json:"email,omitempty" validate:"omitempty,email"`
	}

	Grade struct {
		ID       string  `json:"id"`
		Subject  string  `json:"subject" validate:"notblank"`
		Score    float64 `json:"score" validate:"gte=0"`
		MaxScore float64 `json:"maxScore,omitempty" validate:"omitempty,gtefield=Score"`
		Term     string  `json:"term,omitempty"`
		Date     string  `json:"date,omitempty"`
	}

	AttendanceRecord struct {
		ID     string `json:"id"`
		Date   string `json:"date" validate:"notblank"`
		Status string `json:"status" validate:"oneof=present absent late excused"`
		Note   string `json:"note,omitempty"`
	}

	ScheduleEntry struct {
		ID        string `json:"id"`
		Day       string `json:"day" validate:"notblank"`
		StartTime string `json:"startTime"`
		EndTime   string `json:"endTime"`
		Subject   string `json:"subject" validate:"notblank"`
		Teacher   string `json:"teacher,omitempty"`
		Room      string `json:"room,omitempty"`
	}

	// StudentData is what the school API returns for one student.
	StudentData struct {
		Student    Student            `json:"student"`
		Grades     []Grade            `json:"grades" validate:"dive"`
		Attendance []AttendanceRecord `json:"attendance" validate:"dive"`
		Schedule   []ScheduleEntry    `json:"schedule" validate:"dive"`
	}

	// CachedStudentRecord is a StudentData stamped with epoch-ms cache times.
	CachedStudentRecord struct {
		StudentData
		LastUpdated int64 `json:"lastUpdated"`
		ExpiresAt   int64 `json:"expiresAt"`
	}

	ParentChild struct {
		ID           string `json:"id" validate:"required,idchars"`
		Name         string `json:"name"`
		ClassName    string `json:"className,omitempty"`
		Relationship string `json:"relationship,omitempty"`
	}

	// ParentData is what the school API returns for a parent account.
	ParentData struct {
		Children     []ParentChild          `json:"children" validate:"dive"`
		ChildrenData map[string]StudentData `json:"childrenData" validate:"dive"`
	}

	CachedParentRecord struct {
		Children     []ParentChild                  `json:"children"`
		ChildrenData map[string]CachedStudentRecord `json:"childrenData"`
		LastUpdated  int64                          `json:"lastUpdated"`
		ExpiresAt    int64                          `json:"expiresAt"`
		Version      string                         `json:"version"`
	}

	// SyncStatus is derived on every query, never persisted.
	SyncStatus struct {
		LastSync       int64 `json:"lastSync"`
		PendingActions int   `json:"pendingActions"`
		IsOnline       bool  `json:"isOnline"`
		CacheAge       int64 `json:"cacheAge"` // ms; InfiniteAge when nothing is cached
		NeedsSync      bool  `json:"needsSync"`
	}

	studentCache map[string]CachedStudentRecord
)

// expired reports whether the record is a cache miss at now (epoch ms).
func (r CachedStudentRecord) expired(now int64) bool {
	return r.ExpiresAt <= now
}

func (r CachedParentRecord) expired(now int64) bool {
	return r.ExpiresAt <= now
}

// IsValid reports whether f is a known Field.
func (f Field) IsValid() bool {
	for _, fld := range Fields {
		if f == fld {
			return true
		}
	}
	return false
}

// decodeFieldValue converts raw JSON into the slice type of the field.
func decodeFieldValue(field Field, raw json.RawMessage) (interface{}, error) {
	switch field {
	case FieldGrades:
		var v []Grade
		err := json.Unmarshal(raw, &v)
		return v, err
	case FieldAttendance:
		var v []AttendanceRecord
		err := json.Unmarshal(raw, &v)
		return v, err
	case FieldSchedule:
		var v []ScheduleEntry
		err := json.Unmarshal(raw, &v)
		return v, err
	default:
		return nil, ErrUnknownField
	}
}

// CacheAgeDuration converts the status cache age for display.
func (s SyncStatus) CacheAgeDuration() time.Duration {
	if s.CacheAge == InfiniteAge || s.CacheAge > int64(math.MaxInt64/int64(time.Millisecond)) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(s.CacheAge) * time.Millisecond
}
