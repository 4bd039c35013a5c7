package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-offline/core"
	"github.com/trezcool/masomo-offline/core/offline"
	"github.com/trezcool/masomo-offline/core/queue"
	"github.com/trezcool/masomo-offline/services/netstatus"
	"github.com/trezcool/masomo-offline/storage/local/inmem"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type fakeRemote struct {
	students map[string]offline.StudentData
	sent     []string
	sendErr  error
}

func (r *fakeRemote) FetchStudent(_ context.Context, id string) (offline.StudentData, error) {
	data, ok := r.students[id]
	if !ok {
		return offline.StudentData{}, errors.New("404 not found")
	}
	return data, nil
}

func (r *fakeRemote) FetchParent(context.Context) (offline.ParentData, error) {
	return offline.ParentData{}, errors.New("no parent")
}

func (r *fakeRemote) Send(_ context.Context, act queue.Action) error {
	if r.sendErr != nil {
		return r.sendErr
	}
	r.sent = append(r.sent, act.Endpoint)
	return nil
}

type testApp struct {
	Server
	svc    *offline.Service
	queue  *queue.Queue
	remote *fakeRemote
}

func newTestApp(t *testing.T, online bool) *testApp {
	t.Helper()
	conf := &core.Config{
		AppName:  "Masomo",
		TestMode: true,
		Server:   core.ServerConfig{DisableReqLogs: true},
	}
	store := inmem.Open()
	q := queue.New(store, nopLogger{})
	remote := &fakeRemote{students: map[string]offline.StudentData{}}
	svc := offline.NewService(
		offline.Options{},
		offline.Deps{
			Storage:      store,
			Logger:       nopLogger{},
			Queue:        q,
			Connectivity: netstatus.Static(online),
			Fetcher:      remote,
		},
	)
	t.Cleanup(svc.Cleanup)

	srv := NewServer(ServerDeps{Conf: conf, Logger: nopLogger{}, Storage: store, Cache: svc, Queue: q, Sender: remote})
	return &testApp{Server: srv, svc: svc, queue: q, remote: remote}
}

func (app *testApp) do(method, path string, body ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if len(body) > 0 {
		buf.WriteString(body[0])
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

const studentJSON = `{
	"student": {"id": "s1", "name": "Amani", "className": "5A"},
	"grades": [{"id": "g1", "subject": "Maths", "score": 14, "maxScore": 20}],
	"attendance": [{"id": "a1", "date": "2026-10-01", "status": "present"}],
	"schedule": []
}`

func TestServer_home(t *testing.T) {
	app := newTestApp(t, true)
	rec := app.do(http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Masomo offline agent!", rec.Body.String())
}

type downStorage struct {
	*inmem.Storage
}

func (downStorage) Ping(context.Context) error { return errors.New("connection refused") }

func TestServer_health(t *testing.T) {
	app := newTestApp(t, true)
	rec := app.do(http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"storage": "ok"}`, rec.Body.String())

	conf := &core.Config{TestMode: true, Server: core.ServerConfig{DisableReqLogs: true}}
	srv := NewServer(ServerDeps{Conf: conf, Logger: nopLogger{}, Storage: downStorage{inmem.Open()}, Cache: app.svc, Queue: app.queue})
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_students(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
		wantData string // JSON; skipped when empty
	}{
		{
			name:     "miss",
			method:   http.MethodGet,
			path:     "/v1/students/s9",
			wantCode: http.StatusNotFound,
			wantData: `{"error": "no cached data"}`,
		},
		{
			name:     "cached",
			method:   http.MethodGet,
			path:     "/v1/students/s1/cached",
			wantCode: http.StatusOK,
			wantData: `{"cached": true}`,
		},
		{
			name:     "not cached",
			method:   http.MethodGet,
			path:     "/v1/students/s9/cached",
			wantCode: http.StatusOK,
			wantData: `{"cached": false}`,
		},
		{
			name:     "list",
			method:   http.MethodGet,
			path:     "/v1/students/",
			wantCode: http.StatusOK,
			wantData: `["s1"]`,
		},
		{
			name:     "missing id",
			method:   http.MethodPut,
			path:     "/v1/students",
			body:     `{"student": {"name": "Amani"}}`,
			wantCode: http.StatusBadRequest,
			wantData: `{"id": "this field is required"}`,
		},
		{
			name:     "malformed body",
			method:   http.MethodPut,
			path:     "/v1/students",
			body:     `{"student": `,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown field",
			method:   http.MethodPatch,
			path:     "/v1/students/s1/marks",
			body:     `[]`,
			wantCode: http.StatusBadRequest,
			wantData: `{"field": "must be one of grades, attendance or schedule"}`,
		},
		{
			name:     "value of another type",
			method:   http.MethodPatch,
			path:     "/v1/students/s1/grades",
			body:     `{"id": "g1"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "empty value",
			method:   http.MethodPatch,
			path:     "/v1/students/s1/grades",
			wantCode: http.StatusBadRequest,
			wantData: `{"grades": "a value is required"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t, true)
			require.Equal(t, http.StatusNoContent, app.do(http.MethodPut, "/v1/students", studentJSON).Code)

			var rec *httptest.ResponseRecorder
			if tt.body != "" {
				rec = app.do(tt.method, tt.path, tt.body)
			} else {
				rec = app.do(tt.method, tt.path)
			}
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantData != "" {
				assert.JSONEq(t, tt.wantData, rec.Body.String())
			}
		})
	}
}

func TestServer_students_roundTrip(t *testing.T) {
	app := newTestApp(t, true)
	require.Equal(t, http.StatusNoContent, app.do(http.MethodPut, "/v1/students", studentJSON).Code)

	rec := app.do(http.MethodGet, "/v1/students/s1")
	require.Equal(t, http.StatusOK, rec.Code)
	var got offline.CachedStudentRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Amani", got.Student.Name)
	assert.Len(t, got.Grades, 1)
	assert.Equal(t, []offline.ScheduleEntry{}, got.Schedule)
	assert.Equal(t, got.LastUpdated+int64(offline.DefaultTTL/1e6), got.ExpiresAt)

	rec = app.do(http.MethodPatch, "/v1/students/s1/attendance", `[{"id": "a2", "date": "2026-10-02", "status": "late"}]`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Attendance, 1)
	assert.Equal(t, "late", got.Attendance[0].Status)
	assert.Len(t, got.Grades, 1, "other fields are kept")

	require.Equal(t, http.StatusNoContent, app.do(http.MethodDelete, "/v1/cache").Code)
	assert.Equal(t, http.StatusNotFound, app.do(http.MethodGet, "/v1/students/s1").Code)
}

func TestServer_parent(t *testing.T) {
	app := newTestApp(t, true)
	assert.Equal(t, http.StatusNotFound, app.do(http.MethodGet, "/v1/parent").Code)

	body := `{
		"children": [{"id": "s1", "name": "Amani"}],
		"childrenData": {"s1": ` + studentJSON + `}
	}`
	require.Equal(t, http.StatusNoContent, app.do(http.MethodPut, "/v1/parent", body).Code)

	rec := app.do(http.MethodGet, "/v1/parent")
	require.Equal(t, http.StatusOK, rec.Code)
	var got offline.CachedParentRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, offline.DefaultSchemaVersion, got.Version)
	assert.Len(t, got.Children, 1)

	assert.Equal(t, http.StatusOK, app.do(http.MethodGet, "/v1/parent/children/s1").Code)
	assert.Equal(t, http.StatusNotFound, app.do(http.MethodGet, "/v1/parent/children/s2").Code)

	rec = app.do(http.MethodPut, "/v1/parent", `{"childrenData": {"s2": `+studentJSON+`}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "childrenData")
}

func TestServer_actions(t *testing.T) {
	app := newTestApp(t, true)
	assert.JSONEq(t, `[]`, app.do(http.MethodGet, "/v1/actions").Body.String())

	rec := app.do(http.MethodPost, "/v1/actions", `{"type": "attendance", "endpoint": "/attendance/a1", "payload": {"status": "late"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var act queue.Action
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &act))
	assert.Equal(t, "POST", act.Method)
	assert.NotEmpty(t, act.ID)

	rec = app.do(http.MethodPost, "/v1/actions", `{"type": "attendance", "endpoint": "attendance"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "endpoint")

	rec = app.do(http.MethodGet, "/v1/sync/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var status offline.SyncStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 1, status.PendingActions)
	assert.True(t, status.NeedsSync)
	assert.True(t, status.IsOnline)

	assert.Equal(t, http.StatusNoContent, app.do(http.MethodDelete, "/v1/actions/"+act.ID).Code)
	assert.Equal(t, http.StatusNotFound, app.do(http.MethodDelete, "/v1/actions/"+act.ID).Code)

	app.do(http.MethodPost, "/v1/actions", `{"type": "grade", "endpoint": "/grades"}`)
	assert.Equal(t, http.StatusNoContent, app.do(http.MethodDelete, "/v1/actions").Code)
	assert.Equal(t, 0, app.queue.Count())
}

func TestServer_sync(t *testing.T) {
	tests := []struct {
		name         string
		online       bool
		sendErr      error
		wantCode     int
		wantSent     []string
		wantCached   bool
		wantReplayed int
	}{
		{
			name:     "offline",
			online:   false,
			wantCode: http.StatusServiceUnavailable,
			// nothing touched
			wantCached: true,
		},
		{
			name:       "replay failure keeps the cache",
			online:     true,
			sendErr:    errors.New("503"),
			wantCode:   http.StatusBadGateway,
			wantCached: true,
		},
		{
			name:         "replays then refetches",
			online:       true,
			wantCode:     http.StatusOK,
			wantSent:     []string{"/grades", "/attendance"},
			wantCached:   true,
			wantReplayed: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t, tt.online)
			app.remote.sendErr = tt.sendErr
			app.remote.students["s1"] = offline.StudentData{Student: offline.Student{ID: "s1", Name: "Amani (fresh)"}}

			require.Equal(t, http.StatusNoContent, app.do(http.MethodPut, "/v1/students", studentJSON).Code)
			for _, e := range []string{"/grades", "/attendance"} {
				_, err := app.queue.Enqueue(queue.NewAction{Type: "x", Endpoint: e})
				require.NoError(t, err)
			}

			rec := app.do(http.MethodPost, "/v1/sync")
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantSent, app.remote.sent)
			assert.Equal(t, tt.wantCached, app.svc.IsStudentDataCached("s1"))
			if tt.wantCode != http.StatusOK {
				return
			}

			var resp syncResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantReplayed, resp.Replayed)
			assert.Equal(t, 0, resp.Status.PendingActions)
			assert.False(t, resp.Status.NeedsSync)
			assert.Equal(t, "Amani (fresh)", app.svc.GetCachedStudentData("s1").Student.Name)
		})
	}
}

func TestServer_sync_fetchFailure(t *testing.T) {
	app := newTestApp(t, true)
	body := `{"student": {"id": "s2"}}`
	require.Equal(t, http.StatusNoContent, app.do(http.MethodPut, "/v1/students", body).Code)

	rec := app.do(http.MethodPost, "/v1/sync")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error": "synchronization failed"}`, rec.Body.String())
}

func Test_appHTTPErrorHandler_serverError(t *testing.T) {
	shutdowns := 0
	handler := newAppHTTPErrorHandler(nopLogger{}, func() { shutdowns++ })
	app := newTestApp(t, true)

	for _, err := range []error{errors.New("boom"), core.NewShutdownError("integrity")} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		ctx := app.Server.(*server).app.NewContext(req, rec)

		handler(errors.Wrap(err, "handling"), ctx)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"error": "Internal Server Error"}`, rec.Body.String())
	}
	assert.Equal(t, 1, shutdowns)
}
