package schoolapi

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-offline/core/offline"
	"github.com/trezcool/masomo-offline/core/queue"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c := New(srv.URL+"/api", srv.Client(), 3, nopLogger{})
	c.initialInterval = time.Millisecond
	return c
}

func TestClient_FetchStudent(t *testing.T) {
	tests := []struct {
		name         string
		statuses     []int // answered in turn, then 200
		wantErr      bool
		wantNotFound bool
		wantCalls    int32
	}{
		{name: "ok", wantCalls: 1},
		{name: "retries server errors", statuses: []int{500, 503}, wantCalls: 3},
		{name: "retries too many requests", statuses: []int{429}, wantCalls: 2},
		{name: "gives up after max tries", statuses: []int{500, 500, 500, 500}, wantErr: true, wantCalls: 3},
		{name: "not found is not retried", statuses: []int{404}, wantErr: true, wantNotFound: true, wantCalls: 1},
		{name: "bad request is not retried", statuses: []int{400}, wantErr: true, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt32(&calls, 1)
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/api/students/s%201/offline", r.URL.EscapedPath())
				if int(n) <= len(tt.statuses) {
					http.Error(w, "nope", tt.statuses[n-1])
					return
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"student":{"id":"s 1","name":"Amani"},"grades":[{"id":"g1","subject":"Maths","score":12}]}`))
			})

			data, err := c.FetchStudent(context.Background(), "s 1")
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantNotFound, errors.Cause(err) == offline.ErrRemoteNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Amani", data.Student.Name)
			require.Len(t, data.Grades, 1)
			assert.Equal(t, 12.0, data.Grades[0].Score)
		})
	}
}

func TestClient_FetchParent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/parent/offline", r.URL.Path)
		_, _ = w.Write([]byte(`{"children":[{"id":"s1","name":"Amani"}],"childrenData":{"s1":{"student":{"id":"s1"}}}}`))
	})

	data, err := c.FetchParent(context.Background())
	require.NoError(t, err)
	require.Len(t, data.Children, 1)
	assert.Contains(t, data.ChildrenData, "s1")
}

func TestClient_FetchParent_malformed(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"children":`))
	})

	_, err := c.FetchParent(context.Background())
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "decode errors are not retried")
}

func TestClient_Send(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/attendance/a1", r.URL.Path)
		assert.Equal(t, "act-1", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := ioutil.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"status":"late"}`, string(body))
		w.WriteHeader(http.StatusNoContent)
	})

	err := c.Send(context.Background(), queue.Action{
		ID:       "act-1",
		Type:     "attendance",
		Method:   http.MethodPatch,
		Endpoint: "/attendance/a1",
		Payload:  []byte(`{"status":"late"}`),
	})
	assert.NoError(t, err)
}

func TestClient_Ping(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/api/health", r.URL.Path)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	assert.Error(t, c.Ping(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "ping is not retried")
}

func TestClient_canceled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.FetchStudent(ctx, "s1")
	assert.Error(t, err)
}
