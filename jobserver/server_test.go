package jobserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testServer(t *testing.T) (*Server, *Pool, context.CancelFunc) {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reg := NewRegistry()
	reg.Register(Process{Name: "noop", Run: noop})
	reg.Register(Process{
		Name:   "slow",
		Params: []Param{{Name: "seconds"}},
		Run: func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			select {
			case <-time.After(5 * time.Second):
				return "done", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	})

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	pool := NewPool(store, reg, 2, logger)
	srv := NewServer(store, reg, pool, logger)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	return srv, pool, cancel
}

func TestPingEndpoint(t *testing.T) {
	srv, _, cancel := testServer(t)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("want 200, got %d", w.Code)
	}
}

func TestExecuteNoopAndPollResult(t *testing.T) {
	srv, _, cancel := testServer(t)
	defer cancel()

	req := httptest.NewRequest(http.MethodPost, "/processes/noop/execution", strings.NewReader("{}"))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("want 201, got %d: %s", w.Code, w.Body.String())
	}
	var accepted struct {
		JobID  string `json:"jobID"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(w.Body).Decode(&accepted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accepted.Status != "accepted" {
		t.Errorf("want accepted, got %s", accepted.Status)
	}

	var finalStatus string
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodGet, "/jobs/"+accepted.JobID, nil)
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)
		var job Job
		json.NewDecoder(w.Body).Decode(&job)
		finalStatus = string(job.Status)
		if finalStatus == "successful" || finalStatus == "failed" {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if finalStatus != "successful" {
		t.Fatalf("want successful, got %s", finalStatus)
	}

	req = httptest.NewRequest(http.MethodGet, "/jobs/"+accepted.JobID+"/results", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("want 200 for results, got %d", w.Code)
	}
}

func TestExecuteUnknownProcess(t *testing.T) {
	srv, _, cancel := testServer(t)
	defer cancel()

	req := httptest.NewRequest(http.MethodPost, "/processes/bogus/execution", strings.NewReader("{}"))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("want 404, got %d", w.Code)
	}
}

func TestExecuteValidationError(t *testing.T) {
	srv, _, cancel := testServer(t)
	defer cancel()

	req := httptest.NewRequest(http.MethodPost, "/processes/slow/execution", strings.NewReader(`{"wrong_key":1}`))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Unexpected []string `json:"unexpected"`
		Missing    []string `json:"missing"`
	}
	json.NewDecoder(w.Body).Decode(&body)
	if len(body.Missing) != 1 || body.Missing[0] != "seconds" {
		t.Errorf("want missing=[seconds], got %v", body.Missing)
	}
	if len(body.Unexpected) != 1 || body.Unexpected[0] != "wrong_key" {
		t.Errorf("want unexpected=[wrong_key], got %v", body.Unexpected)
	}
}

func TestDeleteRunningJobCancels(t *testing.T) {
	srv, _, cancel := testServer(t)
	defer cancel()

	req := httptest.NewRequest(http.MethodPost, "/processes/slow/execution", strings.NewReader(`{"seconds":5}`))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	var accepted struct {
		JobID string `json:"jobID"`
	}
	json.NewDecoder(w.Body).Decode(&accepted)

	// give the worker a moment to dequeue and start.
	time.Sleep(150 * time.Millisecond)

	req = httptest.NewRequest(http.MethodDelete, "/jobs/"+accepted.JobID, nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body.String())
	}

	var final Job
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodGet, "/jobs/"+accepted.JobID, nil)
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)
		json.NewDecoder(w.Body).Decode(&final)
		if final.Status == StatusDismissed {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if final.Status != StatusDismissed {
		t.Errorf("want dismissed, got %s", final.Status)
	}
}

func TestDeleteQueuedJobRemovesBeforeDispatch(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reg := NewRegistry()
	reg.Register(Process{Name: "noop", Run: noop})
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	// pool with zero running workers so the job stays queued.
	pool := NewPool(store, reg, 1, logger)
	srv := NewServer(store, reg, pool, logger)

	req := httptest.NewRequest(http.MethodPost, "/processes/noop/execution", strings.NewReader("{}"))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	var accepted struct {
		JobID string `json:"jobID"`
	}
	json.NewDecoder(w.Body).Decode(&accepted)

	req = httptest.NewRequest(http.MethodDelete, "/jobs/"+accepted.JobID, nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}

	if _, err := store.Dequeue(); err != ErrQueueEmpty {
		t.Errorf("want queue empty after delete, got %v", err)
	}
}
