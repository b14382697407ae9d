package jobserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Server is the chi-routed HTTP surface of spec.md §4.8.
type Server struct {
	store    *Store
	registry *Registry
	pool     *Pool
	logger   *logrus.Logger
	router   chi.Router
}

// NewServer wires the endpoint table spec.md §4.8 lists.
func NewServer(store *Store, registry *Registry, pool *Pool, logger *logrus.Logger) *Server {
	s := &Server{store: store, registry: registry, pool: pool, logger: logger}
	r := chi.NewRouter()
	r.Get("/ping", s.handlePing)
	r.Post("/processes/{name}/execution", s.handleExecute)
	r.Get("/jobs", s.handleListJobs)
	r.Get("/jobs/{id}", s.handleGetJob)
	r.Get("/jobs/{id}/logs", s.handleJobLogs)
	r.Get("/jobs/{id}/results", s.handleJobResults)
	r.Get("/jobs/{id}/metadata", s.handleJobMetadata)
	r.Delete("/jobs/{id}", s.handleDeleteJob)
	s.router = r
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := s.registry.Get(name); !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown process " + name})
		return
	}

	var body map[string]interface{}
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err.Error() != "EOF" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
			return
		}
	}
	if body == nil {
		body = map[string]interface{}{}
	}

	verr, _ := s.registry.Validate(name, body)
	if verr != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"unexpected": verr.Unexpected,
			"missing":    verr.Missing,
		})
		return
	}

	job := &Job{
		ID:        uuid.NewString(),
		Process:   name,
		Params:    body,
		Status:    StatusAccepted,
		Submitted: time.Now(),
	}
	if err := s.store.Enqueue(job); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.logger.WithFields(logrus.Fields{"job_id": job.ID, "op": name}).Info("job accepted")
	writeJSON(w, http.StatusCreated, map[string]interface{}{"jobID": job.ID, "status": job.Status})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.List()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	type summary struct {
		JobID  string `json:"jobID"`
		Status Status `json:"status"`
		Op     string `json:"processID"`
	}
	out := make([]summary, len(jobs))
	for i, j := range jobs {
		out[i] = summary{JobID: j.ID, Status: j.Status, Op: j.Process}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getJobOr404(w http.ResponseWriter, r *http.Request) (*Job, bool) {
	id := chi.URLParam(r, "id")
	job, ok, err := s.store.Get(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return nil, false
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return nil, false
	}
	return job, true
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.getJobOr404(w, r)
	if !ok {
		return
	}
	tb := r.URL.Query().Get("tb")
	if tb != "" && tb != "true" && tb != "false" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tb must be true or false"})
		return
	}
	out := *job
	if tb != "true" {
		out.Traceback = ""
	}
	out.Result = nil
	out.Logs = nil
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleJobLogs(w http.ResponseWriter, r *http.Request) {
	job, ok := s.getJobOr404(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": job.Logs})
}

func (s *Server) handleJobResults(w http.ResponseWriter, r *http.Request) {
	job, ok := s.getJobOr404(w, r)
	if !ok {
		return
	}
	if job.Status != StatusSuccessful {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "job has no results yet", "status": string(job.Status)})
		return
	}
	writeJSON(w, http.StatusOK, job.Result)
}

func (s *Server) handleJobMetadata(w http.ResponseWriter, r *http.Request) {
	job, ok := s.getJobOr404(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobID":     job.ID,
		"processID": job.Process,
		"params":    job.Params,
		"submitted": job.Submitted,
	})
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok, err := s.store.Get(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}

	switch job.Status {
	case StatusAccepted:
		removed, err := s.store.RemoveQueued(id)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if !removed {
			// already picked up by a worker between Get and RemoveQueued.
			s.pool.Cancel(id)
		}
	case StatusRunning:
		if !s.pool.Cancel(id) {
			// the job finished between Get and Cancel; report its real
			// outcome instead of claiming it was dismissed.
			if final, ok, _ := s.store.Get(id); ok {
				writeJSON(w, http.StatusOK, map[string]string{"jobID": id, "status": string(final.Status)})
				return
			}
		}
	default:
		writeJSON(w, http.StatusConflict, map[string]string{"error": "job already finished"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"jobID": id, "status": string(StatusDismissed)})
}
