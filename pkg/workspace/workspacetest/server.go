// Package workspacetest provides an in-memory fake of the remote workspace API
// for tests.
package workspacetest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/hashicorp-forge/lyra/pkg/workspace"
)

// DefaultToken is the token accepted by servers created with NewServer.
const DefaultToken = "test-token"

// Import is a recorded workspace import call.
type Import struct {
	Path      string
	Format    string
	Language  string
	Content   []byte
	Overwrite bool
}

// Server is a fake workspace API backed by in-memory state. All exported
// methods are safe for concurrent use.
type Server struct {
	*httptest.Server

	token string

	mu          sync.Mutex
	calls       map[string]int
	failures    map[string]int
	clusters    []workspace.Record
	jobs        map[int64]workspace.Record
	runs        map[int64][]workspace.Record
	objects     map[string][]workspace.Record
	createdJobs []workspace.JobSettings
	imports     []Import
	nextJobID   int64
	nextRunID   int64
}

// NewServer starts a fake workspace API that accepts DefaultToken. The server
// is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		token:     DefaultToken,
		calls:     make(map[string]int),
		failures:  make(map[string]int),
		jobs:      make(map[int64]workspace.Record),
		runs:      make(map[int64][]workspace.Record),
		objects:   make(map[string][]workspace.Record),
		nextJobID: 1000,
		nextRunID: 5000,
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)

	return s
}

// Calls returns how many times method+path was requested.
func (s *Server) Calls(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" "+path]
}

// FailWith makes every subsequent request to method+path return status.
func (s *Server) FailWith(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = status
}

// AddCluster registers a cluster record.
func (s *Server) AddCluster(rec workspace.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clusters = append(s.clusters, rec)
}

// AddJob registers a job record under id and returns the id as a string.
func (s *Server) AddJob(id int64, rec workspace.Record) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec["job_id"] = id
	s.jobs[id] = rec
	return strconv.FormatInt(id, 10)
}

// AddRun registers a run record for a job.
func (s *Server) AddRun(jobID int64, rec workspace.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec["job_id"] = jobID
	s.runs[jobID] = append(s.runs[jobID], rec)
}

// AddObject registers a workspace object as a child of dir.
func (s *Server) AddObject(dir string, rec workspace.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[dir] = append(s.objects[dir], rec)
}

// CreatedJobs returns the job definitions submitted so far.
func (s *Server) CreatedJobs() []workspace.JobSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]workspace.JobSettings(nil), s.createdJobs...)
}

// Imports returns the import calls received so far.
func (s *Server) Imports() []Import {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Import(nil), s.imports...)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/2.0/preview/scim/v2/Me", s.handleMe)
	mux.HandleFunc("GET /api/2.0/clusters/list", s.handleListClusters)
	mux.HandleFunc("POST /api/2.1/jobs/create", s.handleCreateJob)
	mux.HandleFunc("GET /api/2.1/jobs/list", s.handleListJobs)
	mux.HandleFunc("GET /api/2.1/jobs/get", s.handleGetJob)
	mux.HandleFunc("POST /api/2.1/jobs/run-now", s.handleRunNow)
	mux.HandleFunc("GET /api/2.1/jobs/runs/get", s.handleGetRun)
	mux.HandleFunc("GET /api/2.1/jobs/runs/list", s.handleListRuns)
	mux.HandleFunc("GET /api/2.0/workspace/list", s.handleListObjects)
	mux.HandleFunc("POST /api/2.0/workspace/import", s.handleImport)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path

		s.mu.Lock()
		s.calls[key]++
		status, fail := s.failures[key]
		s.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+s.token {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid access token")
			return
		}
		if fail {
			writeError(w, status, "INTERNAL_ERROR", "injected failure")
			return
		}

		mux.ServeHTTP(w, r)
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"id":          "42",
		"userName":    "tester@example.com",
		"displayName": "Test User",
	})
}

func (s *Server) handleListClusters(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, map[string]any{"clusters": s.clusters})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var settings workspace.JobSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "MALFORMED_REQUEST", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextJobID++
	id := s.nextJobID
	s.createdJobs = append(s.createdJobs, settings)
	s.jobs[id] = workspace.Record{
		"job_id":   id,
		"settings": settings,
	}

	writeJSON(w, map[string]any{"job_id": id})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	jobs := make([]workspace.Record, 0, len(ids))
	for _, id := range ids {
		jobs = append(jobs, s.jobs[id])
	}
	s.mu.Unlock()

	writePage(w, r, "jobs", jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("job_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PARAMETER_VALUE", "invalid job_id")
		return
	}

	s.mu.Lock()
	job, ok := s.jobs[id]
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "RESOURCE_DOES_NOT_EXIST",
			fmt.Sprintf("Job %d does not exist.", id))
		return
	}
	writeJSON(w, job)
}

func (s *Server) handleRunNow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobID int64 `json:"job_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "MALFORMED_REQUEST", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[req.JobID]; !ok {
		writeError(w, http.StatusNotFound, "RESOURCE_DOES_NOT_EXIST",
			fmt.Sprintf("Job %d does not exist.", req.JobID))
		return
	}

	s.nextRunID++
	number := int64(len(s.runs[req.JobID]) + 1)
	s.runs[req.JobID] = append(s.runs[req.JobID], workspace.Record{
		"job_id":        req.JobID,
		"run_id":        s.nextRunID,
		"number_in_job": number,
		"state":         map[string]any{"life_cycle_state": "PENDING"},
	})

	writeJSON(w, map[string]any{"run_id": s.nextRunID, "number_in_job": number})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("run_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PARAMETER_VALUE", "invalid run_id")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, runs := range s.runs {
		for _, run := range runs {
			if runID, ok := toInt64(run["run_id"]); ok && runID == id {
				writeJSON(w, run)
				return
			}
		}
	}
	writeError(w, http.StatusNotFound, "RESOURCE_DOES_NOT_EXIST",
		fmt.Sprintf("Run %d does not exist.", id))
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("job_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PARAMETER_VALUE", "invalid job_id")
		return
	}

	s.mu.Lock()
	runs := append([]workspace.Record(nil), s.runs[id]...)
	s.mu.Unlock()

	writePage(w, r, "runs", runs)
}

func (s *Server) handleListObjects(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")

	s.mu.Lock()
	objects, ok := s.objects[path]
	s.mu.Unlock()

	if !ok && path != "/" {
		writeError(w, http.StatusNotFound, "RESOURCE_DOES_NOT_EXIST",
			fmt.Sprintf("Path (%s) doesn't exist.", path))
		return
	}
	writeJSON(w, map[string]any{"objects": objects})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path      string `json:"path"`
		Format    string `json:"format"`
		Language  string `json:"language"`
		Content   string `json:"content"`
		Overwrite bool   `json:"overwrite"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "MALFORMED_REQUEST", err.Error())
		return
	}

	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		writeError(w, http.StatusBadRequest, "MALFORMED_REQUEST", "content is not base64")
		return
	}

	s.mu.Lock()
	s.imports = append(s.imports, Import{
		Path:      req.Path,
		Format:    req.Format,
		Language:  req.Language,
		Content:   content,
		Overwrite: req.Overwrite,
	})
	s.mu.Unlock()

	writeJSON(w, map[string]any{})
}

// writePage writes a token-paginated list response. The page token is the
// offset of the next page.
func writePage(w http.ResponseWriter, r *http.Request, key string, records []workspace.Record) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("page_token"))
	if offset > len(records) {
		offset = len(records)
	}

	end := offset + limit
	if end > len(records) {
		end = len(records)
	}

	resp := map[string]any{
		key:        records[offset:end],
		"has_more": end < len(records),
	}
	if end < len(records) {
		resp["next_page_token"] = strconv.Itoa(end)
	}
	writeJSON(w, resp)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error_code": code,
		"message":    message,
	})
}
