// Package assistanttest provides an in-memory fake of the assistant thread API
// for tests.
package assistanttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp-forge/lyra/pkg/assistant"
)

// DefaultAPIKey is the key accepted by servers created with NewServer.
const DefaultAPIKey = "test-key"

// Server is a fake assistant backend. Runs start "in_progress" and complete
// on the first poll with a reply of "echo: " followed by the last user
// message.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	threads    map[string]*assistant.Thread
	runs       map[string]*assistant.Run
	calls      map[string]int
	failStatus int
	failRun    string
	nextID     int
}

// NewServer starts a fake assistant backend. The server is closed when the
// test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		threads: make(map[string]*assistant.Thread),
		runs:    make(map[string]*assistant.Run),
		calls:   make(map[string]int),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)

	return s
}

// Config returns a client config pointing at s.
func (s *Server) Config() assistant.Config {
	return assistant.Config{
		APIKey:       DefaultAPIKey,
		BaseURL:      s.URL,
		AssistantID:  "asst_test",
		PollInterval: time.Millisecond,
	}
}

// AddThread registers an existing thread holding messages.
func (s *Server) AddThread(id string, messages ...assistant.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[id] = &assistant.Thread{ID: id, Messages: messages}
}

// Thread returns a copy of the stored thread, or nil.
func (s *Server) Thread(id string) *assistant.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return nil
	}
	cp := *t
	cp.Messages = append([]assistant.Message(nil), t.Messages...)
	return &cp
}

// Calls returns how many times the route pattern was requested, e.g.
// "POST /threads".
func (s *Server) Calls(pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[pattern]
}

// FailWith makes every request return status.
func (s *Server) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus = status
}

// FailRuns makes every run end with status, e.g. "failed".
func (s *Server) FailRuns(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRun = status
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	s.handle(mux, "POST /threads", s.handleCreateThread)
	s.handle(mux, "GET /threads/{thread}", s.handleGetThread)
	s.handle(mux, "POST /threads/{thread}/messages", s.handleAddMessage)
	s.handle(mux, "GET /threads/{thread}/messages", s.handleListMessages)
	s.handle(mux, "POST /threads/{thread}/runs", s.handleCreateRun)
	s.handle(mux, "GET /threads/{thread}/runs/{run}", s.handleGetRun)
	return mux
}

func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[pattern]++
		fail := s.failStatus
		s.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+DefaultAPIKey {
			writeError(w, http.StatusUnauthorized, "invalid_api_key", "Incorrect API key provided")
			return
		}
		if fail != 0 {
			writeError(w, fail, "server_error", "injected failure")
			return
		}
		h(w, r)
	})
}

func (s *Server) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s_%d", prefix, s.nextID)
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Metadata map[string]string `json:"metadata"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	defer s.mu.Unlock()
	t := &assistant.Thread{ID: s.id("thread"), Metadata: req.Metadata}
	s.threads[t.ID] = t
	writeJSON(w, t)
}

func (s *Server) thread(w http.ResponseWriter, r *http.Request) (*assistant.Thread, bool) {
	t, ok := s.threads[r.PathValue("thread")]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "No thread found")
	}
	return t, ok
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.thread(w, r)
	if !ok {
		return
	}
	writeJSON(w, assistant.Thread{ID: t.ID, CreatedAt: t.CreatedAt, Metadata: t.Metadata})
}

func (s *Server) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.thread(w, r)
	if !ok {
		return
	}
	m := textMessage(s.id("msg"), req.Role, "", req.Content)
	t.Messages = append(t.Messages, m)
	writeJSON(w, m)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.thread(w, r)
	if !ok {
		return
	}

	runID := r.URL.Query().Get("run_id")
	var out []assistant.Message
	for _, m := range t.Messages {
		if runID == "" || m.RunID == runID {
			out = append(out, m)
		}
	}
	if r.URL.Query().Get("order") == "desc" {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	writeJSON(w, map[string]any{"data": out})
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.thread(w, r)
	if !ok {
		return
	}
	run := &assistant.Run{ID: s.id("run"), ThreadID: t.ID, Status: assistant.RunStatusInProgress}
	s.runs[run.ID] = run
	writeJSON(w, run)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.thread(w, r)
	if !ok {
		return
	}
	run, ok := s.runs[r.PathValue("run")]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "No run found")
		return
	}

	if run.Status == assistant.RunStatusInProgress {
		if s.failRun != "" {
			run.Status = s.failRun
			run.LastError = &assistant.RunError{Code: "server_error", Message: "injected run failure"}
		} else {
			run.Status = assistant.RunStatusCompleted
			var last string
			for _, m := range t.Messages {
				if m.Role == "user" {
					last = m.Text()
				}
			}
			t.Messages = append(t.Messages, textMessage(s.id("msg"), "assistant", run.ID, "echo: "+last))
		}
	}
	writeJSON(w, run)
}

func textMessage(id, role, runID, text string) assistant.Message {
	return assistant.Message{
		ID:    id,
		Role:  role,
		RunID: runID,
		Content: []assistant.Content{
			{Type: "text", Text: &assistant.Text{Value: text}},
		},
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"type": code, "code": code, "message": message},
	})
}
