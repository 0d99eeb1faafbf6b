package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hashicorp-forge/lyra/internal/server"
)

// Route binds a method and path to a handler constructor.
type Route struct {
	Method  string
	Path    string
	Tag     string
	Handler func(server.Server) http.Handler
}

// Routes returns every API route.
func Routes() []Route {
	return []Route{
		{http.MethodGet, "/clusters/list", "clusters", ListClustersHandler},
		{http.MethodPost, "/jobs/create", "jobs", CreateJobHandler},
		{http.MethodGet, "/jobs/list", "jobs", ListJobsHandler},
		{http.MethodGet, "/jobs/metadata", "jobs", JobMetadataHandler},
		{http.MethodPost, "/jobs/run", "jobs", RunJobHandler},
		{http.MethodGet, "/jobs/run/info", "jobs", RunInfoHandler},
		{http.MethodGet, "/jobs/run/allruns", "jobs", JobRunsHandler},
		{http.MethodGet, "/workspace/list", "workspace", ListWorkspaceHandler},
		{http.MethodPost, "/workspace/upload", "workspace", UploadNotebookHandler},
		{http.MethodPost, "/message_lyra", "Lyra", MessageLyraHandler},
		{http.MethodGet, "/get_thread", "Lyra", GetThreadHandler},
		{http.MethodGet, "/health", "system", HealthHandler},
	}
}

// NewRouter returns the HTTP handler for srv.
func NewRouter(srv server.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestLogger(srv.Logger))
	r.Use(observeRequests(srv.Metrics))
	r.Use(recoverer(srv.Logger))

	for _, route := range Routes() {
		r.Method(route.Method, route.Path, route.Handler(srv))
	}

	if srv.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", srv.MetricsHandler)
	}

	return r
}
