package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/lyra/internal/config"
	"github.com/hashicorp-forge/lyra/internal/credentials"
	"github.com/hashicorp-forge/lyra/internal/metrics"
	"github.com/hashicorp-forge/lyra/internal/server"
	"github.com/hashicorp-forge/lyra/pkg/assistant"
	"github.com/hashicorp-forge/lyra/pkg/assistant/assistanttest"
	"github.com/hashicorp-forge/lyra/pkg/workspace"
	"github.com/hashicorp-forge/lyra/pkg/workspace/workspacetest"
)

const pythonNotebook = `{
  "nbformat": 4,
  "nbformat_minor": 5,
  "metadata": {"kernelspec": {"name": "python3", "language": "python"}},
  "cells": [{"cell_type": "code", "source": ["print(1)"], "metadata": {}, "outputs": []}]
}`

type testEnv struct {
	ws        *workspacetest.Server
	assistant *assistanttest.Server
	srv       server.Server
	handler   http.Handler
}

func newTestEnv(t *testing.T, token string) *testEnv {
	t.Helper()

	ws := workspacetest.NewServer(t)
	as := assistanttest.NewServer(t)
	as.AddThread("thread_default")

	acfg := as.Config()
	acfg.DefaultThreadID = "thread_default"
	a, err := assistant.NewClient(acfg)
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/local/demo.ipynb", []byte(pythonNotebook), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/local/broken.ipynb", []byte("print(1)"), 0o644))

	srv := server.Server{
		Config: config.NewConfig(),
		Logger: hclog.NewNullLogger(),
		Resolver: credentials.NewResolver(workspace.Config{
			Host:    ws.URL,
			Token:   token,
			Timeout: 5 * time.Second,
		}, hclog.NewNullLogger()),
		Assistant: a,
		Fs:        fs,
		Metrics:   metrics.Noop{},
	}

	return &testEnv{
		ws:        ws,
		assistant: as,
		srv:       srv,
		handler:   NewRouter(srv),
	}
}

type response struct {
	Code   int
	Status bool            `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func (r response) message(t *testing.T) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(r.Data, &s))
	return s
}

func do(t *testing.T, h http.Handler, method, target string, body any) response {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	resp := response{Code: rec.Code}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return resp
}

func TestRoutes(t *testing.T) {
	env := newTestEnv(t, workspacetest.DefaultToken)

	var registered []string
	err := chi.Walk(env.handler.(chi.Routes), func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		registered = append(registered, method+" "+route)
		return nil
	})
	require.NoError(t, err)

	var want []string
	for _, r := range Routes() {
		want = append(want, r.Method+" "+r.Path)
	}
	sort.Strings(want)
	sort.Strings(registered)
	assert.Equal(t, want, registered)

	tags := map[string]int{}
	for _, r := range Routes() {
		tags[r.Tag]++
	}
	assert.Equal(t, map[string]int{"clusters": 1, "jobs": 6, "workspace": 2, "Lyra": 2, "system": 1}, tags)
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, workspacetest.DefaultToken)

	resp := do(t, env.handler, http.MethodGet, "/jobs/create", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "wrong")

	resp := do(t, env.handler, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, resp.Status)
	assert.Equal(t, "ok", resp.message(t))
}

func TestNotAuthorized(t *testing.T) {
	env := newTestEnv(t, "wrong")

	for _, target := range []string{
		"/clusters/list",
		"/jobs/list",
		"/jobs/metadata?job_id=1",
		"/jobs/run/info?run_id=1",
		"/jobs/run/allruns?job_id=1",
		"/workspace/list",
	} {
		resp := do(t, env.handler, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.Code, target)
		assert.False(t, resp.Status, target)
		assert.Equal(t, "Not Authorized", resp.message(t), target)
	}

	resp := do(t, env.handler, http.MethodPost, "/jobs/create", `{"job_name": "x"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, 0, env.ws.Calls(http.MethodPost, "/api/2.1/jobs/create"))
}

func TestListClusters(t *testing.T) {
	env := newTestEnv(t, workspacetest.DefaultToken)
	env.ws.AddCluster(workspace.Record{"cluster_id": "c1", "cluster_name": "shared", "state": "RUNNING"})
	env.ws.AddCluster(workspace.Record{"cluster_id": "c2", "cluster_name": "etl", "state": "TERMINATED"})

	t.Run("All", func(t *testing.T) {
		resp := do(t, env.handler, http.MethodGet, "/clusters/list", nil)
		require.Equal(t, http.StatusOK, resp.Code)
		assert.True(t, resp.Status)

		var clusters []map[string]any
		require.NoError(t, json.Unmarshal(resp.Data, &clusters))
		require.Len(t, clusters, 2)
		assert.Equal(t, "shared", clusters[0]["cluster_name"])
	})

	t.Run("NeedsID", func(t *testing.T) {
		resp := do(t, env.handler, http.MethodGet, "/clusters/list?needs=id", nil)
		require.Equal(t, http.StatusOK, resp.Code)
		assert.JSONEq(t, `[{"id": "c1"}, {"id": "c2"}]`, string(resp.Data))
	})

	t.Run("RepeatedAndCommaSeparatedNeeds", func(t *testing.T) {
		resp := do(t, env.handler, http.MethodGet, "/clusters/list?needs=id,state&needs=clusterName", nil)
		require.Equal(t, http.StatusOK, resp.Code)
		assert.JSONEq(t, `[
			{"id": "c1", "state": "RUNNING", "cluster_name": "shared"},
			{"id": "c2", "state": "TERMINATED", "cluster_name": "etl"}
		]`, string(resp.Data))
	})

	t.Run("UnknownNeeds", func(t *testing.T) {
		resp := do(t, env.handler, http.MethodGet, "/clusters/list?needs=colour", nil)
		require.Equal(t, http.StatusBadRequest, resp.Code)
		assert.False(t, resp.Status)
		assert.True(t, strings.HasPrefix(resp.message(t), "Bad request, unknown cluster field(s) colour"))
	})

	t.Run("DownstreamFailure", func(t *testing.T) {
		env.ws.FailWith(http.MethodGet, "/api/2.0/clusters/list", http.StatusInternalServerError)
		resp := do(t, env.handler, http.MethodGet, "/clusters/list", nil)
		require.Equal(t, http.StatusInternalServerError, resp.Code)
		assert.Equal(t, "Error Occurred", resp.message(t))
	})
}

func TestCreateJob(t *testing.T) {
	env := newTestEnv(t, workspacetest.DefaultToken)

	t.Run("Created", func(t *testing.T) {
		resp := do(t, env.handler, http.MethodPost, "/jobs/create", map[string]any{
			"job_name":    "nightly",
			"task_names":  []string{"extract", "load"},
			"paths":       []string{"/etl/extract", "/etl/load"},
			"dependents":  []string{"", "extract"},
			"cluster_ids": []string{"c1", "c1"},
		})
		require.Equal(t, http.StatusOK, resp.Code)
		assert.True(t, resp.Status)
		assert.JSONEq(t, `{"job_id": "1001"}`, string(resp.Data))

		jobs := env.ws.CreatedJobs()
		require.Len(t, jobs, 1)
		require.Len(t, jobs[0].Tasks, 2)
		assert.Empty(t, jobs[0].Tasks[0].DependsOn)
		assert.Equal(t, "extract", jobs[0].Tasks[1].DependsOn[0].TaskKey)
	})

	t.Run("NoJobName", func(t *testing.T) {
		resp := do(t, env.handler, http.MethodPost, "/jobs/create", map[string]any{
			"task_names":  []string{"a", "b"},
			"paths":       []string{"/p1", "/p2"},
			"dependents":  []string{"", "a"},
			"cluster_ids": []string{"c1", "c1"},
		})
		require.Equal(t, http.StatusOK, resp.Code)
		assert.True(t, resp.Status)
		assert.JSONEq(t, `{"job_id": "1002"}`, string(resp.Data))

		jobs := env.ws.CreatedJobs()
		require.Len(t, jobs, 2)
		assert.Empty(t, jobs[1].Name)
		assert.Equal(t, "/p2", jobs[1].Tasks[1].NotebookTask.NotebookPath)
	})

	t.Run("MismatchedLengths", func(t *testing.T) {
		calls := env.ws.Calls(http.MethodPost, "/api/2.1/jobs/create")
		resp := do(t, env.handler, http.MethodPost, "/jobs/create", map[string]any{
			"job_name":    "nightly",
			"task_names":  []string{"extract", "load"},
			"paths":       []string{"/etl/extract"},
			"dependents":  []string{"", "extract"},
			"cluster_ids": []string{"c1", "c1"},
		})
		require.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Equal(t, "Bad request, parameters not same length", resp.message(t))
		assert.Equal(t, calls, env.ws.Calls(http.MethodPost, "/api/2.1/jobs/create"))
	})

	t.Run("MalformedBody", func(t *testing.T) {
		resp := do(t, env.handler, http.MethodPost, "/jobs/create", `{"job_name":`)
		require.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Equal(t, "Bad request, invalid request body", resp.message(t))
	})
}

func TestJobs(t *testing.T) {
	env := newTestEnv(t, workspacetest.DefaultToken)
	env.ws.AddJob(42, workspace.Record{"creator_user_name": "a@example.com"})
	env.ws.AddRun(42, workspace.Record{"run_id": 7, "number_in_job": 1})

	t.Run("List", func(t *testing.T) {
		resp := do(t, env.handler, http.MethodGet, "/jobs/list?needs=id", nil)
		require.Equal(t, http.StatusOK, resp.Code)
		assert.JSONEq(t, `[{"id": 42}]`, string(resp.Data))
	})

	t.Run("Metadata", func(t *testing.T) {
		resp := do(t, env.handler, http.MethodGet, "/jobs/metadata?job_id=42&needs=creator_user_name", nil)
		require.Equal(t, http.StatusOK, resp.Code)
		assert.JSONEq(t, `{"creator_user_name": "a@example.com"}`, string(resp.Data))
	})

	t.Run("MetadataMissingJobID", func(t *testing.T) {
		resp := do(t, env.handler, http.MethodGet, "/jobs/metadata", nil)
		require.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Equal(t, "Bad request, job_id is required", resp.message(t))
	})

	t.Run("MetadataUnknownJob", func(t *testing.T) {
		resp := do(t, env.handler, http.MethodGet, "/jobs/metadata?job_id=999", nil)
		require.Equal(t, http.StatusInternalServerError, resp.Code)
		assert.Equal(t, "Error Occurred", resp.message(t))
	})

	t.Run("AllRuns", func(t *testing.T) {
		resp := do(t, env.handler, http.MethodGet, "/jobs/run/allruns?job_id=42&needs=id", nil)
		require.Equal(t, http.StatusOK, resp.Code)
		assert.JSONEq(t, `[{"id": 7}]`, string(resp.Data))
	})

	t.Run("RunInfo", func(t *testing.T) {
		resp := do(t, env.handler, http.MethodGet, "/jobs/run/info?run_id=7&needs=number_in_job", nil)
		require.Equal(t, http.StatusOK, resp.Code)
		assert.JSONEq(t, `{"number_in_job": 1}`, string(resp.Data))
	})
}

func TestRunJob(t *testing.T) {
	env := newTestEnv(t, workspacetest.DefaultToken)
	env.ws.AddJob(42, workspace.Record{})

	t.Run("Existing", func(t *testing.T) {
		resp := do(t, env.handler, http.MethodPost, "/jobs/run?job_id=42", nil)
		require.Equal(t, http.StatusOK, resp.Code)
		assert.JSONEq(t, `{"run_id": 5001, "number_in_job": 1}`, string(resp.Data))
	})

	t.Run("Nonexistent", func(t *testing.T) {
		calls := env.ws.Calls(http.MethodPost, "/api/2.1/jobs/run-now")
		resp := do(t, env.handler, http.MethodPost, "/jobs/run?job_id=999", nil)
		require.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Equal(t, "Bad request, Job with job_id doesn't exist", resp.message(t))
		assert.Equal(t, calls, env.ws.Calls(http.MethodPost, "/api/2.1/jobs/run-now"))
	})
}

func TestJobRuns_Nonexistent(t *testing.T) {
	env := newTestEnv(t, workspacetest.DefaultToken)

	resp := do(t, env.handler, http.MethodGet, "/jobs/run/allruns?job_id=999", nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "Bad request, Job with job_id doesn't exist", resp.message(t))
	assert.Equal(t, 0, env.ws.Calls(http.MethodGet, "/api/2.1/jobs/runs/list"))
}

func TestWorkspace(t *testing.T) {
	env := newTestEnv(t, workspacetest.DefaultToken)
	env.ws.AddObject("/", workspace.Record{"path": "/Shared", "object_type": workspace.ObjectTypeDirectory})
	env.ws.AddObject("/Shared", workspace.Record{"path": "/Shared/nb", "object_type": workspace.ObjectTypeNotebook})

	t.Run("ListDefaultPrefix", func(t *testing.T) {
		resp := do(t, env.handler, http.MethodGet, "/workspace/list", nil)
		require.Equal(t, http.StatusOK, resp.Code)

		var objects []map[string]any
		require.NoError(t, json.Unmarshal(resp.Data, &objects))
		assert.Len(t, objects, 2)
	})

	t.Run("ListPrefix", func(t *testing.T) {
		resp := do(t, env.handler, http.MethodGet, "/workspace/list?prefix=/Shared", nil)
		require.Equal(t, http.StatusOK, resp.Code)
		assert.JSONEq(t, `[{"path": "/Shared/nb", "object_type": "NOTEBOOK"}]`, string(resp.Data))
	})

	t.Run("Upload", func(t *testing.T) {
		resp := do(t, env.handler, http.MethodPost, "/workspace/upload", map[string]string{
			"local_path":  "/local/demo.ipynb",
			"upload_path": "/Shared/demo",
		})
		require.Equal(t, http.StatusOK, resp.Code)
		assert.JSONEq(t, `{"path": "/Shared/demo", "language": "PYTHON"}`, string(resp.Data))

		imports := env.ws.Imports()
		require.Len(t, imports, 1)
		assert.Equal(t, pythonNotebook, string(imports[0].Content))
	})

	t.Run("UploadMissingFile", func(t *testing.T) {
		resp := do(t, env.handler, http.MethodPost, "/workspace/upload", map[string]string{
			"local_path":  "/local/missing.ipynb",
			"upload_path": "/Shared/demo",
		})
		require.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Equal(t, "File doesn't exist", resp.message(t))
	})

	t.Run("UploadInvalidNotebook", func(t *testing.T) {
		resp := do(t, env.handler, http.MethodPost, "/workspace/upload", map[string]string{
			"local_path":  "/local/broken.ipynb",
			"upload_path": "/Shared/broken",
		})
		require.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Contains(t, resp.message(t), "error parsing notebook JSON")
	})
}

func TestMessageLyra(t *testing.T) {
	env := newTestEnv(t, workspacetest.DefaultToken)

	t.Run("DefaultWorkspace", func(t *testing.T) {
		resp := do(t, env.handler, http.MethodPost, "/message_lyra", map[string]any{
			"message": "hello",
		})
		require.Equal(t, http.StatusOK, resp.Code)

		var reply assistant.Reply
		require.NoError(t, json.Unmarshal(resp.Data, &reply))
		assert.Equal(t, "echo: hello", reply.Message)
		assert.NotEmpty(t, reply.ThreadID)
	})

	t.Run("ExistingThread", func(t *testing.T) {
		resp := do(t, env.handler, http.MethodPost, "/message_lyra", map[string]any{
			"message":   "again",
			"thread_id": "thread_default",
		})
		require.Equal(t, http.StatusOK, resp.Code)

		var reply assistant.Reply
		require.NoError(t, json.Unmarshal(resp.Data, &reply))
		assert.Equal(t, "thread_default", reply.ThreadID)
	})

	t.Run("ConsumerCredentials", func(t *testing.T) {
		resp := do(t, env.handler, http.MethodPost, "/message_lyra", map[string]any{
			"message":  "hello",
			"consumer": true,
			"host":     env.ws.URL,
			"token":    workspacetest.DefaultToken,
		})
		require.Equal(t, http.StatusOK, resp.Code)
	})

	t.Run("ConsumerBadToken", func(t *testing.T) {
		resp := do(t, env.handler, http.MethodPost, "/message_lyra", map[string]any{
			"message":  "hello",
			"consumer": true,
			"host":     env.ws.URL,
			"token":    "wrong",
		})
		require.Equal(t, http.StatusUnauthorized, resp.Code)
		assert.Equal(t, "Not Authorized", resp.message(t))
	})

	t.Run("ConsumerMissingToken", func(t *testing.T) {
		resp := do(t, env.handler, http.MethodPost, "/message_lyra", map[string]any{
			"message":  "hello",
			"consumer": true,
			"host":     env.ws.URL,
		})
		require.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Contains(t, resp.message(t), "token: cannot be blank")
	})

	t.Run("AssistantFailure", func(t *testing.T) {
		env.assistant.FailWith(http.StatusBadGateway)
		defer env.assistant.FailWith(0)

		resp := do(t, env.handler, http.MethodPost, "/message_lyra", map[string]any{
			"message": "hello",
		})
		require.Equal(t, http.StatusInternalServerError, resp.Code)
		assert.Equal(t, "Error Occurred", resp.message(t))
	})
}

func TestGetThread(t *testing.T) {
	env := newTestEnv(t, "wrong")

	resp := do(t, env.handler, http.MethodGet, "/get_thread", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var thread assistant.Thread
	require.NoError(t, json.Unmarshal(resp.Data, &thread))
	assert.Equal(t, "thread_default", thread.ID)
}

func TestAssistantDisabled(t *testing.T) {
	env := newTestEnv(t, workspacetest.DefaultToken)
	env.srv.Assistant = nil
	h := NewRouter(env.srv)

	resp := do(t, h, http.MethodGet, "/get_thread", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)

	resp = do(t, h, http.MethodPost, "/message_lyra", map[string]any{"message": "hello"})
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestPanicRecovered(t *testing.T) {
	env := newTestEnv(t, workspacetest.DefaultToken)
	env.srv.Fs = nil
	h := NewRouter(env.srv)

	resp := do(t, h, http.MethodPost, "/workspace/upload", map[string]any{
		"local_path":  "/local/demo.ipynb",
		"upload_path": "/Shared/demo",
	})
	require.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.False(t, resp.Status)
	assert.Equal(t, "Error Occurred", resp.message(t))

	// The server keeps serving.
	resp = do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, workspacetest.DefaultToken)

	reg := prometheus.NewRegistry()
	env.srv.Metrics = metrics.NewProm("lyra", reg)
	env.srv.MetricsHandler = metrics.Handler(reg)
	h := NewRouter(env.srv)

	do(t, h, http.MethodGet, "/health", nil)
	do(t, h, http.MethodPost, "/jobs/run?job_id=1", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `lyra_http_requests_total{method="GET",route="/health",status="200"} 1`)
	assert.Contains(t, body, `lyra_http_requests_total{method="GET",route="/jobs/run",status="400"} 1`)
	assert.Contains(t, body, `lyra_operations_total{operation="run_job",outcome="invalid"} 1`)
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, workspacetest.DefaultToken)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get(RequestIDHeader))
}
