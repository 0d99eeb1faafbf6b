package workspace_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/lyra/pkg/workspace"
	"github.com/hashicorp-forge/lyra/pkg/workspace/workspacetest"
)

func newTestClient(t *testing.T, srv *workspacetest.Server, token string) *workspace.Client {
	t.Helper()

	c, err := workspace.NewClient(context.Background(), &workspace.Config{
		Host:    srv.URL,
		Token:   token,
		Timeout: 5 * time.Second,
	}, hclog.NewNullLogger())
	require.NoError(t, err)
	return c
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		config    workspace.Config
		wantError bool
		errorMsg  string
	}{
		{
			name:   "Valid config",
			config: workspace.Config{Host: "https://example.cloud.databricks.com", Token: "t"},
		},
		{
			name:   "Bare hostname",
			config: workspace.Config{Host: "example.cloud.databricks.com", Token: "t"},
		},
		{
			name:      "Missing host",
			config:    workspace.Config{Token: "t"},
			wantError: true,
			errorMsg:  "host is required",
		},
		{
			name:      "Missing token",
			config:    workspace.Config{Host: "https://example.com"},
			wantError: true,
			errorMsg:  "token is required",
		},
		{
			name:      "Invalid scheme",
			config:    workspace.Config{Host: "ftp://example.com", Token: "t"},
			wantError: true,
			errorMsg:  "scheme",
		},
		{
			name: "Negative timeout",
			config: workspace.Config{
				Host: "https://example.com", Token: "t", Timeout: -time.Second,
			},
			wantError: true,
			errorMsg:  "timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_BaseURL(t *testing.T) {
	c := workspace.Config{Host: " adb-123.azuredatabricks.net/ "}
	assert.Equal(t, "https://adb-123.azuredatabricks.net", c.BaseURL())
}

func TestClient_Verify(t *testing.T) {
	srv := workspacetest.NewServer(t)

	t.Run("ValidToken", func(t *testing.T) {
		c := newTestClient(t, srv, workspacetest.DefaultToken)
		u, err := c.Verify(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tester@example.com", u.UserName)
	})

	t.Run("InvalidToken", func(t *testing.T) {
		c := newTestClient(t, srv, "wrong")
		_, err := c.Verify(context.Background())
		require.Error(t, err)
		assert.True(t, workspace.IsUnauthorized(err))
	})

	t.Run("UnreachableHost", func(t *testing.T) {
		c, err := workspace.NewClient(context.Background(), &workspace.Config{
			Host:    "http://127.0.0.1:1",
			Token:   "t",
			Timeout: time.Second,
		}, nil)
		require.NoError(t, err)

		_, err = c.Verify(context.Background())
		require.Error(t, err)
		assert.False(t, workspace.IsUnauthorized(err))
	})
}

func TestClient_ListClusters(t *testing.T) {
	srv := workspacetest.NewServer(t)
	srv.AddCluster(workspace.Record{"cluster_id": "c1", "cluster_name": "shared", "state": "RUNNING"})
	srv.AddCluster(workspace.Record{"cluster_id": "c2", "cluster_name": "etl", "state": "TERMINATED"})

	c := newTestClient(t, srv, workspacetest.DefaultToken)
	clusters, err := c.ListClusters(context.Background())
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Equal(t, "c1", clusters[0]["cluster_id"])
	assert.Equal(t, "etl", clusters[1]["cluster_name"])
}

func TestClient_ListClusters_Empty(t *testing.T) {
	srv := workspacetest.NewServer(t)

	c := newTestClient(t, srv, workspacetest.DefaultToken)
	clusters, err := c.ListClusters(context.Background())
	require.NoError(t, err)
	assert.Empty(t, clusters)
}

func TestClient_CreateAndGetJob(t *testing.T) {
	srv := workspacetest.NewServer(t)
	c := newTestClient(t, srv, workspacetest.DefaultToken)
	ctx := context.Background()

	created, err := c.CreateJob(ctx, workspace.JobSettings{
		Name: "nightly",
		Tasks: []workspace.Task{
			{
				TaskKey:           "extract",
				NotebookTask:      &workspace.NotebookTask{NotebookPath: "/etl/extract"},
				ExistingClusterID: "c1",
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1001), created.JobID)

	job, err := c.GetJob(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, json.Number("1001"), job["job_id"])

	_, err = c.GetJob(ctx, "9")
	require.Error(t, err)
	assert.True(t, workspace.IsNotFound(err))
}

func TestClient_ListJobs_Paginates(t *testing.T) {
	srv := workspacetest.NewServer(t)
	for i := int64(1); i <= 250; i++ {
		srv.AddJob(i, workspace.Record{})
	}

	c := newTestClient(t, srv, workspacetest.DefaultToken)
	jobs, err := c.ListJobs(context.Background())
	require.NoError(t, err)
	assert.Len(t, jobs, 250)
	assert.Equal(t, 3, srv.Calls(http.MethodGet, "/api/2.1/jobs/list"))
}

func TestClient_RunNowAndRuns(t *testing.T) {
	srv := workspacetest.NewServer(t)
	jobID := srv.AddJob(7, workspace.Record{})

	c := newTestClient(t, srv, workspacetest.DefaultToken)
	ctx := context.Background()

	run, err := c.RunNow(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, int64(5001), run.RunID)
	assert.Equal(t, int64(1), run.NumberInJob)

	got, err := c.GetRun(ctx, "5001")
	require.NoError(t, err)
	assert.Equal(t, json.Number("7"), got["job_id"])

	runs, err := c.ListRuns(ctx, jobID)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	_, err = c.RunNow(ctx, "not-a-number")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid job ID")
}

func TestClient_ListObjectsRecursive(t *testing.T) {
	srv := workspacetest.NewServer(t)
	srv.AddObject("/", workspace.Record{"path": "/Users", "object_type": workspace.ObjectTypeDirectory})
	srv.AddObject("/", workspace.Record{"path": "/README", "object_type": workspace.ObjectTypeFile})
	srv.AddObject("/Users", workspace.Record{"path": "/Users/a", "object_type": workspace.ObjectTypeDirectory})
	srv.AddObject("/Users/a", workspace.Record{"path": "/Users/a/nb", "object_type": workspace.ObjectTypeNotebook, "language": "PYTHON"})

	c := newTestClient(t, srv, workspacetest.DefaultToken)
	objects, err := c.ListObjectsRecursive(context.Background(), "/")
	require.NoError(t, err)

	var paths []string
	for _, o := range objects {
		paths = append(paths, o["path"].(string))
	}
	assert.Equal(t, []string{"/Users", "/Users/a", "/Users/a/nb", "/README"}, paths)
}

func TestClient_Import(t *testing.T) {
	srv := workspacetest.NewServer(t)
	c := newTestClient(t, srv, workspacetest.DefaultToken)

	err := c.Import(context.Background(), workspace.ImportRequest{
		Path:      "/Shared/demo",
		Format:    "JUPYTER",
		Content:   []byte(`{"cells":[]}`),
		Overwrite: true,
	})
	require.NoError(t, err)

	imports := srv.Imports()
	require.Len(t, imports, 1)
	assert.Equal(t, "/Shared/demo", imports[0].Path)
	assert.Equal(t, "JUPYTER", imports[0].Format)
	assert.Equal(t, `{"cells":[]}`, string(imports[0].Content))
	assert.True(t, imports[0].Overwrite)
}

func TestClient_ServerErrorIsNotRetried(t *testing.T) {
	srv := workspacetest.NewServer(t)
	srv.FailWith(http.MethodGet, "/api/2.0/clusters/list", http.StatusServiceUnavailable)

	c := newTestClient(t, srv, workspacetest.DefaultToken)
	_, err := c.ListClusters(context.Background())
	require.Error(t, err)

	var apiErr *workspace.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, 1, srv.Calls(http.MethodGet, "/api/2.0/clusters/list"))
}
