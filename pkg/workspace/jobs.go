package workspace

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// listPageSize is the page size requested from paginated list endpoints.
const listPageSize = 100

// JobSettings is the definition submitted when creating a job.
type JobSettings struct {
	Name  string `json:"name"`
	Tasks []Task `json:"tasks"`
}

// Task is a single notebook task within a job.
type Task struct {
	TaskKey           string           `json:"task_key"`
	NotebookTask      *NotebookTask    `json:"notebook_task,omitempty"`
	ExistingClusterID string           `json:"existing_cluster_id,omitempty"`
	DependsOn         []TaskDependency `json:"depends_on,omitempty"`
}

// NotebookTask runs the notebook at NotebookPath.
type NotebookTask struct {
	NotebookPath string `json:"notebook_path"`
}

// TaskDependency names a task that must finish first.
type TaskDependency struct {
	TaskKey string `json:"task_key"`
}

// CreatedJob is the response to a job creation.
type CreatedJob struct {
	JobID int64 `mapstructure:"job_id" json:"job_id"`
}

// TriggeredRun is the response to a run-now request.
type TriggeredRun struct {
	RunID       int64 `mapstructure:"run_id" json:"run_id"`
	NumberInJob int64 `mapstructure:"number_in_job" json:"number_in_job"`
}

// CreateJob submits a new job definition.
func (c *Client) CreateJob(ctx context.Context, settings JobSettings) (*CreatedJob, error) {
	var resp Record
	if err := c.doRequest(
		ctx, http.MethodPost, "/api/2.1/jobs/create", nil, settings, &resp,
	); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	var job CreatedJob
	if err := resp.Decode(&job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns every job in the workspace, following pagination.
func (c *Client) ListJobs(ctx context.Context) ([]Record, error) {
	jobs, err := c.listPaged(ctx, "/api/2.1/jobs/list", url.Values{}, "jobs")
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// GetJob returns the full metadata of one job.
func (c *Client) GetJob(ctx context.Context, jobID string) (Record, error) {
	var resp Record
	if err := c.doRequest(
		ctx, http.MethodGet, "/api/2.1/jobs/get",
		url.Values{"job_id": {jobID}}, nil, &resp,
	); err != nil {
		return nil, fmt.Errorf("failed to get job %q: %w", jobID, err)
	}
	return resp, nil
}

// RunNow triggers a run of an existing job.
func (c *Client) RunNow(ctx context.Context, jobID string) (*TriggeredRun, error) {
	id, err := strconv.ParseInt(jobID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid job ID %q: %w", jobID, err)
	}

	var resp Record
	if err := c.doRequest(
		ctx, http.MethodPost, "/api/2.1/jobs/run-now", nil,
		map[string]int64{"job_id": id}, &resp,
	); err != nil {
		return nil, fmt.Errorf("failed to run job %q: %w", jobID, err)
	}

	var run TriggeredRun
	if err := resp.Decode(&run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRun returns the metadata of a single run.
func (c *Client) GetRun(ctx context.Context, runID string) (Record, error) {
	var resp Record
	if err := c.doRequest(
		ctx, http.MethodGet, "/api/2.1/jobs/runs/get",
		url.Values{"run_id": {runID}}, nil, &resp,
	); err != nil {
		return nil, fmt.Errorf("failed to get run %q: %w", runID, err)
	}
	return resp, nil
}

// ListRuns returns every run of a job, following pagination.
func (c *Client) ListRuns(ctx context.Context, jobID string) ([]Record, error) {
	runs, err := c.listPaged(
		ctx, "/api/2.1/jobs/runs/list", url.Values{"job_id": {jobID}}, "runs")
	if err != nil {
		return nil, fmt.Errorf("failed to list runs of job %q: %w", jobID, err)
	}
	return runs, nil
}

// listPaged collects the records under key from every page of a
// token-paginated list endpoint.
func (c *Client) listPaged(
	ctx context.Context, path string, params url.Values, key string,
) ([]Record, error) {
	params.Set("limit", strconv.Itoa(listPageSize))

	all := []Record{}
	for {
		var resp Record
		if err := c.doRequest(ctx, http.MethodGet, path, params, nil, &resp); err != nil {
			return nil, err
		}

		records, err := recordsFromField(resp, key)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)

		next, _ := resp["next_page_token"].(string)
		hasMore, _ := resp["has_more"].(bool)
		if !hasMore || next == "" {
			return all, nil
		}
		params.Set("page_token", next)
	}
}
