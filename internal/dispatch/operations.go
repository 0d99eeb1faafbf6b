package dispatch

import (
	"context"
	"strconv"

	"github.com/hashicorp-forge/lyra/pkg/assistant"
	"github.com/hashicorp-forge/lyra/pkg/notebook"
	"github.com/hashicorp-forge/lyra/pkg/projection"
	"github.com/hashicorp-forge/lyra/pkg/workspace"
)

// Assistant is the chat backend used by MessageAssistant and GetThread.
type Assistant interface {
	Send(ctx context.Context, threadID, message string, metadata map[string]string) (*assistant.Reply, error)
	Thread(ctx context.Context, threadID string) (*assistant.Thread, error)
	DefaultThreadID() string
}

// CreatedJob is the payload returned by CreateJob.
type CreatedJob struct {
	JobID string `json:"job_id"`
}

// UploadedNotebook is the payload returned by CreateNotebook.
type UploadedNotebook struct {
	Path     string `json:"path"`
	Language string `json:"language,omitempty"`
}

// ListClusters returns every cluster in the workspace, projected to needs.
func ListClusters(ctx context.Context, c *workspace.Client, needs []string) ([]workspace.Record, error) {
	parsed, err := parseNeeds(ClusterFields, needs)
	if err != nil {
		return nil, err
	}

	clusters, err := c.ListClusters(ctx)
	if err != nil {
		return nil, downstream("list_clusters", err)
	}
	return projection.Records(ClusterFields, clusters, parsed), nil
}

// BuildJobSettings zips a validated JobSpec into a remote job definition.
func BuildJobSettings(spec JobSpec) workspace.JobSettings {
	settings := workspace.JobSettings{
		Name:  spec.JobName,
		Tasks: make([]workspace.Task, len(spec.TaskNames)),
	}
	for i, name := range spec.TaskNames {
		task := workspace.Task{
			TaskKey:           name,
			NotebookTask:      &workspace.NotebookTask{NotebookPath: spec.Paths[i]},
			ExistingClusterID: spec.ClusterIDs[i],
		}
		if dep := spec.Dependents[i]; dep != "" {
			task.DependsOn = []workspace.TaskDependency{{TaskKey: dep}}
		}
		settings.Tasks[i] = task
	}
	return settings
}

// CreateJob validates spec and submits it as a single remote job creation.
func CreateJob(ctx context.Context, c *workspace.Client, spec JobSpec) (*CreatedJob, error) {
	if err := ValidateJobSpec(spec); err != nil {
		return nil, err
	}

	created, err := c.CreateJob(ctx, BuildJobSettings(spec))
	if err != nil {
		return nil, downstream("create_job", err)
	}
	return &CreatedJob{JobID: strconv.FormatInt(created.JobID, 10)}, nil
}

// AllJobs returns every job in the workspace, projected to needs.
func AllJobs(ctx context.Context, c *workspace.Client, needs []string) ([]workspace.Record, error) {
	parsed, err := parseNeeds(JobFields, needs)
	if err != nil {
		return nil, err
	}

	jobs, err := c.ListJobs(ctx)
	if err != nil {
		return nil, downstream("all_jobs", err)
	}
	return projection.Records(JobFields, jobs, parsed), nil
}

// GetJob returns one job, projected to needs.
func GetJob(ctx context.Context, c *workspace.Client, jobID string, needs []string) (workspace.Record, error) {
	parsed, err := parseNeeds(JobFields, needs)
	if err != nil {
		return nil, err
	}

	job, err := c.GetJob(ctx, jobID)
	if err != nil {
		return nil, downstream("get_job", err)
	}
	return JobFields.Record(job, parsed), nil
}

// EnsureJobExists fetches jobID and reports any failure, not only a missing
// job, as a ValidationError.
func EnsureJobExists(ctx context.Context, c *workspace.Client, jobID string) error {
	if _, err := c.GetJob(ctx, jobID); err != nil {
		return &ValidationError{Message: "Job with job_id doesn't exist", Err: err}
	}
	return nil
}

// RunJob triggers a run of jobID. Callers confirm the job exists first.
func RunJob(ctx context.Context, c *workspace.Client, jobID string) (*workspace.TriggeredRun, error) {
	run, err := c.RunNow(ctx, jobID)
	if err != nil {
		return nil, downstream("run_job", err)
	}
	return run, nil
}

// GetRun returns one run, projected to needs.
func GetRun(ctx context.Context, c *workspace.Client, runID string, needs []string) (workspace.Record, error) {
	parsed, err := parseNeeds(RunFields, needs)
	if err != nil {
		return nil, err
	}

	run, err := c.GetRun(ctx, runID)
	if err != nil {
		return nil, downstream("get_run", err)
	}
	return RunFields.Record(run, parsed), nil
}

// GetJobRuns returns every run of jobID, projected to needs.
func GetJobRuns(ctx context.Context, c *workspace.Client, jobID string, needs []string) ([]workspace.Record, error) {
	parsed, err := parseNeeds(RunFields, needs)
	if err != nil {
		return nil, err
	}

	runs, err := c.ListRuns(ctx, jobID)
	if err != nil {
		return nil, downstream("get_job_runs", err)
	}
	return projection.Records(RunFields, runs, parsed), nil
}

// AllFiles returns every workspace object beneath prefix. An empty prefix
// lists from the root.
func AllFiles(ctx context.Context, c *workspace.Client, prefix string) ([]workspace.Record, error) {
	if prefix == "" {
		prefix = "/"
	}

	objects, err := c.ListObjectsRecursive(ctx, prefix)
	if err != nil {
		return nil, downstream("all_files", err)
	}
	return objects, nil
}

// CreateNotebook uploads nb to path, replacing any existing document.
func CreateNotebook(ctx context.Context, c *workspace.Client, path string, nb *notebook.Notebook) (*UploadedNotebook, error) {
	if err := c.Import(ctx, workspace.ImportRequest{
		Path:      path,
		Format:    notebook.Format,
		Content:   nb.Raw,
		Overwrite: true,
	}); err != nil {
		return nil, downstream("create_notebook", err)
	}

	return &UploadedNotebook{Path: path, Language: nb.Language()}, nil
}

// MessageAssistant sends message to the assistant on threadID, or on a new
// thread when threadID is empty. The thread is tagged with the workspace the
// caller authenticated against.
func MessageAssistant(
	ctx context.Context,
	a Assistant,
	c *workspace.Client,
	message, threadID string,
) (*assistant.Reply, error) {
	reply, err := a.Send(ctx, threadID, message, map[string]string{
		"workspace_host": c.Host(),
	})
	if err != nil {
		return nil, downstream("message_assistant", err)
	}
	return reply, nil
}

// GetThread returns the assistant's default thread.
func GetThread(ctx context.Context, a Assistant) (*assistant.Thread, error) {
	threadID := a.DefaultThreadID()
	if threadID == "" {
		return nil, downstream("get_thread", assistant.ErrNoDefaultThread)
	}

	thread, err := a.Thread(ctx, threadID)
	if err != nil {
		return nil, downstream("get_thread", err)
	}
	return thread, nil
}
