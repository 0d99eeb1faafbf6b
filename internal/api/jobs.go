package api

import (
	"net/http"

	"github.com/hashicorp-forge/lyra/internal/dispatch"
	"github.com/hashicorp-forge/lyra/internal/server"
)

// CreateJobHandler creates a job from a dispatch.JobSpec body.
func CreateJobHandler(srv server.Server) http.Handler {
	return operation(srv, "create_job", func(r *http.Request) (any, error) {
		c, err := srv.Resolver.Resolve(r.Context(), nil)
		if err != nil {
			return nil, err
		}

		var spec dispatch.JobSpec
		if err := decodeBody(r, &spec); err != nil {
			return nil, err
		}
		return dispatch.CreateJob(r.Context(), c, spec)
	})
}

// ListJobsHandler lists every job.
func ListJobsHandler(srv server.Server) http.Handler {
	return operation(srv, "all_jobs", func(r *http.Request) (any, error) {
		c, err := srv.Resolver.Resolve(r.Context(), nil)
		if err != nil {
			return nil, err
		}
		return dispatch.AllJobs(r.Context(), c, needsParam(r))
	})
}

// JobMetadataHandler returns one job.
func JobMetadataHandler(srv server.Server) http.Handler {
	return operation(srv, "get_job", func(r *http.Request) (any, error) {
		c, err := srv.Resolver.Resolve(r.Context(), nil)
		if err != nil {
			return nil, err
		}

		jobID, err := requiredParam(r, "job_id")
		if err != nil {
			return nil, err
		}
		return dispatch.GetJob(r.Context(), c, jobID, needsParam(r))
	})
}

// RunJobHandler triggers a run of an existing job.
func RunJobHandler(srv server.Server) http.Handler {
	return operation(srv, "run_job", func(r *http.Request) (any, error) {
		c, err := srv.Resolver.Resolve(r.Context(), nil)
		if err != nil {
			return nil, err
		}

		jobID, err := requiredParam(r, "job_id")
		if err != nil {
			return nil, err
		}
		if err := dispatch.EnsureJobExists(r.Context(), c, jobID); err != nil {
			return nil, err
		}
		return dispatch.RunJob(r.Context(), c, jobID)
	})
}

// RunInfoHandler returns one run.
func RunInfoHandler(srv server.Server) http.Handler {
	return operation(srv, "get_run", func(r *http.Request) (any, error) {
		c, err := srv.Resolver.Resolve(r.Context(), nil)
		if err != nil {
			return nil, err
		}

		runID, err := requiredParam(r, "run_id")
		if err != nil {
			return nil, err
		}
		return dispatch.GetRun(r.Context(), c, runID, needsParam(r))
	})
}

// JobRunsHandler returns every run of an existing job.
func JobRunsHandler(srv server.Server) http.Handler {
	return operation(srv, "get_job_runs", func(r *http.Request) (any, error) {
		c, err := srv.Resolver.Resolve(r.Context(), nil)
		if err != nil {
			return nil, err
		}

		jobID, err := requiredParam(r, "job_id")
		if err != nil {
			return nil, err
		}
		if err := dispatch.EnsureJobExists(r.Context(), c, jobID); err != nil {
			return nil, err
		}
		return dispatch.GetJobRuns(r.Context(), c, jobID, needsParam(r))
	})
}
