package dispatch

import "github.com/hashicorp-forge/lyra/pkg/projection"

// Field sets for the records each operation returns. "id" is accepted as an
// alias for the record's primary id.
var (
	ClusterFields = projection.NewFieldSet("cluster",
		[]string{
			"autotermination_minutes",
			"cluster_id",
			"cluster_name",
			"cluster_source",
			"creator_user_name",
			"custom_tags",
			"driver_node_type_id",
			"node_type_id",
			"num_workers",
			"spark_version",
			"start_time",
			"state",
			"state_message",
			"terminated_time",
		},
		map[string]string{"id": "cluster_id"},
	)

	JobFields = projection.NewFieldSet("job",
		[]string{
			"created_time",
			"creator_user_name",
			"job_id",
			"run_as_user_name",
			"settings",
		},
		map[string]string{"id": "job_id"},
	)

	RunFields = projection.NewFieldSet("run",
		[]string{
			"cluster_instance",
			"creator_user_name",
			"end_time",
			"execution_duration",
			"job_id",
			"number_in_job",
			"run_id",
			"run_name",
			"run_page_url",
			"run_type",
			"setup_duration",
			"start_time",
			"state",
			"tasks",
			"trigger",
		},
		map[string]string{"id": "run_id"},
	)
)

func parseNeeds(fs *projection.FieldSet, needs []string) (projection.Needs, error) {
	parsed, err := fs.Parse(needs)
	if err != nil {
		return nil, &ValidationError{Message: err.Error(), Err: err}
	}
	return parsed, nil
}
