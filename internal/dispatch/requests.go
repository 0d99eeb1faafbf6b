package dispatch

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/afero"

	"github.com/hashicorp-forge/lyra/pkg/notebook"
)

// JobSpec is the body of a job creation request. Task i is built from
// TaskNames[i], Paths[i], Dependents[i] and ClusterIDs[i]; an empty dependent
// means the task has no upstream task.
type JobSpec struct {
	JobName    string   `json:"job_name"`
	TaskNames  []string `json:"task_names"`
	Paths      []string `json:"paths"`
	Dependents []string `json:"dependents"`
	ClusterIDs []string `json:"cluster_ids"`
}

// UploadRequest is the body of a notebook upload request.
type UploadRequest struct {
	LocalPath  string `json:"local_path"`
	UploadPath string `json:"upload_path"`
}

// MessageRequest is the body of an assistant message request. When Consumer
// is set, Host and Token identify the caller's own workspace.
type MessageRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
	Consumer bool   `json:"consumer"`
	Host     string `json:"host,omitempty"`
	Token    string `json:"token,omitempty"`
}

// ValidateJobSpec checks the structural preconditions of a job creation
// request. No remote call is made. An empty job name is left for the
// workspace to default.
func ValidateJobSpec(spec JobSpec) error {
	n := len(spec.TaskNames)
	if len(spec.Paths) != n || len(spec.Dependents) != n || len(spec.ClusterIDs) != n {
		return NewValidationError("parameters not same length")
	}
	return nil
}

// ValidateUploadRequest checks the local notebook exists on fs and the
// destination path is set.
func ValidateUploadRequest(fs afero.Fs, req UploadRequest) error {
	if err := validation.ValidateStruct(&req,
		validation.Field(&req.LocalPath, validation.Required),
		validation.Field(&req.UploadPath, validation.Required),
	); err != nil {
		return &ValidationError{Message: validationMessage(err), Err: err}
	}

	ok, err := notebook.Exists(fs, req.LocalPath)
	if err != nil {
		return fmt.Errorf("error checking local file: %w", err)
	}
	if !ok {
		return &ValidationError{Message: "File doesn't exist", Err: notebook.ErrNotExist}
	}

	return nil
}

// ValidateMessageRequest checks an assistant message request. A consumer
// request must carry its own host and token.
func ValidateMessageRequest(req MessageRequest) error {
	if err := validation.ValidateStruct(&req,
		validation.Field(&req.Message, validation.Required),
		validation.Field(&req.Host, validation.When(req.Consumer, validation.Required)),
		validation.Field(&req.Token, validation.When(req.Consumer, validation.Required)),
	); err != nil {
		return &ValidationError{Message: validationMessage(err), Err: err}
	}
	return nil
}

// validationMessage flattens ozzo field errors into "field: reason" pairs in
// a stable order.
func validationMessage(err error) string {
	errs, ok := err.(validation.Errors)
	if !ok {
		return err.Error()
	}
	return strings.TrimSuffix(errs.Error(), ".")
}
