package api

import (
	"net/http"

	"github.com/hashicorp-forge/lyra/internal/dispatch"
	"github.com/hashicorp-forge/lyra/internal/server"
	"github.com/hashicorp-forge/lyra/pkg/notebook"
)

// ListWorkspaceHandler lists workspace objects beneath the "prefix" query
// parameter, "/" by default.
func ListWorkspaceHandler(srv server.Server) http.Handler {
	return operation(srv, "all_files", func(r *http.Request) (any, error) {
		c, err := srv.Resolver.Resolve(r.Context(), nil)
		if err != nil {
			return nil, err
		}

		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "/"
		}
		return dispatch.AllFiles(r.Context(), c, prefix)
	})
}

// UploadNotebookHandler uploads a local notebook to the workspace.
func UploadNotebookHandler(srv server.Server) http.Handler {
	return operation(srv, "create_notebook", func(r *http.Request) (any, error) {
		c, err := srv.Resolver.Resolve(r.Context(), nil)
		if err != nil {
			return nil, err
		}

		var req dispatch.UploadRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		if err := dispatch.ValidateUploadRequest(srv.Fs, req); err != nil {
			return nil, err
		}

		nb, err := notebook.Read(srv.Fs, req.LocalPath)
		if err != nil {
			return nil, &dispatch.ValidationError{Message: err.Error(), Err: err}
		}
		return dispatch.CreateNotebook(r.Context(), c, req.UploadPath, nb)
	})
}
