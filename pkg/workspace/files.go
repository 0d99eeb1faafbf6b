package workspace

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
)

// Workspace object types.
const (
	ObjectTypeDirectory = "DIRECTORY"
	ObjectTypeNotebook  = "NOTEBOOK"
	ObjectTypeFile      = "FILE"
	ObjectTypeRepo      = "REPO"
	ObjectTypeLibrary   = "LIBRARY"
)

// ImportRequest describes a document to create in the workspace.
type ImportRequest struct {
	Path      string
	Format    string // e.g. "JUPYTER", "SOURCE"
	Language  string // required for SOURCE imports
	Content   []byte
	Overwrite bool
}

// ListObjects returns the direct children of a workspace directory.
func (c *Client) ListObjects(ctx context.Context, path string) ([]Record, error) {
	var resp Record
	if err := c.doRequest(
		ctx, http.MethodGet, "/api/2.0/workspace/list",
		url.Values{"path": {path}}, nil, &resp,
	); err != nil {
		return nil, fmt.Errorf("failed to list workspace path %q: %w", path, err)
	}
	return recordsFromField(resp, "objects")
}

// ListObjectsRecursive returns every object beneath path, depth first.
// Directories are included alongside their contents. Repos are not descended
// into.
func (c *Client) ListObjectsRecursive(ctx context.Context, path string) ([]Record, error) {
	objects, err := c.ListObjects(ctx, path)
	if err != nil {
		return nil, err
	}

	all := make([]Record, 0, len(objects))
	for _, obj := range objects {
		all = append(all, obj)

		if objectType, _ := obj["object_type"].(string); objectType != ObjectTypeDirectory {
			continue
		}
		child, _ := obj["path"].(string)
		if child == "" || child == path {
			continue
		}

		children, err := c.ListObjectsRecursive(ctx, child)
		if err != nil {
			return nil, err
		}
		all = append(all, children...)
	}

	return all, nil
}

// Import creates a document in the workspace.
func (c *Client) Import(ctx context.Context, req ImportRequest) error {
	body := map[string]any{
		"path":      req.Path,
		"format":    req.Format,
		"content":   base64.StdEncoding.EncodeToString(req.Content),
		"overwrite": req.Overwrite,
	}
	if req.Language != "" {
		body["language"] = req.Language
	}

	if err := c.doRequest(
		ctx, http.MethodPost, "/api/2.0/workspace/import", nil, body, nil,
	); err != nil {
		return fmt.Errorf("failed to import %q: %w", req.Path, err)
	}
	return nil
}
