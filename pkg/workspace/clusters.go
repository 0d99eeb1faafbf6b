package workspace

import (
	"context"
	"fmt"
	"net/http"
)

// ListClusters returns every cluster visible to the token owner.
func (c *Client) ListClusters(ctx context.Context) ([]Record, error) {
	var resp Record
	if err := c.doRequest(
		ctx, http.MethodGet, "/api/2.0/clusters/list", nil, nil, &resp,
	); err != nil {
		return nil, fmt.Errorf("failed to list clusters: %w", err)
	}

	return recordsFromField(resp, "clusters")
}
