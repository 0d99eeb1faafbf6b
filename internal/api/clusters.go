package api

import (
	"net/http"

	"github.com/hashicorp-forge/lyra/internal/dispatch"
	"github.com/hashicorp-forge/lyra/internal/server"
)

// ListClustersHandler lists the clusters in the default workspace.
func ListClustersHandler(srv server.Server) http.Handler {
	return operation(srv, "list_clusters", func(r *http.Request) (any, error) {
		c, err := srv.Resolver.Resolve(r.Context(), nil)
		if err != nil {
			return nil, err
		}
		return dispatch.ListClusters(r.Context(), c, needsParam(r))
	})
}
