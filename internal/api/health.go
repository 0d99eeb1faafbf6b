package api

import (
	"net/http"

	"github.com/hashicorp-forge/lyra/internal/server"
)

// HealthHandler reports that the server is up. It does not contact the
// workspace.
func HealthHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, Envelope{Status: true, Data: "ok"})
	})
}
