package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hashicorp-forge/lyra/internal/dispatch"
	"github.com/hashicorp-forge/lyra/internal/metrics"
	"github.com/hashicorp-forge/lyra/internal/server"
	"github.com/hashicorp-forge/lyra/pkg/notebook"
)

// Response messages returned to callers.
const (
	msgNotAuthorized = "Not Authorized"
	msgBadRequest    = "Bad request, "
	msgError         = "Error Occurred"
)

// Envelope is the body of every API response.
type Envelope struct {
	Status bool `json:"status"`
	Data   any  `json:"data"`
}

func respond(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// respondError maps err to a status code and writes a failure envelope.
// Authentication and downstream details are logged and withheld from the
// caller.
func respondError(
	w http.ResponseWriter,
	r *http.Request,
	srv server.Server,
	op string,
	err error,
) {
	var (
		authErr *dispatch.AuthenticationError
		valErr  *dispatch.ValidationError
	)

	switch {
	case errors.As(err, &authErr):
		srv.Metrics.IncOperation(op, metrics.OutcomeUnauthorized)
		respond(w, http.StatusUnauthorized, Envelope{Data: msgNotAuthorized})

	case errors.As(err, &valErr):
		srv.Metrics.IncOperation(op, metrics.OutcomeInvalid)
		msg := msgBadRequest + valErr.Message
		if errors.Is(err, notebook.ErrNotExist) {
			msg = valErr.Message
		}
		srv.Logger.Debug("rejected request",
			"operation", op,
			"path", r.URL.Path,
			"reason", valErr.Message,
		)
		respond(w, http.StatusBadRequest, Envelope{Data: msg})

	default:
		srv.Metrics.IncOperation(op, metrics.OutcomeError)
		srv.Logger.Error("error performing operation",
			"error", err,
			"operation", op,
			"method", r.Method,
			"path", r.URL.Path,
		)
		respond(w, http.StatusInternalServerError, Envelope{Data: msgError})
	}
}

// operation adapts fn into a handler that wraps its result in an Envelope.
func operation(
	srv server.Server,
	op string,
	fn func(r *http.Request) (any, error),
) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := fn(r)
		if err != nil {
			respondError(w, r, srv, op, err)
			return
		}

		srv.Metrics.IncOperation(op, metrics.OutcomeOK)
		respond(w, http.StatusOK, Envelope{Status: true, Data: data})
	})
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return &dispatch.ValidationError{Message: "invalid request body", Err: err}
	}
	return nil
}

// requiredParam returns a query parameter or a ValidationError naming it.
func requiredParam(r *http.Request, name string) (string, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return "", dispatch.NewValidationError("%s is required", name)
	}
	return v, nil
}

// needsParam returns every "needs" query value; values may repeat or be
// comma-separated.
func needsParam(r *http.Request) []string {
	return r.URL.Query()["needs"]
}
