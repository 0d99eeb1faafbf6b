package api

import (
	"errors"
	"net/http"

	"github.com/hashicorp-forge/lyra/internal/credentials"
	"github.com/hashicorp-forge/lyra/internal/dispatch"
	"github.com/hashicorp-forge/lyra/internal/server"
)

var errAssistantDisabled = errors.New("assistant is not configured")

// MessageLyraHandler forwards a chat message to the assistant. Consumer
// requests authenticate against the workspace named in the body; all others
// use the default workspace.
func MessageLyraHandler(srv server.Server) http.Handler {
	return operation(srv, "message_assistant", func(r *http.Request) (any, error) {
		var req dispatch.MessageRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		if err := dispatch.ValidateMessageRequest(req); err != nil {
			return nil, err
		}

		var override *credentials.Credential
		if req.Consumer {
			override = &credentials.Credential{Host: req.Host, Token: req.Token}
		}
		c, err := srv.Resolver.Resolve(r.Context(), override)
		if err != nil {
			return nil, err
		}

		if srv.Assistant == nil {
			return nil, errAssistantDisabled
		}
		return dispatch.MessageAssistant(r.Context(), srv.Assistant, c, req.Message, req.ThreadID)
	})
}

// GetThreadHandler returns the assistant's default thread.
func GetThreadHandler(srv server.Server) http.Handler {
	return operation(srv, "get_thread", func(r *http.Request) (any, error) {
		if srv.Assistant == nil {
			return nil, errAssistantDisabled
		}
		return dispatch.GetThread(r.Context(), srv.Assistant)
	})
}
