// Package workspace is a client for the remote workspace-management REST API
// (clusters, jobs, runs, and workspace files).
//
// # Overview
//
// A Client is bound to one host and one token. Every request carries the token
// as a Bearer credential and is made exactly once: failed calls are returned to
// the caller, never retried.
//
// Responses are returned as Records, untyped JSON objects, so that callers can
// project whichever attributes they need. Typed views (CreatedJob,
// TriggeredRun, User) are decoded from Records where this package itself needs
// a field.
//
// # Endpoints Used
//
// Identity:
//   - GET  /api/2.0/preview/scim/v2/Me
//
// Clusters:
//   - GET  /api/2.0/clusters/list
//
// Jobs:
//   - POST /api/2.1/jobs/create
//   - GET  /api/2.1/jobs/list
//   - GET  /api/2.1/jobs/get
//   - POST /api/2.1/jobs/run-now
//   - GET  /api/2.1/jobs/runs/get
//   - GET  /api/2.1/jobs/runs/list
//
// Workspace:
//   - GET  /api/2.0/workspace/list
//   - POST /api/2.0/workspace/import
//
// # Errors
//
// Non-2xx responses are returned as *APIError. IsNotFound and IsUnauthorized
// classify them.
package workspace
