// Package handler contains the HTTP request handlers.
//
// HANDLER RESPONSIBILITIES:
// 1. Parse the incoming HTTP request (path and query params, JSON body)
// 2. Call the service layer
// 3. Write the HTTP response through writeJSON / writeError
//
// Handlers hold no business rules. Validation beyond "is this well-formed"
// lives in internal/service, membership and eligibility in internal/directory.
package handler

import "net/http"

// HandleHealth answers liveness probes.
//
// HTTP: GET /healthz
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
