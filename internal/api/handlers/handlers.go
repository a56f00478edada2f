// Package handlers contains the HTTP handlers for the BugSpotter API.
//
// Each handler decodes and validates the request, delegates to a service
// interface declared next to it, and writes the response envelope. Every
// handler exposes RegisterRoutes so it can be passed to core.Server as a
// RouteRegistrar.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"bugspotter/internal/core"
	"bugspotter/internal/types"
)

// requireActor returns the authenticated Actor, writing a 401 when absent.
// Routes are normally wrapped in core.RequireAuth; this covers handlers
// mounted without it.
func requireActor(w http.ResponseWriter, r *http.Request) (types.Actor, bool) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthNotAuthenticated, "Not authenticated", nil))
		return types.Actor{}, false
	}
	return actor, true
}

// pathID parses the {id} URL parameter. Non-numeric ids get a 400 with
// "Invalid ID format".
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidID, "Invalid ID format", err))
		return 0, false
	}
	return id, true
}

// invalidRequest rewrites decode and validation failures to a route's
// user-facing message while keeping the field details.
func invalidRequest(err error, message string) error {
	appErr, ok := types.AsAppError(err)
	if !ok {
		return types.NewAppError(types.ErrCodeValidationInvalidInput, message, err)
	}
	return types.NewAppErrorWithDetails(appErr.Code, message, appErr, appErr.Details)
}
