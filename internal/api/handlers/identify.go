package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bugspotter/internal/core"
	"bugspotter/internal/types"
)

// IdentifyRequest accepts either a single image or a list. Images are
// base64 strings, optionally with a data URL prefix.
type IdentifyRequest struct {
	Image  string   `json:"image"`
	Images []string `json:"images"`
}

// imageList returns Image when set, otherwise Images.
func (req IdentifyRequest) imageList() []string {
	if req.Image != "" {
		return []string{req.Image}
	}
	return req.Images
}

// IdentificationService runs identifications and manages history.
// *identify.Service implements it.
type IdentificationService interface {
	Identify(ctx context.Context, userID *int64, images []string) (*types.BugIdentification, error)
	History(ctx context.Context, userID int64) ([]*types.BugIdentification, error)
	ClearHistory(ctx context.Context, userID int64) (int64, error)
}

// IdentifyHandler serves POST /identify and the /history routes.
type IdentifyHandler struct {
	service IdentificationService
	logger  *slog.Logger
}

func NewIdentifyHandler(svc IdentificationService, l *slog.Logger) *IdentifyHandler {
	if l == nil {
		l = slog.Default()
	}
	return &IdentifyHandler{service: svc, logger: l}
}

// RegisterRoutes mounts:
//
//	POST   /identify  optional session
//	GET    /history   session
//	DELETE /history   session
func (h *IdentifyHandler) RegisterRoutes(r chi.Router) {
	r.Post("/identify", h.HandleIdentify)

	r.Group(func(r chi.Router) {
		r.Use(core.RequireAuth)
		r.Get("/history", h.HandleHistory)
		r.Delete("/history", h.HandleClearHistory)
	})
}

// HandleIdentify identifies the uploaded photos. Anonymous callers are
// allowed; their identifications are stored without an owner.
func (h *IdentifyHandler) HandleIdentify(w http.ResponseWriter, r *http.Request) {
	var req IdentifyRequest
	if err := core.DecodeJSON(w, r, &req, core.IdentifyMaxBodyBytes); err != nil {
		core.Error(w, r, invalidRequest(err, "Invalid request data. Please provide valid image data."))
		return
	}

	images := req.imageList()
	if len(images) == 0 {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationNoImages,
			"No images provided. Please provide at least one image.", nil))
		return
	}

	ident, err := h.service.Identify(r.Context(), types.ActorUserID(r.Context()), images)
	if err != nil {
		if types.HasCode(err, types.ErrCodeInternalIdentification) {
			h.logger.WarnContext(r.Context(), "identification failed", "error", err)
			core.Error(w, r, err)
			return
		}
		core.ErrorWithFallback(w, r, h.logger, err, "An error occurred during identification. Please try again.")
		return
	}

	core.Success(w, r, http.StatusOK, map[string]any{"identification": ident})
}

// HandleHistory returns the caller's identifications as a bare JSON array.
func (h *IdentifyHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	history, err := h.service.History(r.Context(), actor.UserID)
	if err != nil {
		core.ErrorWithFallback(w, r, h.logger, err, "Failed to fetch identification history")
		return
	}
	if history == nil {
		history = []*types.BugIdentification{}
	}
	core.JSON(w, r, http.StatusOK, history)
}

// HandleClearHistory deletes the caller's identifications.
func (h *IdentifyHandler) HandleClearHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	n, err := h.service.ClearHistory(r.Context(), actor.UserID)
	if err != nil {
		core.ErrorWithFallback(w, r, h.logger, err, "Failed to clear identification history")
		return
	}
	core.Success(w, r, http.StatusOK, map[string]any{"deleted": n})
}
