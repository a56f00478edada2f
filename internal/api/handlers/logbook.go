package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bugspotter/internal/core"
	"bugspotter/internal/logbook"
	"bugspotter/internal/types"
)

// LogbookService manages saved sightings. *logbook.Service implements it.
type LogbookService interface {
	Save(ctx context.Context, userID int64, in logbook.Input) (*types.LogbookEntry, error)
	List(ctx context.Context, userID int64) ([]*types.LogbookEntry, error)
	Get(ctx context.Context, userID, id int64) (*types.LogbookEntry, error)
	Delete(ctx context.Context, userID, id int64) error
	ToggleFavorite(ctx context.Context, userID, id int64) (*types.LogbookEntry, error)
}

// LogbookHandler serves the /logbook routes. All of them require a session.
type LogbookHandler struct {
	service   LogbookService
	validator *core.Validator
	logger    *slog.Logger
}

func NewLogbookHandler(svc LogbookService, v *core.Validator, l *slog.Logger) *LogbookHandler {
	if l == nil {
		l = slog.Default()
	}
	return &LogbookHandler{service: svc, validator: v, logger: l}
}

func (h *LogbookHandler) RegisterRoutes(r chi.Router) {
	r.Route("/logbook", func(r chi.Router) {
		r.Use(core.RequireAuth)
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleSave)
		r.Get("/{id}", h.HandleGet)
		r.Delete("/{id}", h.HandleDelete)
		r.Patch("/{id}/favorite", h.HandleToggleFavorite)
	})
}

// HandleList returns the caller's entries as a bare JSON array.
func (h *LogbookHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	entries, err := h.service.List(r.Context(), actor.UserID)
	if err != nil {
		core.ErrorWithFallback(w, r, h.logger, err, "Failed to fetch logbook entries")
		return
	}
	if entries == nil {
		entries = []*types.LogbookEntry{}
	}
	core.JSON(w, r, http.StatusOK, entries)
}

// HandleGet returns one entry as a bare JSON object.
func (h *LogbookHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	entry, err := h.service.Get(r.Context(), actor.UserID, id)
	if err != nil {
		core.ErrorWithFallback(w, r, h.logger, err, "Failed to fetch logbook entry")
		return
	}
	core.JSON(w, r, http.StatusOK, entry)
}

// HandleSave stores a sighting for one of the caller's identifications.
func (h *LogbookHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var in logbook.Input
	if err := core.DecodeJSON(w, r, &in, core.DefaultMaxBodyBytes); err != nil {
		core.Error(w, r, invalidRequest(err, "Invalid request data"))
		return
	}
	if err := h.validator.ValidateStruct(in); err != nil {
		core.Error(w, r, invalidRequest(err, "Invalid request data"))
		return
	}

	entry, err := h.service.Save(r.Context(), actor.UserID, in)
	if err != nil {
		core.ErrorWithFallback(w, r, h.logger, err, "Failed to save to logbook")
		return
	}
	core.Success(w, r, http.StatusOK, map[string]any{"entry": entry})
}

func (h *LogbookHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), actor.UserID, id); err != nil {
		core.ErrorWithFallback(w, r, h.logger, err, "Failed to delete logbook entry")
		return
	}
	core.Success(w, r, http.StatusOK, nil)
}

// HandleToggleFavorite flips the favorite flag and returns the updated entry.
func (h *LogbookHandler) HandleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	entry, err := h.service.ToggleFavorite(r.Context(), actor.UserID, id)
	if err != nil {
		core.ErrorWithFallback(w, r, h.logger, err, "Failed to toggle favorite status")
		return
	}
	core.Success(w, r, http.StatusOK, map[string]any{"entry": entry})
}
