// Package logbook manages a user's saved sightings.
package logbook

import (
	"context"
	"log/slog"

	"bugspotter/internal/types"
)

// Repository persists logbook entries. GetByID and ListByUser populate
// Identification from a join; GetByID returns a not_found_logbook_entry
// AppError for unknown ids.
type Repository interface {
	Create(ctx context.Context, entry *types.LogbookEntry) error
	GetByID(ctx context.Context, id int64) (*types.LogbookEntry, error)
	ListByUser(ctx context.Context, userID int64) ([]*types.LogbookEntry, error)
	Delete(ctx context.Context, id int64) (bool, error)
	// ToggleFavorite flips is_favorite and returns the updated row, or nil
	// when no row was updated.
	ToggleFavorite(ctx context.Context, id int64) (*types.LogbookEntry, error)
}

// IdentificationReader loads the identification an entry points at.
type IdentificationReader interface {
	GetByID(ctx context.Context, id int64) (*types.BugIdentification, error)
}

// Input is the body of a save request.
type Input struct {
	BugIdentificationID int64   `json:"bugIdentificationId" validate:"required,gt=0"`
	Notes               *string `json:"notes" validate:"omitempty,max=5000"`
	Location            *string `json:"location" validate:"omitempty,max=255"`
	IsFavorite          *bool   `json:"isFavorite"`
}

type Service struct {
	repo   Repository
	idents IdentificationReader
	logger *slog.Logger
}

func NewService(repo Repository, idents IdentificationReader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, idents: idents, logger: logger}
}

func forbidden(verb string) error {
	return types.NewAppError(types.ErrCodePermissionNotOwner,
		"You do not have permission to "+verb+" this entry", nil)
}

// Save stores a sighting for one of the caller's own identifications.
func (s *Service) Save(ctx context.Context, userID int64, in Input) (*types.LogbookEntry, error) {
	ident, err := s.idents.GetByID(ctx, in.BugIdentificationID)
	if err != nil {
		return nil, err
	}
	if ident.UserID == nil || *ident.UserID != userID {
		return nil, types.NewAppError(types.ErrCodePermissionNotOwner,
			"You do not have permission to save this identification", nil)
	}

	entry := &types.LogbookEntry{
		BugIdentificationID: in.BugIdentificationID,
		Notes:               in.Notes,
		Location:            in.Location,
		IsFavorite:          in.IsFavorite != nil && *in.IsFavorite,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	entry.Identification = ident

	s.logger.InfoContext(ctx, "logbook entry saved",
		"entry_id", entry.ID,
		"identification_id", ident.ID,
		"user_id", userID,
	)
	return entry, nil
}

// List returns the caller's entries, newest first.
func (s *Service) List(ctx context.Context, userID int64) ([]*types.LogbookEntry, error) {
	return s.repo.ListByUser(ctx, userID)
}

// owned loads entry id and checks that userID owns it.
func (s *Service) owned(ctx context.Context, userID, id int64, verb string) (*types.LogbookEntry, error) {
	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !entry.OwnedBy(userID) {
		return nil, forbidden(verb)
	}
	return entry, nil
}

func (s *Service) Get(ctx context.Context, userID, id int64) (*types.LogbookEntry, error) {
	return s.owned(ctx, userID, id, "access")
}

func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	if _, err := s.owned(ctx, userID, id, "delete"); err != nil {
		return err
	}
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundLogbookEntry, "Failed to delete logbook entry", nil)
	}
	s.logger.InfoContext(ctx, "logbook entry deleted", "entry_id", id, "user_id", userID)
	return nil
}

// ToggleFavorite flips the favorite flag and returns the updated entry.
func (s *Service) ToggleFavorite(ctx context.Context, userID, id int64) (*types.LogbookEntry, error) {
	entry, err := s.owned(ctx, userID, id, "modify")
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.ToggleFavorite(ctx, id)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundLogbookEntry, "Failed to update logbook entry", nil)
	}
	updated.Identification = entry.Identification
	return updated, nil
}
