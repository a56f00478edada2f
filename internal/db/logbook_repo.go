package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"bugspotter/internal/types"
)

// LogbookRepository provides data access for logbook_entries. Reads join the
// referenced identification, which decides ownership.
type LogbookRepository struct {
	db DBTX
}

func NewLogbookRepository(db DBTX) *LogbookRepository {
	return &LogbookRepository{db: db}
}

const logbookColumns = `l.id, l.bug_identification_id, l.notes, l.location, l.is_favorite, l.created_at`

func scanLogbookJoined(row pgx.Row) (*types.LogbookEntry, error) {
	var e types.LogbookEntry
	var ident types.BugIdentification
	identDest, finish := identificationDest(&ident)

	dest := append([]any{&e.ID, &e.BugIdentificationID, &e.Notes, &e.Location, &e.IsFavorite, &e.CreatedAt}, identDest...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	finish()
	e.Identification = &ident
	return &e, nil
}

// Create inserts the entry and fills in ID and CreatedAt.
func (r *LogbookRepository) Create(ctx context.Context, e *types.LogbookEntry) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO logbook_entries (bug_identification_id, notes, location, is_favorite)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		e.BugIdentificationID,
		e.Notes,
		e.Location,
		e.IsFavorite,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "Failed to save to logbook", err)
	}
	return nil
}

// GetByID returns not_found_logbook_entry for unknown ids.
func (r *LogbookRepository) GetByID(ctx context.Context, id int64) (*types.LogbookEntry, error) {
	e, err := scanLogbookJoined(r.db.QueryRow(ctx,
		`SELECT `+logbookColumns+`, `+identificationColumns+`
		 FROM logbook_entries l
		 JOIN bug_identifications b ON b.id = l.bug_identification_id
		 WHERE l.id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundLogbookEntry, "Logbook entry not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "Failed to fetch logbook entry", err)
	}
	return e, nil
}

// ListByUser returns entries whose identification belongs to userID, newest
// first.
func (r *LogbookRepository) ListByUser(ctx context.Context, userID int64) ([]*types.LogbookEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+logbookColumns+`, `+identificationColumns+`
		 FROM logbook_entries l
		 JOIN bug_identifications b ON b.id = l.bug_identification_id
		 WHERE b.user_id = $1
		 ORDER BY l.created_at DESC, l.id DESC`,
		userID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "Failed to fetch logbook entries", err)
	}
	defer rows.Close()

	out := []*types.LogbookEntry{}
	for rows.Next() {
		e, err := scanLogbookJoined(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "Failed to fetch logbook entries", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "Failed to fetch logbook entries", err)
	}
	return out, nil
}

// Delete reports whether a row was removed.
func (r *LogbookRepository) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM logbook_entries WHERE id = $1`, id)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "Failed to delete logbook entry", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ToggleFavorite flips is_favorite in place. It returns nil when the row is
// gone.
func (r *LogbookRepository) ToggleFavorite(ctx context.Context, id int64) (*types.LogbookEntry, error) {
	var e types.LogbookEntry
	err := r.db.QueryRow(ctx,
		`UPDATE logbook_entries SET is_favorite = NOT is_favorite
		 WHERE id = $1
		 RETURNING id, bug_identification_id, notes, location, is_favorite, created_at`,
		id,
	).Scan(&e.ID, &e.BugIdentificationID, &e.Notes, &e.Location, &e.IsFavorite, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "Failed to toggle favorite status", err)
	}
	return &e, nil
}
