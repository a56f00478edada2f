package db

import (
	"context"
	"errors"
	"math"

	"github.com/jackc/pgx/v5"

	"bugspotter/internal/types"
)

// IdentificationRepository provides data access for bug_identifications.
// Confidence is stored as a whole-number percentage; species lists are jsonb.
type IdentificationRepository struct {
	db DBTX
}

func NewIdentificationRepository(db DBTX) *IdentificationRepository {
	return &IdentificationRepository{db: db}
}

// identificationColumns is shared with the logbook join, hence the alias.
const identificationColumns = `b.id, b.user_id, b.image_url, b.additional_images, b.name, b.scientific_name,
	b.confidence, b.type, b.habitat, b.harm_level, b.description, b.size, b.diet, b.lifespan,
	b.threat_level, b.pest_control_recommendations, b.environmental_impact, b.conservation_status,
	b.similar_species, b.alternative_matches, b.identified_at`

// identificationDest returns scan targets in identificationColumns order.
// Call finish after a successful scan.
func identificationDest(b *types.BugIdentification) (dest []any, finish func()) {
	var confidence int
	dest = []any{
		&b.ID, &b.UserID, &b.ImageURL, &b.AdditionalImageURLs, &b.Name, &b.ScientificName,
		&confidence, &b.Type, &b.Habitat, &b.HarmLevel, &b.Description, &b.Size, &b.Diet, &b.Lifespan,
		&b.ThreatLevel, &b.PestControlRecommendations, &b.EnvironmentalImpact, &b.ConservationStatus,
		&b.SimilarSpecies, &b.AlternativeMatches, &b.IdentifiedAt,
	}
	return dest, func() {
		b.Confidence = float64(confidence)
		if b.AdditionalImageURLs == nil {
			b.AdditionalImageURLs = []string{}
		}
		if b.SimilarSpecies == nil {
			b.SimilarSpecies = []types.SimilarSpecies{}
		}
		if b.AlternativeMatches == nil {
			b.AlternativeMatches = []types.AlternativeMatch{}
		}
	}
}

func scanIdentification(row pgx.Row) (*types.BugIdentification, error) {
	var b types.BugIdentification
	dest, finish := identificationDest(&b)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	finish()
	return &b, nil
}

// Create inserts the identification and fills in ID and IdentifiedAt.
func (r *IdentificationRepository) Create(ctx context.Context, b *types.BugIdentification) error {
	additional := b.AdditionalImageURLs
	if additional == nil {
		additional = []string{}
	}
	similar := b.SimilarSpecies
	if similar == nil {
		similar = []types.SimilarSpecies{}
	}
	alternatives := b.AlternativeMatches
	if alternatives == nil {
		alternatives = []types.AlternativeMatch{}
	}

	err := r.db.QueryRow(ctx,
		`INSERT INTO bug_identifications (
			user_id, image_url, additional_images, name, scientific_name, confidence, type, habitat,
			harm_level, description, size, diet, lifespan, threat_level, pest_control_recommendations,
			environmental_impact, conservation_status, similar_species, alternative_matches)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		 RETURNING id, identified_at`,
		b.UserID,
		b.ImageURL,
		additional,
		b.Name,
		b.ScientificName,
		int(math.Round(b.Confidence)),
		b.Type,
		b.Habitat,
		b.HarmLevel,
		b.Description,
		b.Size,
		b.Diet,
		b.Lifespan,
		b.ThreatLevel,
		b.PestControlRecommendations,
		b.EnvironmentalImpact,
		b.ConservationStatus,
		similar,
		alternatives,
	).Scan(&b.ID, &b.IdentifiedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to save identification", err)
	}
	b.AdditionalImageURLs = additional
	b.SimilarSpecies = similar
	b.AlternativeMatches = alternatives
	return nil
}

// GetByID returns not_found_identification for unknown ids.
func (r *IdentificationRepository) GetByID(ctx context.Context, id int64) (*types.BugIdentification, error) {
	b, err := scanIdentification(r.db.QueryRow(ctx,
		`SELECT `+identificationColumns+` FROM bug_identifications b WHERE b.id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundIdentification, "Bug identification not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve identification", err)
	}
	return b, nil
}

// ListByUser returns the user's identifications, newest first.
func (r *IdentificationRepository) ListByUser(ctx context.Context, userID int64) ([]*types.BugIdentification, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+identificationColumns+`
		 FROM bug_identifications b
		 WHERE b.user_id = $1
		 ORDER BY b.identified_at DESC, b.id DESC`,
		userID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "Failed to fetch identification history", err)
	}
	defer rows.Close()

	out := []*types.BugIdentification{}
	for rows.Next() {
		b, err := scanIdentification(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "Failed to fetch identification history", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "Failed to fetch identification history", err)
	}
	return out, nil
}

// DeleteByUser deletes the user's identifications that no logbook entry
// references, so saved sightings survive a history wipe.
func (r *IdentificationRepository) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM bug_identifications b
		 WHERE b.user_id = $1
		   AND NOT EXISTS (SELECT 1 FROM logbook_entries l WHERE l.bug_identification_id = b.id)`,
		userID,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "Failed to clear identification history", err)
	}
	return tag.RowsAffected(), nil
}
