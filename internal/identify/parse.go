package identify

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"bugspotter/internal/types"
)

var (
	dataURLPrefix = regexp.MustCompile(`^data:image/\w+;base64,`)
	jsonFence     = regexp.MustCompile("(?s)```json\\n(.*?)\\n```")
	plainFence    = regexp.MustCompile("(?s)```\\n(.*?)\\n```")

	errNoJSON = errors.New("no JSON object in model answer")
)

// modelAnswer is the JSON shape requested by identificationPrompt.
// Confidence is a pointer so a missing score fails "required".
type modelAnswer struct {
	Name                       string                   `json:"name" validate:"required"`
	ScientificName             string                   `json:"scientificName"`
	Confidence                 *float64                 `json:"confidence" validate:"required,gte=0,lte=100"`
	Type                       string                   `json:"type"`
	Habitat                    string                   `json:"habitat"`
	HarmLevel                  string                   `json:"harmLevel"`
	Description                string                   `json:"description"`
	Size                       string                   `json:"size"`
	Diet                       string                   `json:"diet"`
	Lifespan                   string                   `json:"lifespan"`
	ThreatLevel                string                   `json:"threatLevel"`
	PestControlRecommendations string                   `json:"pestControlRecommendations"`
	EnvironmentalImpact        string                   `json:"environmentalImpact"`
	ConservationStatus         string                   `json:"conservationStatus"`
	SimilarSpecies             []types.SimilarSpecies   `json:"similarSpecies" validate:"omitempty,dive"`
	AlternativeMatches         []types.AlternativeMatch `json:"alternativeMatches" validate:"omitempty,dive"`
}

// StripDataURL removes a leading "data:image/<subtype>;base64," prefix.
func StripDataURL(image string) string {
	return dataURLPrefix.ReplaceAllString(image, "")
}

// ExtractJSON pulls the JSON object out of a model answer. It tries a ```json
// fence, then a bare ``` fence, then the span from the first "{" to the last
// "}". Any remaining fence markers are removed.
func ExtractJSON(text string) (string, error) {
	candidate := ""
	switch {
	case jsonFence.MatchString(text):
		candidate = jsonFence.FindString(text)
	case plainFence.MatchString(text):
		candidate = plainFence.FindString(text)
	default:
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start < 0 || end < start {
			return "", errNoJSON
		}
		candidate = text[start : end+1]
	}

	candidate = strings.ReplaceAll(candidate, "```json", "")
	candidate = strings.ReplaceAll(candidate, "```", "")
	return strings.TrimSpace(candidate), nil
}

// parseAnswer decodes and validates a raw model answer.
func parseAnswer(v *validator.Validate, text string) (*modelAnswer, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}

	var ans modelAnswer
	if err := json.Unmarshal([]byte(raw), &ans); err != nil {
		return nil, fmt.Errorf("decode model answer: %w", err)
	}
	if err := v.Struct(&ans); err != nil {
		return nil, fmt.Errorf("invalid model answer: %w", err)
	}
	return &ans, nil
}

// toIdentification builds the record to persist. The first image is the
// primary image; the rest are kept in order as additional images.
func (a *modelAnswer) toIdentification(userID *int64, images []string) *types.BugIdentification {
	additional := make([]string, 0, len(images)-1)
	additional = append(additional, images[1:]...)

	similar := a.SimilarSpecies
	if similar == nil {
		similar = []types.SimilarSpecies{}
	}
	alternatives := a.AlternativeMatches
	if alternatives == nil {
		alternatives = []types.AlternativeMatch{}
	}

	return &types.BugIdentification{
		UserID:                     userID,
		ImageURL:                   images[0],
		AdditionalImageURLs:        additional,
		Name:                       a.Name,
		ScientificName:             a.ScientificName,
		Confidence:                 *a.Confidence,
		Type:                       a.Type,
		Habitat:                    a.Habitat,
		HarmLevel:                  a.HarmLevel,
		Description:                a.Description,
		Size:                       a.Size,
		Diet:                       a.Diet,
		Lifespan:                   a.Lifespan,
		ThreatLevel:                a.ThreatLevel,
		PestControlRecommendations: a.PestControlRecommendations,
		EnvironmentalImpact:        a.EnvironmentalImpact,
		ConservationStatus:         a.ConservationStatus,
		SimilarSpecies:             similar,
		AlternativeMatches:         alternatives,
	}
}
