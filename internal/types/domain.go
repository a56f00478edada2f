package types

import "time"

// User is a registered account. PasswordHash never leaves the service layer.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Session is a server-side login session referenced by the session_id cookie.
type Session struct {
	ID         string    `json:"id"`
	UserID     int64     `json:"userId"`
	CSRFToken  string    `json:"csrfToken"`
	IPAddress  string    `json:"-"`
	UserAgent  string    `json:"-"`
	ExpiresAt  time.Time `json:"expiresAt"`
	CreatedAt  time.Time `json:"createdAt"`
	LastActive time.Time `json:"-"`
}

// AlternativeMatch is a lower-confidence candidate species.
type AlternativeMatch struct {
	Name           string  `json:"name" validate:"required"`
	ScientificName string  `json:"scientificName" validate:"required"`
	Confidence     float64 `json:"confidence" validate:"gte=0,lte=100"`
	ImageURL       string  `json:"imageUrl,omitempty"`
}

// SimilarSpecies is a species commonly confused with the identified one.
type SimilarSpecies struct {
	Name                    string `json:"name" validate:"required"`
	ScientificName          string `json:"scientificName" validate:"required"`
	ImageURL                string `json:"imageUrl,omitempty"`
	DifferentiatingFeatures string `json:"differentiatingFeatures,omitempty"`
	CommonlyConfusedWith    *bool  `json:"commonlyConfusedWith,omitempty"`
}

// BugIdentification is a persisted species identification. UserID is nil
// for anonymous identifications.
type BugIdentification struct {
	ID                         int64              `json:"id"`
	UserID                     *int64             `json:"userId"`
	ImageURL                   string             `json:"imageUrl"`
	AdditionalImageURLs        []string           `json:"additionalImageUrls"`
	Name                       string             `json:"name"`
	ScientificName             string             `json:"scientificName,omitempty"`
	Confidence                 float64            `json:"confidence"`
	Type                       string             `json:"type,omitempty"`
	Habitat                    string             `json:"habitat,omitempty"`
	HarmLevel                  string             `json:"harmLevel,omitempty"`
	Description                string             `json:"description,omitempty"`
	Size                       string             `json:"size,omitempty"`
	Diet                       string             `json:"diet,omitempty"`
	Lifespan                   string             `json:"lifespan,omitempty"`
	ThreatLevel                string             `json:"threatLevel,omitempty"`
	PestControlRecommendations string             `json:"pestControlRecommendations,omitempty"`
	EnvironmentalImpact        string             `json:"environmentalImpact,omitempty"`
	ConservationStatus         string             `json:"conservationStatus,omitempty"`
	SimilarSpecies             []SimilarSpecies   `json:"similarSpecies"`
	AlternativeMatches         []AlternativeMatch `json:"alternativeMatches"`
	IdentifiedAt               time.Time          `json:"identifiedAt"`
}

// LogbookEntry is a saved sighting. Identification is populated by joins;
// ownership is decided by Identification.UserID.
type LogbookEntry struct {
	ID                  int64              `json:"id"`
	BugIdentificationID int64              `json:"bugIdentificationId"`
	Notes               *string            `json:"notes"`
	Location            *string            `json:"location"`
	IsFavorite          bool               `json:"isFavorite"`
	CreatedAt           time.Time          `json:"createdAt"`
	Identification      *BugIdentification `json:"identification,omitempty"`
}

// OwnedBy reports whether the joined identification belongs to userID.
func (e *LogbookEntry) OwnedBy(userID int64) bool {
	return e.Identification != nil &&
		e.Identification.UserID != nil &&
		*e.Identification.UserID == userID
}

// PlanType is a premium subscription plan.
type PlanType string

const (
	PlanMonthly PlanType = "monthly"
	PlanYearly  PlanType = "yearly"
)

// SubscriptionStatus is the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// Subscription is a premium plan purchase.
type Subscription struct {
	ID        int64              `json:"id"`
	UserID    int64              `json:"userId"`
	PlanType  PlanType           `json:"planType"`
	Status    SubscriptionStatus `json:"status"`
	StartDate time.Time          `json:"startDate"`
	EndDate   time.Time          `json:"endDate"`
	PaymentID string             `json:"paymentId"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// IsCurrent reports whether the subscription grants premium access at now.
func (s *Subscription) IsCurrent(now time.Time) bool {
	return s.Status == SubscriptionActive && !s.EndDate.Before(now)
}
