// Package identify turns uploaded photos into stored species identifications.
package identify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"

	"bugspotter/internal/external"
	"bugspotter/internal/observability"
	"bugspotter/internal/types"
)

// ErrIdentificationFailed covers every way the model can fail to produce a
// usable answer: upstream errors, unparseable output and invalid fields.
var ErrIdentificationFailed = types.NewAppError(
	types.ErrCodeInternalIdentification,
	"Failed to identify bug. Please try again with a clearer image.",
	nil,
)

// Repository persists identifications.
type Repository interface {
	Create(ctx context.Context, ident *types.BugIdentification) error
	ListByUser(ctx context.Context, userID int64) ([]*types.BugIdentification, error)
	DeleteByUser(ctx context.Context, userID int64) (int64, error)
}

// SubscriptionChecker reports whether a user has premium access.
type SubscriptionChecker interface {
	HasActive(ctx context.Context, userID int64) (bool, error)
}

// EventPublisher enqueues IdentificationRecorded events.
type EventPublisher interface {
	PublishIdentification(ctx context.Context, evt types.IdentificationEvent) error
}

// Service runs identifications and manages a user's history.
type Service struct {
	model     external.VisionModel
	repo      Repository
	subs      SubscriptionChecker
	quota     *Quota
	publisher EventPublisher
	validate  *validator.Validate
	clock     clockwork.Clock
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// Deps groups the collaborators of Service. Quota, Publisher, Metrics and
// Clock are optional.
type Deps struct {
	Model     external.VisionModel
	Repo      Repository
	Subs      SubscriptionChecker
	Quota     *Quota
	Publisher EventPublisher
	Clock     clockwork.Clock
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

func NewService(d Deps) *Service {
	clock := d.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		model:     d.Model,
		repo:      d.Repo,
		subs:      d.Subs,
		quota:     d.Quota,
		publisher: d.Publisher,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		clock:     clock,
		metrics:   d.Metrics,
		logger:    logger,
	}
}

// Identify sends images to the vision model and stores the answer. userID is
// nil for anonymous callers; their quota is tracked by client IP.
func (s *Service) Identify(ctx context.Context, userID *int64, images []string) (*types.BugIdentification, error) {
	if len(images) == 0 {
		return nil, types.NewAppError(types.ErrCodeValidationNoImages,
			"No images provided. Please provide at least one image.", nil)
	}

	now := s.clock.Now()
	subject, err := s.quotaSubject(ctx, userID)
	if err != nil {
		return nil, err
	}
	var slot *Reservation
	if subject != "" {
		var ok bool
		if slot, ok = s.quota.Reserve(ctx, subject, now); !ok {
			s.count("quota_exceeded")
			return nil, types.NewAppErrorWithDetails(types.ErrCodeLimitIdentifications,
				"Daily identification limit reached. Upgrade to premium for unlimited identifications.", nil,
				map[string]any{"limit": s.quota.Limit()})
		}
	}
	stored := false
	defer func() {
		if !stored {
			slot.Release(ctx)
		}
	}()

	req := external.GenerateRequest{Prompt: identificationPrompt}
	for _, img := range images {
		req.Images = append(req.Images, external.InlineImage{MimeType: "image/jpeg", Data: StripDataURL(img)})
	}

	start := s.clock.Now()
	text, err := s.model.GenerateContent(ctx, req)
	if s.metrics != nil {
		s.metrics.IdentifyDuration.Observe(s.clock.Since(start).Seconds())
	}
	if err != nil {
		s.count("failed")
		s.logger.ErrorContext(ctx, "vision model call failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrIdentificationFailed, err)
	}

	ans, err := parseAnswer(s.validate, text)
	if err != nil {
		s.count("failed")
		s.logger.WarnContext(ctx, "unusable vision model answer", "error", err, "answer_len", len(text))
		return nil, fmt.Errorf("%w: %w", ErrIdentificationFailed, err)
	}

	ident := ans.toIdentification(userID, images)
	if err := s.repo.Create(ctx, ident); err != nil {
		return nil, err
	}
	stored = true
	s.count("success")
	s.publish(ctx, ident, len(images))

	s.logger.InfoContext(ctx, "bug identified",
		"identification_id", ident.ID,
		"name", ident.Name,
		"confidence", ident.Confidence,
		"images", len(images),
	)
	return ident, nil
}

// quotaSubject returns "" when the caller is not subject to the free quota.
func (s *Service) quotaSubject(ctx context.Context, userID *int64) (string, error) {
	if s.quota == nil {
		return "", nil
	}
	if userID == nil {
		ip := types.GetClientIP(ctx)
		if ip == "" {
			ip = "unknown"
		}
		return "ip:" + ip, nil
	}
	if s.subs != nil {
		active, err := s.subs.HasActive(ctx, *userID)
		if err != nil {
			return "", err
		}
		if active {
			return "", nil
		}
	}
	return "user:" + strconv.FormatInt(*userID, 10), nil
}

func (s *Service) publish(ctx context.Context, ident *types.BugIdentification, imageCount int) {
	if s.publisher == nil {
		return
	}
	evt := types.IdentificationEvent{
		IdentificationID: ident.ID,
		UserID:           ident.UserID,
		Name:             ident.Name,
		Type:             ident.Type,
		HarmLevel:        ident.HarmLevel,
		Confidence:       ident.Confidence,
		ImageCount:       imageCount,
		OccurredAt:       ident.IdentifiedAt,
	}
	if err := s.publisher.PublishIdentification(ctx, evt); err != nil {
		if s.metrics != nil {
			s.metrics.EventPublishErrors.Inc()
		}
		s.logger.WarnContext(ctx, "failed to publish identification event",
			"identification_id", ident.ID, "error", err)
	}
}

func (s *Service) count(outcome string) {
	if s.metrics != nil {
		s.metrics.Identifications.WithLabelValues(outcome).Inc()
	}
}

// History returns the user's identifications, newest first.
func (s *Service) History(ctx context.Context, userID int64) ([]*types.BugIdentification, error) {
	return s.repo.ListByUser(ctx, userID)
}

// ClearHistory deletes all of the user's identifications and returns how many
// were removed.
func (s *Service) ClearHistory(ctx context.Context, userID int64) (int64, error) {
	n, err := s.repo.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "identification history cleared", "user_id", userID, "deleted", n)
	return n, nil
}
