package subscriber

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/pkg/logger"
)

// ActivityRecorder appends subscriber lifecycle events to the ledger.
type ActivityRecorder interface {
	Record(ctx context.Context, a *domain.Activity) error
}

// VerificationSender delivers the double opt-in confirmation email.
type VerificationSender interface {
	SendVerification(ctx context.Context, s *domain.Subscriber) error
}

// Service implements subscriber business logic.
type Service struct {
	repo        Repository
	activity    ActivityRecorder
	verifier    VerificationSender
	doubleOptIn bool
	now         func() time.Time
}

// NewService creates a subscriber service. verifier may be nil; without
// one new subscribers are verified immediately.
func NewService(repo Repository, activity ActivityRecorder, verifier VerificationSender) *Service {
	return &Service{
		repo:     repo,
		activity: activity,
		verifier: verifier,
		now:      time.Now,
	}
}

// SetDoubleOptIn requires email confirmation before a subscriber becomes
// eligible for campaigns.
func (s *Service) SetDoubleOptIn(on bool) { s.doubleOptIn = on }

// SubscribeInput holds the fields for a new subscription.
type SubscribeInput struct {
	Email     string   `json:"email"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Interests []string `json:"interests"`
	Source    string   `json:"source"`
	IPAddress string   `json:"-"`
	UserAgent string   `json:"-"`
}

// Subscribe creates a subscriber with all counters zeroed and a fresh
// token, and records the subscription. With double opt-in the subscriber
// stays unverified until Confirm.
func (s *Service) Subscribe(ctx context.Context, in SubscribeInput) (*domain.Subscriber, error) {
	email := domain.NormalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmail, in.Email)
	}

	now := s.now().UTC()
	sub := &domain.Subscriber{
		ID:           uuid.New().String(),
		Email:        email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Status:       domain.SubscriberActive,
		Token:        NewToken(),
		Interests:    NormalizeTags(in.Interests),
		Source:       in.Source,
		SubscribedAt: now,
		UpdatedAt:    now,
	}
	if !s.doubleOptIn || s.verifier == nil {
		sub.IsVerified = true
		sub.VerifiedAt = &now
	}

	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, err
	}

	if err := s.activity.Record(ctx, &domain.Activity{
		SubscriberID: sub.ID,
		Type:         domain.ActivitySubscription,
		Description:  "Subscribed via " + sourceOrDefault(in.Source),
		IPAddress:    in.IPAddress,
		UserAgent:    in.UserAgent,
	}); err != nil {
		return nil, err
	}

	if !sub.IsVerified {
		if err := s.sendVerification(ctx, sub); err != nil {
			// The subscription stands; the confirmation can be resent.
			logger.Warn("verification email failed", "subscriber_id", sub.ID, "email", sub.Email, "error", err)
		}
	}

	logger.Info("subscriber created", "subscriber_id", sub.ID, "email", sub.Email, "verified", sub.IsVerified)
	return sub, nil
}

// ResendVerification re-sends the confirmation email to an unverified subscriber.
func (s *Service) ResendVerification(ctx context.Context, id string) error {
	sub, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if sub.IsVerified {
		return nil
	}
	return s.sendVerification(ctx, sub)
}

func (s *Service) sendVerification(ctx context.Context, sub *domain.Subscriber) error {
	if s.verifier == nil {
		return fmt.Errorf("no verification sender configured")
	}
	if err := s.verifier.SendVerification(ctx, sub); err != nil {
		return err
	}
	now := s.now().UTC()
	if err := s.repo.MarkVerificationSent(ctx, sub.ID, now); err != nil {
		return err
	}
	return s.activity.Record(ctx, &domain.Activity{
		SubscriberID: sub.ID,
		Type:         domain.ActivityVerificationSent,
		Description:  "Verification email sent",
	})
}

// Confirm verifies the subscriber owning token. Confirming twice is a no-op.
func (s *Service) Confirm(ctx context.Context, token string) (*domain.Subscriber, error) {
	sub, err := s.byToken(ctx, token)
	if err != nil {
		return nil, err
	}
	changed, err := s.repo.MarkVerified(ctx, sub.ID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if changed {
		if err := s.activity.Record(ctx, &domain.Activity{
			SubscriberID: sub.ID,
			Type:         domain.ActivityEmailVerified,
			Description:  "Email address verified",
		}); err != nil {
			return nil, err
		}
	}
	return s.repo.Get(ctx, sub.ID)
}

// UnsubscribeInput identifies an unsubscribe request. CampaignID is set
// when the request came from a campaign email's link.
type UnsubscribeInput struct {
	Token      string
	CampaignID string
	Reason     string
	IPAddress  string
	UserAgent  string
}

// Unsubscribe moves the token's subscriber to unsubscribed. Only the
// first call has effects; repeating it returns the subscriber unchanged.
func (s *Service) Unsubscribe(ctx context.Context, in UnsubscribeInput) (*domain.Subscriber, error) {
	sub, err := s.byToken(ctx, in.Token)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	reason := in.Reason
	if reason == "" {
		reason = "user_request"
	}
	entry := &domain.Activity{
		ID:           uuid.New().String(),
		SubscriberID: sub.ID,
		Type:         domain.ActivityUnsubscription,
		Description:  "Unsubscribed: " + reason,
		IPAddress:    in.IPAddress,
		UserAgent:    in.UserAgent,
		CreatedAt:    now,
	}
	if in.CampaignID != "" {
		cid := in.CampaignID
		entry.CampaignID = &cid
	}

	changed, err := s.repo.Unsubscribe(ctx, sub.ID, now, entry)
	if err != nil {
		return nil, err
	}
	if !changed {
		return sub, nil
	}
	if in.CampaignID != "" && entry.CampaignID == nil {
		logger.Warn("unsubscribe not attributed", "campaign_id", in.CampaignID, "subscriber_id", sub.ID)
	}

	logger.Info("subscriber unsubscribed", "subscriber_id", sub.ID, "campaign_id", in.CampaignID)
	return s.repo.Get(ctx, sub.ID)
}

// Get returns a single subscriber.
func (s *Service) Get(ctx context.Context, id string) (*domain.Subscriber, error) {
	return s.repo.Get(ctx, id)
}

// List returns subscribers matching the filter along with the total count.
func (s *Service) List(ctx context.Context, f Filter) ([]domain.Subscriber, int, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	total, err := s.repo.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	subs, err := s.repo.Find(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}

// UpdateProfile replaces the subscriber's names and interests.
func (s *Service) UpdateProfile(ctx context.Context, id, firstName, lastName string, interests []string) (*domain.Subscriber, error) {
	sub, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sub.FirstName = strings.TrimSpace(firstName)
	sub.LastName = strings.TrimSpace(lastName)
	sub.Interests = NormalizeTags(interests)
	sub.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// SetStatus is the admin bulk activate/deactivate action.
func (s *Service) SetStatus(ctx context.Context, ids []string, status domain.SubscriberStatus) (int, error) {
	if !status.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := s.repo.SetStatus(ctx, ids, status)
	if err != nil {
		return 0, err
	}
	logger.Info("subscriber status changed", "count", n, "status", status)
	return n, nil
}

// Purge permanently deletes a subscriber. This is the only hard delete;
// the subscriber's ledger entries stay so campaign counters still
// reconcile.
func (s *Service) Purge(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	logger.Info("subscriber purged", "subscriber_id", id)
	return nil
}

func (s *Service) byToken(ctx context.Context, token string) (*domain.Subscriber, error) {
	if _, err := uuid.Parse(token); err != nil {
		return nil, ErrInvalidToken
	}
	sub, err := s.repo.GetByToken(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidToken
	}
	return sub, err
}

// NewToken returns a random, unguessable subscription token.
func NewToken() string {
	return uuid.New().String()
}

// NormalizeTags lower-cases, trims and de-duplicates interest tags.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func sourceOrDefault(src string) string {
	if src == "" {
		return "website"
	}
	return src
}
