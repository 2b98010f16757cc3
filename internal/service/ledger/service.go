package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/newsletter/internal/domain"
)

// Service appends to and reads from the activity ledger.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a ledger service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Record validates and appends an entry. ID and CreatedAt are assigned
// when empty.
func (s *Service) Record(ctx context.Context, a *domain.Activity) error {
	if err := s.prepare(a); err != nil {
		return err
	}
	if err := s.repo.Append(ctx, a); err != nil {
		return fmt.Errorf("append %s activity: %w", a.Type, err)
	}
	return nil
}

// RecordSend appends the email_sent entry for one successful delivery and
// bumps the subscriber's emails_sent counter with it.
func (s *Service) RecordSend(ctx context.Context, subscriberID, campaignID, subject string) error {
	a := &domain.Activity{
		SubscriberID: subscriberID,
		CampaignID:   &campaignID,
		Type:         domain.ActivityEmailSent,
		Description:  "Campaign email sent",
		EmailSubject: subject,
	}
	if err := s.prepare(a); err != nil {
		return err
	}
	if err := s.repo.AppendSend(ctx, a); err != nil {
		return fmt.Errorf("append email_sent activity: %w", err)
	}
	return nil
}

// List returns ledger entries matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Activity, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	return s.repo.List(ctx, f)
}

func (s *Service) prepare(a *domain.Activity) error {
	if a.SubscriberID == "" {
		return fmt.Errorf("%w: subscriber is required", ErrInvalidActivity)
	}
	if !a.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidActivity, a.Type)
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	return nil
}
