package campaign

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/pkg/logger"
	"github.com/ignite/newsletter/internal/service/metrics"
)

// DefaultPoolSize bounds concurrent deliveries when none is configured.
const DefaultPoolSize = 10

// AudienceResolver computes the concrete recipients for a targeting rule.
type AudienceResolver interface {
	Resolve(ctx context.Context, rule domain.TargetRule) ([]domain.Subscriber, error)
}

// Deliverer renders and sends one campaign email. Deliver never returns
// an error: failures are reported in the outcome.
type Deliverer interface {
	Deliver(ctx context.Context, c *domain.Campaign, s *domain.Subscriber) domain.Outcome
	SendTest(ctx context.Context, c *domain.Campaign, address string) error
}

// TemplateSource hands out template content for new campaigns and counts
// the use.
type TemplateSource interface {
	Use(ctx context.Context, id string) (*domain.Template, error)
}

// Archiver stores a copy of a finished campaign's results.
type Archiver interface {
	ArchiveCampaign(ctx context.Context, c *domain.Campaign) error
}

// Service implements campaign business logic and dispatch. All public
// methods are safe for concurrent use if the underlying repository is
// concurrency-safe.
type Service struct {
	repo      Repository
	audience  AudienceResolver
	deliverer Deliverer
	templates TemplateSource
	archiver  Archiver
	poolSize  int
	now       func() time.Time
}

// NewService creates a campaign service backed by the given repository.
func NewService(repo Repository, audience AudienceResolver, deliverer Deliverer) *Service {
	return &Service{
		repo:      repo,
		audience:  audience,
		deliverer: deliverer,
		poolSize:  DefaultPoolSize,
		now:       time.Now,
	}
}

// SetPoolSize sets the maximum number of concurrent deliveries per send.
func (s *Service) SetPoolSize(n int) {
	if n > 0 {
		s.poolSize = n
	}
}

// SetTemplates enables creating campaigns from stored templates.
func (s *Service) SetTemplates(t TemplateSource) { s.templates = t }

// SetArchiver enables archiving results after every completed send.
func (s *Service) SetArchiver(a Archiver) { s.archiver = a }

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name         string              `json:"name"`
	Type         domain.CampaignType `json:"campaign_type"`
	Subject      string              `json:"subject"`
	Preheader    string              `json:"preheader"`
	HTMLContent  string              `json:"html_content"`
	PlainContent string              `json:"plain_text_content"`
	FromName     string              `json:"from_name"`
	FromEmail    string              `json:"from_email"`
	ReplyTo      string              `json:"reply_to_email"`
	Target       domain.TargetRule   `json:"target"`
	TemplateID   string              `json:"template_id"`
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, id)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Campaign, int, error) {
	return s.repo.List(ctx, f)
}

// Create validates and persists a new campaign in draft status. When a
// template is named, its subject and content fill any empty fields.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Campaign, error) {
	if in.TemplateID != "" {
		if s.templates == nil {
			return nil, validationf("templates are not available")
		}
		t, err := s.templates.Use(ctx, in.TemplateID)
		if err != nil {
			return nil, err
		}
		if in.Subject == "" {
			in.Subject = t.SubjectTemplate
		}
		if in.HTMLContent == "" {
			in.HTMLContent = t.HTMLContent
		}
		if in.PlainContent == "" {
			in.PlainContent = t.PlainContent
		}
	}

	if in.Type == "" {
		in.Type = domain.CampaignNewsletter
	}
	if err := validate(in); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	c := &domain.Campaign{
		ID:           uuid.New().String(),
		Name:         strings.TrimSpace(in.Name),
		Type:         in.Type,
		Subject:      in.Subject,
		Preheader:    in.Preheader,
		HTMLContent:  in.HTMLContent,
		PlainContent: in.PlainContent,
		FromName:     in.FromName,
		FromEmail:    in.FromEmail,
		ReplyTo:      in.ReplyTo,
		Target:       in.Target,
		Status:       domain.CampaignDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	logger.Info("campaign created", "campaign_id", c.ID, "name", c.Name)
	return c, nil
}

func validate(in CreateInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return validationf("name is required")
	}
	if in.Subject == "" {
		return validationf("subject is required")
	}
	if in.HTMLContent == "" {
		return validationf("html content is required")
	}
	if !in.Type.Valid() {
		return validationf("unknown campaign type %q", in.Type)
	}
	if in.FromEmail == "" {
		return validationf("from email is required")
	}
	if _, err := mail.ParseAddress(in.FromEmail); err != nil {
		return validationf("from email %q is not an address", in.FromEmail)
	}
	if in.ReplyTo != "" {
		if _, err := mail.ParseAddress(in.ReplyTo); err != nil {
			return validationf("reply-to %q is not an address", in.ReplyTo)
		}
	}
	return nil
}

// Update modifies an editable campaign's content or targeting.
func (s *Service) Update(ctx context.Context, id string, u UpdateFields) error {
	err := s.repo.Update(ctx, id, u)
	if errors.Is(err, ErrStateConflict) {
		return s.stateError(ctx, id, "edit")
	}
	return err
}

// Delete removes a draft or cancelled campaign.
func (s *Service) Delete(ctx context.Context, id string) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignDraft && c.Status != domain.CampaignCancelled {
		return &InvalidStateError{CampaignID: id, Current: c.Status, Op: "delete"}
	}
	return s.repo.Delete(ctx, id)
}

// Schedule arranges for the scheduler to start the send at `at`.
func (s *Service) Schedule(ctx context.Context, id string, at time.Time) (*domain.Campaign, error) {
	if !at.After(s.now()) {
		return nil, validationf("scheduled time %s is not in the future", at.Format(time.RFC3339))
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.CampaignDraft && c.Status != domain.CampaignScheduled {
		return nil, &InvalidStateError{CampaignID: id, Current: c.Status, Op: "schedule"}
	}
	if err := s.repo.Schedule(ctx, id, at.UTC()); err != nil {
		if errors.Is(err, ErrStateConflict) {
			return nil, s.stateError(ctx, id, "schedule")
		}
		return nil, err
	}
	logger.Info("campaign scheduled", "campaign_id", id, "scheduled_at", at.UTC().Format(time.RFC3339))
	return s.repo.Get(ctx, id)
}

// Cancel stops a draft or scheduled campaign. A campaign that is already
// sending runs to completion.
func (s *Service) Cancel(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.CanCancel() {
		return nil, &InvalidStateError{CampaignID: id, Current: c.Status, Op: "cancel"}
	}
	err = s.repo.Transition(ctx, id,
		[]domain.CampaignStatus{domain.CampaignDraft, domain.CampaignScheduled},
		domain.CampaignCancelled)
	if errors.Is(err, ErrStateConflict) {
		return nil, s.stateError(ctx, id, "cancel")
	}
	if err != nil {
		return nil, err
	}
	logger.Info("campaign cancelled", "campaign_id", id)
	c.Status = domain.CampaignCancelled
	return c, nil
}

// Duplicate copies a campaign's content and targeting into a new draft.
func (s *Service) Duplicate(ctx context.Context, id string) (*domain.Campaign, error) {
	src, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	dup := *src
	dup.ID = uuid.New().String()
	dup.Name = "Copy of " + src.Name
	dup.Status = domain.CampaignDraft
	dup.ScheduledAt = nil
	dup.SentAt = nil
	dup.Counters = domain.Counters{}
	dup.Target.InterestTags = append([]string(nil), src.Target.InterestTags...)
	dup.Target.SubscriberIDs = append([]string(nil), src.Target.SubscriberIDs...)
	dup.CreatedAt = now
	dup.UpdatedAt = now
	if err := s.repo.Create(ctx, &dup); err != nil {
		return nil, err
	}
	logger.Info("campaign duplicated", "campaign_id", dup.ID, "source_id", id)
	return &dup, nil
}

// Stats returns derived rates for a campaign.
func (s *Service) Stats(ctx context.Context, id string) (*domain.CampaignStats, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	st := metrics.CampaignStats(c)
	return &st, nil
}

// SendTest renders the campaign for a synthetic recipient and sends it to
// address. No state, counter or ledger entry changes.
func (s *Service) SendTest(ctx context.Context, id, address string) error {
	address = domain.NormalizeEmail(address)
	if _, err := mail.ParseAddress(address); err != nil {
		return validationf("test address %q is not an address", address)
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.deliverer.SendTest(ctx, c, address); err != nil {
		return err
	}
	logger.Info("test email sent", "campaign_id", id, "email", address)
	return nil
}

// DueForSend returns scheduled campaigns whose time has come.
func (s *Service) DueForSend(ctx context.Context, limit int) ([]domain.Campaign, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.repo.ListDue(ctx, s.now().UTC(), limit)
}

func (s *Service) stateError(ctx context.Context, id, op string) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	return &InvalidStateError{CampaignID: id, Current: c.Status, Op: op}
}
