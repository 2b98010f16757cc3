package campaign

import (
	"context"
	"time"

	"github.com/ignite/newsletter/internal/domain"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use. Every status change is
// conditional on the current status so that concurrent callers cannot
// both win a transition.
type Repository interface {
	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns campaigns matching the given filter, ordered by created_at DESC.
	List(ctx context.Context, filter ListFilter) ([]domain.Campaign, int, error)

	// Create inserts a new campaign.
	Create(ctx context.Context, c *domain.Campaign) error

	// Update modifies an editable (draft or scheduled) campaign. Only
	// non-nil fields are applied. Returns ErrStateConflict if the campaign
	// is no longer editable.
	Update(ctx context.Context, id string, u UpdateFields) error

	// Delete removes a draft or cancelled campaign.
	Delete(ctx context.Context, id string) error

	// Transition moves the campaign to status `to` if its current status
	// is one of `from`. Returns ErrStateConflict otherwise.
	Transition(ctx context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus) error

	// Schedule sets scheduled_at and moves a draft or scheduled campaign
	// to scheduled.
	Schedule(ctx context.Context, id string, at time.Time) error

	// BeginSend atomically moves a draft or scheduled campaign to sending
	// and records the recipient count. Returns ErrStateConflict if another
	// caller got there first.
	BeginSend(ctx context.Context, id string, recipients int) error

	// CompleteSend atomically moves a sending campaign to sent with its
	// final sent count and sent_at.
	CompleteSend(ctx context.Context, id string, sent int, at time.Time) error

	// ListDue returns scheduled campaigns whose scheduled_at is at or
	// before now, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error)
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status string
	Search string
	Limit  int
	Offset int
}

// UpdateFields holds the mutable fields for a campaign update.
// Nil fields are not applied.
type UpdateFields struct {
	Name         *string
	Type         *domain.CampaignType
	Subject      *string
	Preheader    *string
	HTMLContent  *string
	PlainContent *string
	FromName     *string
	FromEmail    *string
	ReplyTo      *string
	Target       *domain.TargetRule
}
