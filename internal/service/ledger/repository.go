package ledger

import (
	"context"

	"github.com/ignite/newsletter/internal/domain"
)

// Repository defines the data access contract for the activity ledger.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Append persists a new entry. An error means nothing was written.
	Append(ctx context.Context, a *domain.Activity) error

	// AppendSend persists an email_sent entry and increments the
	// subscriber's emails_sent counter in the same transaction.
	AppendSend(ctx context.Context, a *domain.Activity) error

	// List returns entries matching the filter, newest first.
	List(ctx context.Context, f ListFilter) ([]domain.Activity, error)

	// CountByType returns the number of entries per type for a campaign.
	CountByType(ctx context.Context, campaignID string) (map[domain.ActivityType]int, error)
}

// ListFilter controls pagination and filtering for ledger reads.
type ListFilter struct {
	SubscriberID string
	CampaignID   string
	Type         domain.ActivityType
	Limit        int
	Offset       int
}
