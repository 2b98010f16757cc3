package subscriber

import (
	"context"
	"time"

	"github.com/ignite/newsletter/internal/domain"
)

// Repository defines the data access contract for subscribers. It is the
// subscriber store: pure data access with filters, no business rules.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single subscriber. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Subscriber, error)

	// GetByToken looks a subscriber up by unsubscribe token.
	GetByToken(ctx context.Context, token string) (*domain.Subscriber, error)

	// Find returns subscribers matching the filter ordered by id.
	Find(ctx context.Context, f Filter) ([]domain.Subscriber, error)

	// Count returns the number of subscribers matching the filter,
	// ignoring Limit and Offset.
	Count(ctx context.Context, f Filter) (int, error)

	// Create inserts a new subscriber. Returns ErrDuplicateEmail if the
	// email is taken.
	Create(ctx context.Context, s *domain.Subscriber) error

	// Update writes the profile fields (names, interests).
	Update(ctx context.Context, s *domain.Subscriber) error

	// MarkVerified sets is_verified if not already set. Reports whether
	// the row changed.
	MarkVerified(ctx context.Context, id string, at time.Time) (bool, error)

	// MarkVerificationSent stamps verification_sent_at.
	MarkVerificationSent(ctx context.Context, id string, at time.Time) error

	// Unsubscribe moves the subscriber to unsubscribed unless it already
	// is. In the same transaction it appends entry and, when entry names
	// a campaign that is sending or sent, adds one to that campaign's
	// unsubscribed counter. Any other campaign id is cleared from entry
	// before it is written. Reports whether the row changed; when it did
	// not, nothing is written.
	Unsubscribe(ctx context.Context, id string, at time.Time, entry *domain.Activity) (bool, error)

	// SetStatus applies status to every listed subscriber and returns the
	// number of rows changed.
	SetStatus(ctx context.Context, ids []string, status domain.SubscriberStatus) (int, error)

	// Delete hard-deletes a subscriber. Its ledger entries are kept with
	// the subscriber reference cleared.
	Delete(ctx context.Context, id string) error
}

// Filter selects subscribers. Zero-value fields are not applied; when
// several are set they are ANDed.
type Filter struct {
	Status      domain.SubscriberStatus
	Verified    *bool
	AnyInterest []string // at least one tag must match
	IDs         []string
	Search      string // substring of email or name
	Limit       int
	Offset      int
}

// Eligible returns the base filter every campaign audience starts from.
func Eligible() Filter {
	verified := true
	return Filter{Status: domain.SubscriberActive, Verified: &verified}
}
