// Package engagement records post-send events (opens, clicks, bounces,
// complaints, deliveries) against the ledger and the counters they move.
//
// Each event is applied in one transaction: the ledger entry, the
// subscriber counters and the campaign counter either all land or none
// do. Opens, bounces and complaints count once per subscriber and
// campaign; repeats are acknowledged and ignored.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/pkg/logger"
)

// EventType is the kind of engagement event.
type EventType string

const (
	EventOpen      EventType = "open"
	EventClick     EventType = "click"
	EventBounce    EventType = "bounce"
	EventComplaint EventType = "complaint"
	EventDelivered EventType = "delivered"
)

// ErrInvalidEvent is returned for events missing required fields.
var ErrInvalidEvent = errors.New("invalid engagement event")

// Event is a single engagement signal.
type Event struct {
	Type         EventType `json:"type"`
	CampaignID   string    `json:"campaign_id"`
	SubscriberID string    `json:"subscriber_id"`
	URL          string    `json:"url,omitempty"`
	Detail       string    `json:"detail,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	At           time.Time `json:"at"`
}

// Effect is everything one event changes.
type Effect struct {
	CampaignID   string
	SubscriberID string

	// Activity is appended to the ledger; nil when the event has no
	// ledger entry type.
	Activity *domain.Activity

	// Unique skips the whole effect when the subscriber already has an
	// entry of Activity.Type for the campaign.
	Unique bool

	// Delivery records a delivery marker for the subscriber and campaign
	// and skips the whole effect when one already exists.
	Delivery bool

	CampaignCounter   domain.CounterField
	SubscriberOpened  bool
	SubscriberClicked bool
	Touch             bool // set last_engagement to At
	SubscriberStatus  domain.SubscriberStatus
	At                time.Time
}

// Repository applies effects atomically.
type Repository interface {
	// Apply writes e in one transaction. It reports false when e was
	// unique or a delivery and had already been applied.
	Apply(ctx context.Context, e Effect) (bool, error)
}

// Service turns events into effects.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates an engagement service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Record applies ev. It reports whether anything changed; a repeated
// unique event returns false and no error.
func (s *Service) Record(ctx context.Context, ev Event) (bool, error) {
	e, err := s.effect(ev)
	if err != nil {
		return false, err
	}
	applied, err := s.repo.Apply(ctx, e)
	if err != nil {
		return false, fmt.Errorf("apply %s event: %w", ev.Type, err)
	}
	if applied {
		logger.Debug("engagement recorded", "type", ev.Type, "campaign_id", ev.CampaignID, "subscriber_id", ev.SubscriberID)
	}
	return applied, nil
}

func (s *Service) effect(ev Event) (Effect, error) {
	if ev.CampaignID == "" || ev.SubscriberID == "" {
		return Effect{}, fmt.Errorf("%w: campaign and subscriber are required", ErrInvalidEvent)
	}
	at := ev.At
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()

	e := Effect{CampaignID: ev.CampaignID, SubscriberID: ev.SubscriberID, At: at}
	activity := func(t domain.ActivityType, desc string) *domain.Activity {
		cid := ev.CampaignID
		return &domain.Activity{
			ID:           uuid.New().String(),
			SubscriberID: ev.SubscriberID,
			CampaignID:   &cid,
			Type:         t,
			Description:  desc,
			ClickedURL:   ev.URL,
			IPAddress:    ev.IPAddress,
			UserAgent:    ev.UserAgent,
			CreatedAt:    at,
		}
	}

	switch ev.Type {
	case EventOpen:
		e.Activity = activity(domain.ActivityEmailOpened, "Email opened")
		e.Unique = true
		e.CampaignCounter = domain.CounterOpened
		e.SubscriberOpened = true
		e.Touch = true
	case EventClick:
		if ev.URL == "" {
			return Effect{}, fmt.Errorf("%w: click without url", ErrInvalidEvent)
		}
		e.Activity = activity(domain.ActivityLinkClicked, "Link clicked")
		e.CampaignCounter = domain.CounterClicked
		e.SubscriberClicked = true
		e.Touch = true
	case EventBounce:
		e.Activity = activity(domain.ActivityBounce, describe("Email bounced", ev.Detail))
		e.Unique = true
		e.CampaignCounter = domain.CounterBounced
		e.SubscriberStatus = domain.SubscriberBounced
	case EventComplaint:
		e.Activity = activity(domain.ActivitySpamComplaint, describe("Marked as spam", ev.Detail))
		e.Unique = true
		e.CampaignCounter = domain.CounterSpamComplaints
		e.SubscriberStatus = domain.SubscriberSpamComplaint
	case EventDelivered:
		e.Delivery = true
		e.CampaignCounter = domain.CounterDelivered
	default:
		return Effect{}, fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, ev.Type)
	}
	return e, nil
}

func describe(base, detail string) string {
	if detail == "" {
		return base
	}
	return base + ": " + detail
}
