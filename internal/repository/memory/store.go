// Package memory holds mutex-guarded in-memory implementations of every
// repository. It backs the service tests and the server's no-database
// development mode; all status changes use the same compare-and-set
// rules as the Postgres implementations.
package memory

import (
	"sync"

	"github.com/ignite/newsletter/internal/domain"
)

// Store is the shared state. The typed views returned by its accessors
// all lock the same mutex, so effects spanning tables are atomic.
type Store struct {
	mu          sync.Mutex
	campaigns   map[string]*domain.Campaign
	subscribers map[string]*domain.Subscriber
	activities  []domain.Activity
	templates   map[string]*domain.Template
	deliveries  map[deliveryKey]struct{}
}

// deliveryKey marks a campaign email confirmed delivered to a subscriber.
type deliveryKey struct{ campaignID, subscriberID string }

func NewStore() *Store {
	return &Store{
		campaigns:   make(map[string]*domain.Campaign),
		subscribers: make(map[string]*domain.Subscriber),
		templates:   make(map[string]*domain.Template),
		deliveries:  make(map[deliveryKey]struct{}),
	}
}

func (s *Store) Campaigns() *CampaignRepo     { return &CampaignRepo{s} }
func (s *Store) Subscribers() *SubscriberRepo { return &SubscriberRepo{s} }
func (s *Store) Activities() *ActivityRepo    { return &ActivityRepo{s} }
func (s *Store) Templates() *TemplateRepo     { return &TemplateRepo{s} }
func (s *Store) Engagement() *EngagementRepo  { return &EngagementRepo{s} }

func copyCampaign(c *domain.Campaign) *domain.Campaign {
	cp := *c
	cp.Target.InterestTags = append([]string(nil), c.Target.InterestTags...)
	cp.Target.SubscriberIDs = append([]string(nil), c.Target.SubscriberIDs...)
	return &cp
}

func copySubscriber(s *domain.Subscriber) *domain.Subscriber {
	cp := *s
	cp.Interests = append([]string(nil), s.Interests...)
	return &cp
}
