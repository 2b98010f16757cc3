package memory

import (
	"context"
	"fmt"

	"github.com/ignite/newsletter/internal/service/engagement"
)

// EngagementRepo implements engagement.Repository.
type EngagementRepo struct{ s *Store }

func (r *EngagementRepo) Apply(_ context.Context, e engagement.Effect) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.campaigns[e.CampaignID]
	if !ok {
		return false, fmt.Errorf("%w: unknown campaign %s", engagement.ErrInvalidEvent, e.CampaignID)
	}
	sub, ok := r.s.subscribers[e.SubscriberID]
	if !ok {
		return false, fmt.Errorf("%w: unknown subscriber %s", engagement.ErrInvalidEvent, e.SubscriberID)
	}
	if e.Unique && e.Activity != nil && r.s.hasActivity(e.SubscriberID, e.CampaignID, e.Activity.Type) {
		return false, nil
	}
	key := deliveryKey{campaignID: e.CampaignID, subscriberID: e.SubscriberID}
	if e.Delivery {
		if _, seen := r.s.deliveries[key]; seen {
			return false, nil
		}
	}

	counters := c.Counters
	if e.CampaignCounter != "" && !counters.Increment(e.CampaignCounter) {
		return false, fmt.Errorf("unknown counter %q", e.CampaignCounter)
	}
	if e.Activity != nil {
		if err := r.s.appendActivity(e.Activity); err != nil {
			return false, err
		}
	}
	c.Counters = counters
	if e.Delivery {
		r.s.deliveries[key] = struct{}{}
	}
	if e.SubscriberOpened {
		sub.EmailsOpened++
	}
	if e.SubscriberClicked {
		sub.LinksClicked++
	}
	if e.Touch {
		at := e.At
		sub.LastEngagement = &at
	}
	if e.SubscriberStatus != "" {
		sub.Status = e.SubscriberStatus
		sub.UpdatedAt = e.At
	}
	return true, nil
}
