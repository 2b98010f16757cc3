package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/service/campaign"
	"github.com/ignite/newsletter/internal/service/ledger"
	"github.com/ignite/newsletter/internal/service/subscriber"
)

// ActivityRepo implements ledger.Repository.
type ActivityRepo struct{ s *Store }

func (r *ActivityRepo) Append(_ context.Context, a *domain.Activity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.appendActivity(a)
}

func (r *ActivityRepo) AppendSend(_ context.Context, a *domain.Activity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.subscribers[a.SubscriberID]
	if !ok {
		return subscriber.ErrNotFound
	}
	if err := r.s.appendActivity(a); err != nil {
		return err
	}
	sub.EmailsSent++
	return nil
}

func (r *ActivityRepo) List(_ context.Context, f ledger.ListFilter) ([]domain.Activity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Activity
	for _, a := range r.s.activities {
		if f.SubscriberID != "" && a.SubscriberID != f.SubscriberID {
			continue
		}
		if f.CampaignID != "" && (a.CampaignID == nil || *a.CampaignID != f.CampaignID) {
			continue
		}
		if f.Type != "" && a.Type != f.Type {
			continue
		}
		out = append(out, copyActivity(a))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, f.Limit, f.Offset), nil
}

func (r *ActivityRepo) CountByType(_ context.Context, campaignID string) (map[domain.ActivityType]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := make(map[domain.ActivityType]int)
	for _, a := range r.s.activities {
		if a.CampaignID != nil && *a.CampaignID == campaignID {
			counts[a.Type]++
		}
	}
	return counts, nil
}

// appendActivity stores a copy of a. Callers hold the lock.
func (s *Store) appendActivity(a *domain.Activity) error {
	if a.ID == "" {
		return fmt.Errorf("id required")
	}
	if _, ok := s.subscribers[a.SubscriberID]; !ok {
		return fmt.Errorf("append activity: %w", subscriber.ErrNotFound)
	}
	if a.CampaignID != nil {
		if _, ok := s.campaigns[*a.CampaignID]; !ok {
			return fmt.Errorf("append activity: %w", campaign.ErrNotFound)
		}
	}
	s.activities = append(s.activities, copyActivity(*a))
	return nil
}

func (s *Store) hasActivity(subscriberID, campaignID string, t domain.ActivityType) bool {
	for _, a := range s.activities {
		if a.SubscriberID == subscriberID && a.Type == t && a.CampaignID != nil && *a.CampaignID == campaignID {
			return true
		}
	}
	return false
}

func copyActivity(a domain.Activity) domain.Activity {
	if a.CampaignID != nil {
		id := *a.CampaignID
		a.CampaignID = &id
	}
	return a
}
