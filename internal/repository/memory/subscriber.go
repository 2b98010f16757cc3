package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/service/subscriber"
)

// SubscriberRepo implements subscriber.Repository and audience.Store.
type SubscriberRepo struct{ s *Store }

func (r *SubscriberRepo) Get(_ context.Context, id string) (*domain.Subscriber, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.subscribers[id]
	if !ok {
		return nil, subscriber.ErrNotFound
	}
	return copySubscriber(sub), nil
}

func (r *SubscriberRepo) GetByToken(_ context.Context, token string) (*domain.Subscriber, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sub := range r.s.subscribers {
		if sub.Token == token {
			return copySubscriber(sub), nil
		}
	}
	return nil, subscriber.ErrNotFound
}

func (r *SubscriberRepo) Find(_ context.Context, f subscriber.Filter) ([]domain.Subscriber, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := r.match(f)
	return page(out, f.Limit, f.Offset), nil
}

func (r *SubscriberRepo) Count(_ context.Context, f subscriber.Filter) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.match(f)), nil
}

func (r *SubscriberRepo) match(f subscriber.Filter) []domain.Subscriber {
	search := strings.ToLower(f.Search)
	var out []domain.Subscriber
	for _, sub := range r.s.subscribers {
		if f.Status != "" && sub.Status != f.Status {
			continue
		}
		if f.Verified != nil && sub.IsVerified != *f.Verified {
			continue
		}
		if len(f.AnyInterest) > 0 && !sub.HasInterest(f.AnyInterest) {
			continue
		}
		if len(f.IDs) > 0 && !slices.Contains(f.IDs, sub.ID) {
			continue
		}
		if search != "" &&
			!strings.Contains(sub.Email, search) &&
			!strings.Contains(strings.ToLower(sub.FirstName+" "+sub.LastName), search) {
			continue
		}
		out = append(out, *copySubscriber(sub))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *SubscriberRepo) Create(_ context.Context, sub *domain.Subscriber) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if sub.ID == "" {
		return fmt.Errorf("id required")
	}
	for _, existing := range r.s.subscribers {
		if existing.Email == sub.Email {
			return subscriber.ErrDuplicateEmail
		}
	}
	r.s.subscribers[sub.ID] = copySubscriber(sub)
	return nil
}

func (r *SubscriberRepo) Update(_ context.Context, sub *domain.Subscriber) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.subscribers[sub.ID]
	if !ok {
		return subscriber.ErrNotFound
	}
	cur.FirstName = sub.FirstName
	cur.LastName = sub.LastName
	cur.Interests = append([]string(nil), sub.Interests...)
	cur.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *SubscriberRepo) MarkVerified(_ context.Context, id string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.subscribers[id]
	if !ok {
		return false, subscriber.ErrNotFound
	}
	if sub.IsVerified {
		return false, nil
	}
	sub.IsVerified = true
	sub.VerifiedAt = &at
	sub.UpdatedAt = at
	return true, nil
}

func (r *SubscriberRepo) MarkVerificationSent(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.subscribers[id]
	if !ok {
		return subscriber.ErrNotFound
	}
	sub.VerificationSentAt = &at
	return nil
}

func (r *SubscriberRepo) Unsubscribe(_ context.Context, id string, at time.Time, entry *domain.Activity) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.subscribers[id]
	if !ok {
		return false, subscriber.ErrNotFound
	}
	if sub.Status == domain.SubscriberUnsubscribed {
		return false, nil
	}

	var attributed *domain.Campaign
	if entry.CampaignID != nil {
		c, ok := r.s.campaigns[*entry.CampaignID]
		if ok && (c.Status == domain.CampaignSending || c.Status == domain.CampaignSent) {
			attributed = c
		} else {
			entry.CampaignID = nil
		}
	}
	if err := r.s.appendActivity(entry); err != nil {
		return false, err
	}
	if attributed != nil {
		attributed.Unsubscribed++
	}
	sub.Status = domain.SubscriberUnsubscribed
	sub.UnsubscribedAt = &at
	sub.UpdatedAt = at
	return true, nil
}

func (r *SubscriberRepo) SetStatus(_ context.Context, ids []string, status domain.SubscriberStatus) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now().UTC()
	n := 0
	for _, id := range ids {
		sub, ok := r.s.subscribers[id]
		if !ok || sub.Status == status {
			continue
		}
		sub.Status = status
		sub.UpdatedAt = now
		n++
	}
	return n, nil
}

func (r *SubscriberRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.subscribers[id]; !ok {
		return subscriber.ErrNotFound
	}
	delete(r.s.subscribers, id)
	for i := range r.s.activities {
		if r.s.activities[i].SubscriberID == id {
			r.s.activities[i].SubscriberID = ""
		}
	}
	for k := range r.s.deliveries {
		if k.subscriberID == id {
			delete(r.s.deliveries, k)
		}
	}
	return nil
}
