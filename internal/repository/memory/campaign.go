package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository.
type CampaignRepo struct{ s *Store }

func (r *CampaignRepo) Get(_ context.Context, id string) (*domain.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	return copyCampaign(c), nil
}

func (r *CampaignRepo) List(_ context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Campaign
	for _, c := range r.s.campaigns {
		if f.Status != "" && string(c.Status) != f.Status {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, *copyCampaign(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	total := len(out)
	return page(out, f.Limit, f.Offset), total, nil
}

func (r *CampaignRepo) Create(_ context.Context, c *domain.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c.ID == "" {
		return fmt.Errorf("id required")
	}
	r.s.campaigns[c.ID] = copyCampaign(c)
	return nil
}

func (r *CampaignRepo) Update(_ context.Context, id string, u campaign.UpdateFields) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	if c.Status != domain.CampaignDraft && c.Status != domain.CampaignScheduled {
		return campaign.ErrStateConflict
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&c.Name, u.Name)
	set(&c.Subject, u.Subject)
	set(&c.Preheader, u.Preheader)
	set(&c.HTMLContent, u.HTMLContent)
	set(&c.PlainContent, u.PlainContent)
	set(&c.FromName, u.FromName)
	set(&c.FromEmail, u.FromEmail)
	set(&c.ReplyTo, u.ReplyTo)
	if u.Type != nil {
		c.Type = *u.Type
	}
	if u.Target != nil {
		c.Target = copyCampaign(&domain.Campaign{Target: *u.Target}).Target
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *CampaignRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	if c.Status != domain.CampaignDraft && c.Status != domain.CampaignCancelled {
		return campaign.ErrStateConflict
	}
	for _, a := range r.s.activities {
		if a.CampaignID != nil && *a.CampaignID == id {
			return campaign.ErrStateConflict
		}
	}
	delete(r.s.campaigns, id)
	for k := range r.s.deliveries {
		if k.campaignID == id {
			delete(r.s.deliveries, k)
		}
	}
	return nil
}

func (r *CampaignRepo) Transition(_ context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, err := r.claim(id, from...)
	if err != nil {
		return err
	}
	c.Status = to
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *CampaignRepo) Schedule(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, err := r.claim(id, domain.CampaignDraft, domain.CampaignScheduled)
	if err != nil {
		return err
	}
	c.Status = domain.CampaignScheduled
	c.ScheduledAt = &at
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *CampaignRepo) BeginSend(_ context.Context, id string, recipients int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, err := r.claim(id, domain.CampaignDraft, domain.CampaignScheduled)
	if err != nil {
		return err
	}
	c.Status = domain.CampaignSending
	c.Recipients = recipients
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *CampaignRepo) CompleteSend(_ context.Context, id string, sent int, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, err := r.claim(id, domain.CampaignSending)
	if err != nil {
		return err
	}
	c.Status = domain.CampaignSent
	c.Sent = sent
	c.SentAt = &at
	c.UpdatedAt = at
	return nil
}

func (r *CampaignRepo) ListDue(_ context.Context, now time.Time, limit int) ([]domain.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Campaign
	for _, c := range r.s.campaigns {
		if c.Status == domain.CampaignScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			out = append(out, *copyCampaign(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(*out[j].ScheduledAt) })
	return page(out, limit, 0), nil
}

// claim returns the stored campaign if its status is one of from.
// Callers hold the lock.
func (r *CampaignRepo) claim(id string, from ...domain.CampaignStatus) (*domain.Campaign, error) {
	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	if !slices.Contains(from, c.Status) {
		return nil, campaign.ErrStateConflict
	}
	return c, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
