package ledger

import (
	"context"
	"fmt"

	"github.com/ignite/newsletter/internal/domain"
)

// CounterCheck compares one campaign counter with its ledger count.
type CounterCheck struct {
	Counter  string              `json:"counter"`
	Activity domain.ActivityType `json:"activity_type"`
	Stored   int                 `json:"stored"`
	Ledger   int                 `json:"ledger"`
	Match    bool                `json:"match"`
}

// Reconciliation is the result of comparing a campaign's counters with
// the ledger.
type Reconciliation struct {
	CampaignID string         `json:"campaign_id"`
	Consistent bool           `json:"consistent"`
	Checks     []CounterCheck `json:"checks"`
}

// reconciled lists the counters that have a one-to-one ledger entry type.
// Delivered has no ledger entry and is not reconciled.
var reconciled = []struct {
	counter  string
	activity domain.ActivityType
	value    func(domain.Counters) int
}{
	{"sent", domain.ActivityEmailSent, func(c domain.Counters) int { return c.Sent }},
	{"opened", domain.ActivityEmailOpened, func(c domain.Counters) int { return c.Opened }},
	{"clicked", domain.ActivityLinkClicked, func(c domain.Counters) int { return c.Clicked }},
	{"bounced", domain.ActivityBounce, func(c domain.Counters) int { return c.Bounced }},
	{"unsubscribed", domain.ActivityUnsubscription, func(c domain.Counters) int { return c.Unsubscribed }},
	{"spam_complaints", domain.ActivitySpamComplaint, func(c domain.Counters) int { return c.SpamComplaints }},
}

// Reconcile recounts the ledger for a campaign and reports every counter
// that disagrees with it.
func (s *Service) Reconcile(ctx context.Context, c *domain.Campaign) (*Reconciliation, error) {
	counts, err := s.repo.CountByType(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("count ledger for campaign %s: %w", c.ID, err)
	}

	r := &Reconciliation{CampaignID: c.ID, Consistent: true}
	for _, rc := range reconciled {
		check := CounterCheck{
			Counter:  rc.counter,
			Activity: rc.activity,
			Stored:   rc.value(c.Counters),
			Ledger:   counts[rc.activity],
		}
		check.Match = check.Stored == check.Ledger
		if !check.Match {
			r.Consistent = false
		}
		r.Checks = append(r.Checks, check)
	}
	return r, nil
}
