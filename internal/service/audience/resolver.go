// Package audience resolves a campaign's targeting rule to a concrete,
// de-duplicated recipient list.
//
// Base eligibility (active and verified) is applied before any targeting
// mode and cannot be widened by it. For an unchanged subscriber store the
// result is deterministic: the same rule yields the same recipients in the
// same order.
package audience

import (
	"context"
	"fmt"
	"sort"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/service/subscriber"
)

// Store is the subset of the subscriber store the resolver reads.
type Store interface {
	Find(ctx context.Context, f subscriber.Filter) ([]domain.Subscriber, error)
}

// Resolver computes recipient sets.
type Resolver struct {
	store Store
}

// NewResolver creates a resolver over the given subscriber store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the eligible subscribers selected by rule. The first
// mode that is set wins: send-to-all, then interest tags (any match),
// then the explicit list. A rule with no mode set selects nobody; that is
// an empty result, not an error.
func (r *Resolver) Resolve(ctx context.Context, rule domain.TargetRule) ([]domain.Subscriber, error) {
	f := subscriber.Eligible()
	tags := subscriber.NormalizeTags(rule.InterestTags)
	ids := nonEmpty(rule.SubscriberIDs)

	switch {
	case rule.SendToAll:
	case len(tags) > 0:
		f.AnyInterest = tags
	case len(ids) > 0:
		f.IDs = ids
	default:
		return nil, nil
	}

	found, err := r.store.Find(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("find subscribers: %w", err)
	}

	allowed := make(map[string]bool, len(ids))
	for _, id := range f.IDs {
		allowed[id] = true
	}

	seen := make(map[string]bool, len(found))
	out := make([]domain.Subscriber, 0, len(found))
	for _, s := range found {
		if seen[s.ID] || !s.Eligible() {
			continue
		}
		if len(f.AnyInterest) > 0 && !s.HasInterest(f.AnyInterest) {
			continue
		}
		if len(f.IDs) > 0 && !allowed[s.ID] {
			continue
		}
		seen[s.ID] = true
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Count returns the size of the audience rule would resolve to.
func (r *Resolver) Count(ctx context.Context, rule domain.TargetRule) (int, error) {
	subs, err := r.Resolve(ctx, rule)
	if err != nil {
		return 0, err
	}
	return len(subs), nil
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
