package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// StartSend runs a complete send of a draft or scheduled campaign:
// resolve the audience, claim the campaign by moving it to sending, fan
// deliveries out over a bounded pool, then record the final count and
// move to sent.
//
// Batch-level problems (not found, wrong state, empty audience) are
// returned before anything is sent. Per-recipient failures never fail the
// call; they are logged and summarized in the result. Once the campaign
// is claimed the batch runs to completion even if ctx is cancelled.
func (s *Service) StartSend(ctx context.Context, id string) (*domain.SendResult, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.CanStartSend() {
		return nil, &InvalidStateError{CampaignID: id, Current: c.Status, Op: "send"}
	}

	audience, err := s.audience.Resolve(ctx, c.Target)
	if err != nil {
		return nil, fmt.Errorf("resolve audience for campaign %s: %w", id, err)
	}
	if len(audience) == 0 {
		return nil, ErrEmptyAudience
	}

	if err := s.repo.BeginSend(ctx, id, len(audience)); err != nil {
		if errors.Is(err, ErrStateConflict) {
			return nil, s.stateError(ctx, id, "send")
		}
		return nil, fmt.Errorf("begin send: %w", err)
	}
	c.Status = domain.CampaignSending
	c.Recipients = len(audience)

	log := logger.With("dispatcher")
	log.Info().Str("campaign_id", id).Int("recipients", len(audience)).Int("pool", s.poolSize).Msg("campaign send started")

	runCtx := context.WithoutCancel(ctx)
	result := s.fanOut(runCtx, c, audience)

	sentAt := s.now().UTC()
	if err := s.repo.CompleteSend(runCtx, id, result.Sent, sentAt); err != nil {
		return nil, fmt.Errorf("complete send: %w", err)
	}
	result.SentAt = sentAt
	c.Status = domain.CampaignSent
	c.Sent = result.Sent
	c.SentAt = &sentAt

	log.Info().Str("campaign_id", id).Int("sent", result.Sent).Int("failed", result.Failed).Msg("campaign send completed")

	if s.archiver != nil {
		if err := s.archiver.ArchiveCampaign(runCtx, c); err != nil {
			log.Warn().Err(err).Str("campaign_id", id).Msg("archive failed")
		}
	}
	return result, nil
}

// fanOut delivers to every recipient with at most poolSize in flight and
// returns after the last delivery finishes. Workers never touch the
// campaign record; the successful count is aggregated here and written
// once by the caller.
func (s *Service) fanOut(ctx context.Context, c *domain.Campaign, audience []domain.Subscriber) *domain.SendResult {
	var (
		sent     atomic.Int64
		mu       sync.Mutex
		failures []domain.Outcome
	)

	var g errgroup.Group
	g.SetLimit(s.poolSize)

	for i := range audience {
		sub := &audience[i]
		g.Go(func() error {
			out := s.deliverer.Deliver(ctx, c, sub)
			if out.Success {
				sent.Add(1)
				return nil
			}
			logger.Warn("delivery failed",
				"campaign_id", c.ID,
				"subscriber_id", sub.ID,
				"email", sub.Email,
				"reason", out.Reason,
			)
			mu.Lock()
			failures = append(failures, out)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return &domain.SendResult{
		CampaignID: c.ID,
		Recipients: len(audience),
		Sent:       int(sent.Load()),
		Failed:     len(failures),
		Failures:   failures,
	}
}
