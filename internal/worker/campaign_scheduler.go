// Package worker holds the background loops that run beside the API:
// the scheduled-send poller.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/pkg/distlock"
	"github.com/ignite/newsletter/internal/pkg/logger"
	"github.com/ignite/newsletter/internal/service/campaign"
)

const (
	// DefaultSchedulerPollInterval is how often to check for due campaigns.
	DefaultSchedulerPollInterval = 30 * time.Second

	// DueBatchSize caps the campaigns picked up per poll.
	DueBatchSize = 10
)

// CampaignSender is the slice of the campaign service the scheduler uses.
type CampaignSender interface {
	DueForSend(ctx context.Context, limit int) ([]domain.Campaign, error)
	StartSend(ctx context.Context, id string) (*domain.SendResult, error)
}

// LockFactory hands out per-campaign locks.
type LockFactory interface {
	Lock(key string) distlock.DistLock
}

// SchedulerStats are the running totals since Start.
type SchedulerStats struct {
	Started int64 `json:"started"`
	Skipped int64 `json:"skipped"`
	Errors  int64 `json:"errors"`
}

// CampaignScheduler polls for scheduled campaigns whose time has come
// and starts their sends. Each pickup holds a distributed lock on the
// campaign, so several scheduler processes can run side by side.
type CampaignScheduler struct {
	campaigns    CampaignSender
	locks        LockFactory
	workerID     string
	pollInterval time.Duration
	log          zerolog.Logger

	started int64
	skipped int64
	errors  int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewCampaignScheduler creates a scheduler. A non-positive interval takes
// the default.
func NewCampaignScheduler(campaigns CampaignSender, locks LockFactory, pollInterval time.Duration) *CampaignScheduler {
	if pollInterval <= 0 {
		pollInterval = DefaultSchedulerPollInterval
	}
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "newsletter-worker"
	}
	return &CampaignScheduler{
		campaigns:    campaigns,
		locks:        locks,
		workerID:     fmt.Sprintf("scheduler-%s-%d", hostname, time.Now().UnixNano()%10000),
		pollInterval: pollInterval,
		log:          logger.With("scheduler"),
	}
}

// Start begins the polling loop.
func (cs *CampaignScheduler) Start() error {
	cs.mu.Lock()
	if cs.running {
		cs.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	cs.running = true
	cs.ctx, cs.cancel = context.WithCancel(context.Background())
	cs.mu.Unlock()

	cs.log.Info().Str("worker_id", cs.workerID).Dur("poll_interval", cs.pollInterval).Msg("scheduler started")

	cs.wg.Add(1)
	go cs.schedulerLoop()
	return nil
}

// Stop cancels polling and waits for the in-flight poll. A send already
// claimed runs to completion first.
func (cs *CampaignScheduler) Stop() {
	cs.mu.Lock()
	if !cs.running {
		cs.mu.Unlock()
		return
	}
	cs.running = false
	cs.mu.Unlock()

	cs.cancel()
	cs.wg.Wait()
	st := cs.Stats()
	cs.log.Info().Int64("started", st.Started).Int64("skipped", st.Skipped).Int64("errors", st.Errors).Msg("scheduler stopped")
}

// Stats returns the running totals.
func (cs *CampaignScheduler) Stats() SchedulerStats {
	return SchedulerStats{
		Started: atomic.LoadInt64(&cs.started),
		Skipped: atomic.LoadInt64(&cs.skipped),
		Errors:  atomic.LoadInt64(&cs.errors),
	}
}

func (cs *CampaignScheduler) schedulerLoop() {
	defer cs.wg.Done()

	ticker := time.NewTicker(cs.pollInterval)
	defer ticker.Stop()

	cs.RunOnce(cs.ctx)
	for {
		select {
		case <-cs.ctx.Done():
			return
		case <-ticker.C:
			cs.RunOnce(cs.ctx)
		}
	}
}

// RunOnce starts every due campaign this process can lock and returns
// how many sends it started.
func (cs *CampaignScheduler) RunOnce(ctx context.Context) int {
	due, err := cs.campaigns.DueForSend(ctx, DueBatchSize)
	if err != nil {
		atomic.AddInt64(&cs.errors, 1)
		cs.log.Error().Err(err).Msg("list due campaigns")
		return 0
	}

	started := 0
	for _, c := range due {
		if ctx.Err() != nil {
			break
		}
		if cs.process(ctx, c) {
			started++
		}
	}
	return started
}

func (cs *CampaignScheduler) process(ctx context.Context, c domain.Campaign) bool {
	lock := cs.locks.Lock("campaign:" + c.ID)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		atomic.AddInt64(&cs.errors, 1)
		cs.log.Error().Err(err).Str("campaign_id", c.ID).Msg("acquire campaign lock")
		return false
	}
	if !acquired {
		atomic.AddInt64(&cs.skipped, 1)
		cs.log.Debug().Str("campaign_id", c.ID).Msg("campaign locked by another worker")
		return false
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, distlock.ErrNotHeld) {
			cs.log.Warn().Err(err).Str("campaign_id", c.ID).Msg("release campaign lock")
		}
	}()

	res, err := cs.campaigns.StartSend(ctx, c.ID)
	switch {
	case err == nil:
		atomic.AddInt64(&cs.started, 1)
		cs.log.Info().Str("campaign_id", c.ID).Int("sent", res.Sent).Int("failed", res.Failed).Msg("scheduled campaign sent")
		return true
	case errors.Is(err, campaign.ErrInvalidState), errors.Is(err, campaign.ErrStateConflict):
		// Cancelled or claimed elsewhere between the listing and the claim.
		atomic.AddInt64(&cs.skipped, 1)
		cs.log.Debug().Err(err).Str("campaign_id", c.ID).Msg("scheduled campaign no longer sendable")
	case errors.Is(err, campaign.ErrEmptyAudience):
		// Stays scheduled; it is picked up again once someone matches.
		atomic.AddInt64(&cs.skipped, 1)
		cs.log.Warn().Str("campaign_id", c.ID).Msg("scheduled campaign has no recipients")
	default:
		atomic.AddInt64(&cs.errors, 1)
		cs.log.Error().Err(err).Str("campaign_id", c.ID).Msg("scheduled send failed")
	}
	return false
}
