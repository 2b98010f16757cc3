package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/pkg/distlock"
	"github.com/ignite/newsletter/internal/service/campaign"
)

type fakeSender struct {
	mu      sync.Mutex
	due     []domain.Campaign
	dueErr  error
	results map[string]error
	started []string
}

func (f *fakeSender) DueForSend(_ context.Context, limit int) ([]domain.Campaign, error) {
	if f.dueErr != nil {
		return nil, f.dueErr
	}
	if len(f.due) > limit {
		return f.due[:limit], nil
	}
	return f.due, nil
}

func (f *fakeSender) StartSend(_ context.Context, id string) (*domain.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.results[id]; err != nil {
		return nil, err
	}
	f.started = append(f.started, id)
	return &domain.SendResult{CampaignID: id, Recipients: 1, Sent: 1}, nil
}

func due(ids ...string) []domain.Campaign {
	out := make([]domain.Campaign, len(ids))
	for i, id := range ids {
		out[i] = domain.Campaign{ID: id, Status: domain.CampaignScheduled}
	}
	return out
}

func TestCampaignScheduler_RunOnce(t *testing.T) {
	sender := &fakeSender{
		due: due("c-1", "c-2", "c-3", "c-4"),
		results: map[string]error{
			"c-2": &campaign.InvalidStateError{CampaignID: "c-2", Current: domain.CampaignCancelled, Op: "send"},
			"c-3": campaign.ErrEmptyAudience,
			"c-4": errors.New("connection reset"),
		},
	}
	cs := NewCampaignScheduler(sender, distlock.NewFactory(nil, nil, time.Minute), time.Hour)

	if got := cs.RunOnce(context.Background()); got != 1 {
		t.Fatalf("RunOnce started %d, want 1", got)
	}
	if len(sender.started) != 1 || sender.started[0] != "c-1" {
		t.Fatalf("started = %v, want [c-1]", sender.started)
	}
	st := cs.Stats()
	if st.Started != 1 || st.Skipped != 2 || st.Errors != 1 {
		t.Errorf("stats = %+v, want started=1 skipped=2 errors=1", st)
	}
}

func TestCampaignScheduler_SkipsLockedCampaign(t *testing.T) {
	locks := distlock.NewFactory(nil, nil, time.Minute)
	held := locks.Lock("campaign:c-1")
	if ok, _ := held.Acquire(context.Background()); !ok {
		t.Fatal("could not pre-acquire lock")
	}

	sender := &fakeSender{due: due("c-1", "c-2")}
	cs := NewCampaignScheduler(sender, locks, time.Hour)

	if got := cs.RunOnce(context.Background()); got != 1 {
		t.Fatalf("RunOnce started %d, want 1", got)
	}
	if sender.started[0] != "c-2" {
		t.Errorf("started = %v, want [c-2]", sender.started)
	}

	held.Release(context.Background())
	sender.started = nil
	sender.due = due("c-1")
	if got := cs.RunOnce(context.Background()); got != 1 {
		t.Fatalf("after release RunOnce started %d, want 1", got)
	}
}

func TestCampaignScheduler_ReleasesLockAfterSend(t *testing.T) {
	locks := distlock.NewFactory(nil, nil, time.Minute)
	sender := &fakeSender{due: due("c-1")}
	cs := NewCampaignScheduler(sender, locks, time.Hour)
	cs.RunOnce(context.Background())

	l := locks.Lock("campaign:c-1")
	if ok, _ := l.Acquire(context.Background()); !ok {
		t.Error("lock should be free after the send")
	}
}

func TestCampaignScheduler_DueError(t *testing.T) {
	sender := &fakeSender{dueErr: errors.New("db down")}
	cs := NewCampaignScheduler(sender, distlock.NewFactory(nil, nil, time.Minute), time.Hour)
	if got := cs.RunOnce(context.Background()); got != 0 {
		t.Fatalf("RunOnce started %d, want 0", got)
	}
	if cs.Stats().Errors != 1 {
		t.Errorf("errors = %d, want 1", cs.Stats().Errors)
	}
}

func TestCampaignScheduler_StartStop(t *testing.T) {
	sender := &fakeSender{due: due("c-1")}
	cs := NewCampaignScheduler(sender, distlock.NewFactory(nil, nil, time.Minute), 10*time.Millisecond)

	if err := cs.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := cs.Start(); err == nil {
		t.Error("double Start() should return error")
	}

	deadline := time.Now().Add(2 * time.Second)
	for cs.Stats().Started == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cs.Stop()
	cs.Stop()

	if cs.Stats().Started == 0 {
		t.Error("scheduler never started the due campaign")
	}
}

func TestNewCampaignScheduler_DefaultInterval(t *testing.T) {
	cs := NewCampaignScheduler(&fakeSender{}, distlock.NewFactory(nil, nil, time.Minute), 0)
	if cs.pollInterval != DefaultSchedulerPollInterval {
		t.Errorf("pollInterval = %v, want %v", cs.pollInterval, DefaultSchedulerPollInterval)
	}
}
