package subscriber_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/repository/memory"
	"github.com/ignite/newsletter/internal/service/ledger"
	"github.com/ignite/newsletter/internal/service/subscriber"
)

type fakeVerifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeVerifier) SendVerification(_ context.Context, s *domain.Subscriber) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, s.Email)
	return nil
}

type fixture struct {
	store    *memory.Store
	verifier *fakeVerifier
	svc      *subscriber.Service
}

func newFixture() *fixture {
	store := memory.NewStore()
	v := &fakeVerifier{}
	svc := subscriber.NewService(store.Subscribers(), ledger.NewService(store.Activities()), v)
	return &fixture{store: store, verifier: v, svc: svc}
}

func (f *fixture) activities(t *testing.T, subscriberID string) []domain.Activity {
	t.Helper()
	out, err := f.store.Activities().List(context.Background(), ledger.ListFilter{SubscriberID: subscriberID})
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	return out
}

func hasType(entries []domain.Activity, typ domain.ActivityType) int {
	n := 0
	for _, a := range entries {
		if a.Type == typ {
			n++
		}
	}
	return n
}

func TestSubscribe(t *testing.T) {
	f := newFixture()
	sub, err := f.svc.Subscribe(context.Background(), subscriber.SubscribeInput{
		Email:     "  Ada@Example.COM ",
		FirstName: " Ada ",
		Interests: []string{"Finance", "finance", " tech "},
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if sub.Email != "ada@example.com" || sub.FirstName != "Ada" {
		t.Fatalf("not normalized: %+v", sub)
	}
	if sub.Status != domain.SubscriberActive || !sub.IsVerified {
		t.Fatalf("expected active verified subscriber, got %+v", sub)
	}
	if sub.Token == "" || sub.EmailsSent != 0 || sub.EmailsOpened != 0 {
		t.Fatalf("counters or token not initialized: %+v", sub)
	}
	if len(sub.Interests) != 2 || sub.Interests[0] != "finance" || sub.Interests[1] != "tech" {
		t.Fatalf("interests = %v", sub.Interests)
	}
	if n := hasType(f.activities(t, sub.ID), domain.ActivitySubscription); n != 1 {
		t.Fatalf("subscription entries = %d, want 1", n)
	}
	if len(f.verifier.sent) != 0 {
		t.Fatal("no verification without double opt-in")
	}
}

func TestSubscribe_Duplicate(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Subscribe(context.Background(), subscriber.SubscribeInput{Email: "a@b.test"}); err != nil {
		t.Fatal(err)
	}
	_, err := f.svc.Subscribe(context.Background(), subscriber.SubscribeInput{Email: "A@B.test"})
	if !errors.Is(err, subscriber.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestSubscribe_InvalidEmail(t *testing.T) {
	f := newFixture()
	for _, email := range []string{"", "not-an-email", "two@@at.test"} {
		if _, err := f.svc.Subscribe(context.Background(), subscriber.SubscribeInput{Email: email}); !errors.Is(err, subscriber.ErrInvalidEmail) {
			t.Errorf("%q: expected ErrInvalidEmail, got %v", email, err)
		}
	}
}

func TestDoubleOptIn(t *testing.T) {
	f := newFixture()
	f.svc.SetDoubleOptIn(true)

	sub, err := f.svc.Subscribe(context.Background(), subscriber.SubscribeInput{Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if sub.IsVerified {
		t.Fatal("double opt-in subscriber must start unverified")
	}
	if len(f.verifier.sent) != 1 {
		t.Fatalf("verification emails = %d, want 1", len(f.verifier.sent))
	}
	stored, _ := f.store.Subscribers().Get(context.Background(), sub.ID)
	if stored.VerificationSentAt == nil {
		t.Fatal("verification_sent_at not stamped")
	}

	confirmed, err := f.svc.Confirm(context.Background(), sub.Token)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !confirmed.IsVerified || confirmed.VerifiedAt == nil {
		t.Fatalf("not verified: %+v", confirmed)
	}
	if _, err := f.svc.Confirm(context.Background(), sub.Token); err != nil {
		t.Fatalf("second confirm: %v", err)
	}

	entries := f.activities(t, sub.ID)
	if hasType(entries, domain.ActivityVerificationSent) != 1 || hasType(entries, domain.ActivityEmailVerified) != 1 {
		t.Fatalf("unexpected ledger %+v", entries)
	}
}

func TestDoubleOptIn_VerifierFailureKeepsSubscription(t *testing.T) {
	f := newFixture()
	f.svc.SetDoubleOptIn(true)
	f.verifier.err = errors.New("smtp down")

	sub, err := f.svc.Subscribe(context.Background(), subscriber.SubscribeInput{Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := f.svc.Get(context.Background(), sub.ID); err != nil {
		t.Fatalf("subscription lost: %v", err)
	}

	f.verifier.err = nil
	if err := f.svc.ResendVerification(context.Background(), sub.ID); err != nil {
		t.Fatalf("resend: %v", err)
	}
	if len(f.verifier.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(f.verifier.sent))
	}
}

func TestConfirm_InvalidToken(t *testing.T) {
	f := newFixture()
	for _, tok := range []string{"", "not-a-uuid", "2b1c6f4e-8a59-4f3e-9d2b-0c8f7a6e5d4c"} {
		if _, err := f.svc.Confirm(context.Background(), tok); !errors.Is(err, subscriber.ErrInvalidToken) {
			t.Errorf("%q: expected ErrInvalidToken, got %v", tok, err)
		}
	}
}

func seedCampaign(t *testing.T, store *memory.Store, id string) {
	t.Helper()
	err := store.Campaigns().Create(context.Background(), &domain.Campaign{ID: id, Name: id, Status: domain.CampaignSent, CreatedAt: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	f := newFixture()
	seedCampaign(t, f.store, "camp-1")
	sub, err := f.svc.Subscribe(context.Background(), subscriber.SubscribeInput{Email: "ada@example.com"})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		got, err := f.svc.Unsubscribe(context.Background(), subscriber.UnsubscribeInput{Token: sub.Token, CampaignID: "camp-1"})
		if err != nil {
			t.Fatalf("unsubscribe #%d: %v", i+1, err)
		}
		if got.Status != domain.SubscriberUnsubscribed || got.UnsubscribedAt == nil {
			t.Fatalf("unexpected subscriber %+v", got)
		}
	}

	if n := hasType(f.activities(t, sub.ID), domain.ActivityUnsubscription); n != 1 {
		t.Fatalf("unsubscription entries = %d, want 1", n)
	}
	c, _ := f.store.Campaigns().Get(context.Background(), "camp-1")
	if c.Unsubscribed != 1 {
		t.Fatalf("campaign unsubscribed = %d, want 1", c.Unsubscribed)
	}
}

func TestUnsubscribe_UnknownCampaignIsNotAttributed(t *testing.T) {
	f := newFixture()
	sub, err := f.svc.Subscribe(context.Background(), subscriber.SubscribeInput{Email: "ada@example.com"})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		got, err := f.svc.Unsubscribe(context.Background(), subscriber.UnsubscribeInput{Token: sub.Token, CampaignID: "gone"})
		if err != nil {
			t.Fatalf("unsubscribe #%d: %v", i+1, err)
		}
		if got.Status != domain.SubscriberUnsubscribed {
			t.Fatalf("status = %s", got.Status)
		}
	}

	entries := f.activities(t, sub.ID)
	if n := hasType(entries, domain.ActivityUnsubscription); n != 1 {
		t.Fatalf("unsubscription entries = %d, want 1", n)
	}
	for _, a := range entries {
		if a.Type == domain.ActivityUnsubscription && a.CampaignID != nil {
			t.Fatalf("entry attributed to %q", *a.CampaignID)
		}
	}
}

func TestUnsubscribe_UnsentCampaignIsNotAttributed(t *testing.T) {
	f := newFixture()
	err := f.store.Campaigns().Create(context.Background(), &domain.Campaign{ID: "draft-1", Name: "draft", Status: domain.CampaignDraft})
	if err != nil {
		t.Fatal(err)
	}
	sub, err := f.svc.Subscribe(context.Background(), subscriber.SubscribeInput{Email: "ada@example.com"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Unsubscribe(context.Background(), subscriber.UnsubscribeInput{Token: sub.Token, CampaignID: "draft-1"}); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	c, _ := f.store.Campaigns().Get(context.Background(), "draft-1")
	if c.Unsubscribed != 0 {
		t.Fatalf("draft unsubscribed = %d, want 0", c.Unsubscribed)
	}
	if n := hasType(f.activities(t, sub.ID), domain.ActivityUnsubscription); n != 1 {
		t.Fatalf("unsubscription entries = %d, want 1", n)
	}
}

func TestListAndSetStatus(t *testing.T) {
	f := newFixture()
	var ids []string
	for _, e := range []string{"a@x.test", "b@x.test", "c@x.test"} {
		sub, err := f.svc.Subscribe(context.Background(), subscriber.SubscribeInput{Email: e})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, sub.ID)
	}

	n, err := f.svc.SetStatus(context.Background(), ids[:2], domain.SubscriberBounced)
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if n != 2 {
		t.Fatalf("changed = %d, want 2", n)
	}
	if _, err := f.svc.SetStatus(context.Background(), ids, "paused"); !errors.Is(err, subscriber.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}

	active, total, err := f.svc.List(context.Background(), subscriber.Filter{Status: domain.SubscriberActive})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(active) != 1 || active[0].ID != ids[2] {
		t.Fatalf("active = %+v total=%d", active, total)
	}
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture()
	sub, err := f.svc.Subscribe(context.Background(), subscriber.SubscribeInput{Email: "ada@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := f.svc.UpdateProfile(context.Background(), sub.ID, "Ada", "Lovelace", []string{"Math"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.FullName() != "Ada Lovelace" || got.Interests[0] != "math" {
		t.Fatalf("unexpected profile %+v", got)
	}
}

func TestPurge(t *testing.T) {
	f := newFixture()
	sub, err := f.svc.Subscribe(context.Background(), subscriber.SubscribeInput{Email: "ada@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Purge(context.Background(), sub.ID); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := f.svc.Get(context.Background(), sub.ID); !errors.Is(err, subscriber.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(f.activities(t, sub.ID)) != 0 {
		t.Fatal("ledger entries still reference the purged subscriber")
	}
	kept, err := f.store.Activities().List(context.Background(), ledger.ListFilter{Type: domain.ActivitySubscription})
	if err != nil {
		t.Fatal(err)
	}
	if len(kept) != 1 || kept[0].SubscriberID != "" {
		t.Fatalf("subscription entry after purge = %+v, want one detached entry", kept)
	}
	if err := f.svc.Purge(context.Background(), sub.ID); !errors.Is(err, subscriber.ErrNotFound) {
		t.Fatalf("second purge: expected ErrNotFound, got %v", err)
	}
}

func TestNormalizeTags(t *testing.T) {
	got := subscriber.NormalizeTags([]string{" A ", "a", "", "B"})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got %v", got)
	}
}
