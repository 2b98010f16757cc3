package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/service/campaign"
	"github.com/ignite/newsletter/internal/service/engagement"
	"github.com/ignite/newsletter/internal/service/ledger"
	"github.com/ignite/newsletter/internal/service/subscriber"
	"github.com/ignite/newsletter/internal/service/template"
	"github.com/lib/pq"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return db, mock, func() { db.Close() }
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

var campaignCols = []string{
	"id", "name", "campaign_type", "subject", "preheader", "html_content", "plain_text_content",
	"from_name", "from_email", "reply_to_email", "send_to_all", "target_interests", "target_subscribers",
	"status", "scheduled_at", "sent_at",
	"total_recipients", "total_sent", "total_delivered", "total_bounced", "total_opened",
	"total_clicked", "total_unsubscribed", "total_spam_complaints",
	"created_at", "updated_at",
}

func campaignRow(id string, status domain.CampaignStatus) *sqlmock.Rows {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(campaignCols).AddRow(
		id, "March", "newsletter", "Hello", "", "<p>hi</p>", "",
		"Ignite", "news@example.com", "", false, "{go,rust}", "{}",
		string(status), nil, nil,
		10, 0, 0, 0, 0,
		0, 0, 0,
		now, now,
	)
}

func TestCampaignRepo_Get(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewCampaignRepo(db)

	mock.ExpectQuery("SELECT .* FROM newsletter_campaigns WHERE id = \\$1").
		WithArgs("c-1").
		WillReturnRows(campaignRow("c-1", domain.CampaignDraft))

	c, err := repo.Get(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c.Status != domain.CampaignDraft || c.Recipients != 10 {
		t.Errorf("unexpected campaign %+v", c)
	}
	if len(c.Target.InterestTags) != 2 || c.Target.InterestTags[1] != "rust" {
		t.Errorf("interests = %v", c.Target.InterestTags)
	}
	if c.ScheduledAt != nil {
		t.Errorf("scheduled_at should be nil")
	}
	expectationsMet(t, mock)
}

func TestCampaignRepo_GetNotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .* FROM newsletter_campaigns").WillReturnError(sql.ErrNoRows)

	_, err := NewCampaignRepo(db).Get(context.Background(), "missing")
	if !errors.Is(err, campaign.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCampaignRepo_BeginSend(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		exists   bool
		wantErr  error
	}{
		{"claimed", 1, true, nil},
		{"already sending", 0, true, campaign.ErrStateConflict},
		{"missing", 0, false, campaign.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, cleanup := setupTestDB(t)
			defer cleanup()

			mock.ExpectExec(regexp.QuoteMeta("UPDATE newsletter_campaigns SET status = 'sending'")).
				WithArgs(25, "c-1").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))
			if tt.affected == 0 {
				mock.ExpectQuery("SELECT EXISTS").
					WithArgs("c-1").
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(tt.exists))
			}

			err := NewCampaignRepo(db).BeginSend(context.Background(), "c-1", 25)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			expectationsMet(t, mock)
		})
	}
}

func TestCampaignRepo_Transition(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE newsletter_campaigns SET status = $1")).
		WithArgs(domain.CampaignCancelled, "c-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewCampaignRepo(db).Transition(context.Background(), "c-1",
		[]domain.CampaignStatus{domain.CampaignDraft, domain.CampaignScheduled}, domain.CampaignCancelled)
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	expectationsMet(t, mock)
}

func TestCampaignRepo_UpdateOnlyEditable(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewCampaignRepo(db)

	if err := repo.Update(context.Background(), "c-1", campaign.UpdateFields{}); err != nil {
		t.Fatalf("empty update: %v", err)
	}

	subject := "New subject"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE newsletter_campaigns SET subject = $1, updated_at = NOW() WHERE id = $2 AND status IN ('draft','scheduled')")).
		WithArgs(subject, "c-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := repo.Update(context.Background(), "c-1", campaign.UpdateFields{Subject: &subject})
	if !errors.Is(err, campaign.ErrStateConflict) {
		t.Fatalf("err = %v, want ErrStateConflict", err)
	}
	expectationsMet(t, mock)
}

func TestCampaignRepo_DeleteWithLedgerEntries(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("DELETE FROM newsletter_campaigns").
		WithArgs("c-1").
		WillReturnError(&pq.Error{Code: foreignKeyViolation})

	err := NewCampaignRepo(db).Delete(context.Background(), "c-1")
	if !errors.Is(err, campaign.ErrStateConflict) {
		t.Fatalf("err = %v, want ErrStateConflict", err)
	}
	expectationsMet(t, mock)
}

func TestCampaignRepo_ListDue(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT .* FROM newsletter_campaigns\\s+WHERE status = 'scheduled'").
		WithArgs(now, 5).
		WillReturnRows(campaignRow("c-2", domain.CampaignScheduled))

	due, err := NewCampaignRepo(db).ListDue(context.Background(), now, 5)
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(due) != 1 || due[0].ID != "c-2" {
		t.Fatalf("due = %+v", due)
	}
	expectationsMet(t, mock)
}

var subscriberCols = []string{
	"id", "email", "first_name", "last_name", "status", "subscription_token", "interests", "referrer_url",
	"is_verified", "verification_sent_at", "verified_at",
	"total_emails_sent", "total_emails_opened", "total_links_clicked", "last_engagement",
	"subscribed_at", "unsubscribed_at", "updated_at",
}

func TestSubscriberRepo_FindEligibleWithInterests(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND status = $1 AND is_verified = $2 AND interests && $3 ORDER BY id")).
		WithArgs(domain.SubscriberActive, true, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(subscriberCols).AddRow(
			"s-1", "ada@example.com", "Ada", "", "active", "tok-1", "{go}", "",
			true, nil, now, 3, 1, 0, nil, now, nil, now,
		))

	f := subscriber.Eligible()
	f.AnyInterest = []string{"go"}
	subs, err := NewSubscriberRepo(db).Find(context.Background(), f)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(subs) != 1 || subs[0].Email != "ada@example.com" || !subs[0].Eligible() {
		t.Fatalf("subs = %+v", subs)
	}
	if subs[0].VerifiedAt == nil || subs[0].LastEngagement != nil {
		t.Errorf("nullable timestamps not mapped: %+v", subs[0])
	}
	expectationsMet(t, mock)
}

func TestSubscriberRepo_CreateDuplicate(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO newsletter_subscribers").
		WillReturnError(&pq.Error{Code: uniqueViolation})

	err := NewSubscriberRepo(db).Create(context.Background(), &domain.Subscriber{
		ID: "s-1", Email: "ada@example.com", Status: domain.SubscriberActive, Token: "tok",
	})
	if !errors.Is(err, subscriber.ErrDuplicateEmail) {
		t.Fatalf("err = %v, want ErrDuplicateEmail", err)
	}
}

func unsubscribeEntry(campaignID string) *domain.Activity {
	a := &domain.Activity{
		ID: "a-1", SubscriberID: "s-1", Type: domain.ActivityUnsubscription,
		Description: "Unsubscribed: user_request", CreatedAt: time.Now().UTC(),
	}
	if campaignID != "" {
		a.CampaignID = &campaignID
	}
	return a
}

func TestSubscriberRepo_UnsubscribeTwice(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewSubscriberRepo(db)
	at := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET status = 'unsubscribed'")).
		WithArgs(at, "s-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO newsletter_activity").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET status = 'unsubscribed'")).
		WithArgs(at, "s-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	changed, err := repo.Unsubscribe(context.Background(), "s-1", at, unsubscribeEntry(""))
	if err != nil || !changed {
		t.Fatalf("first unsubscribe: changed=%v err=%v", changed, err)
	}
	changed, err = repo.Unsubscribe(context.Background(), "s-1", at, unsubscribeEntry(""))
	if err != nil || changed {
		t.Fatalf("second unsubscribe: changed=%v err=%v", changed, err)
	}
	expectationsMet(t, mock)
}

func TestSubscriberRepo_UnsubscribeAttributesSentCampaign(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	at := time.Now().UTC()
	cid := "9b2f4f8e-3c1a-4d5e-8f60-1a2b3c4d5e6f"

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET status = 'unsubscribed'")).
		WithArgs(at, "s-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET total_unsubscribed = total_unsubscribed + 1")).
		WithArgs(cid).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO newsletter_activity").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entry := unsubscribeEntry(cid)
	changed, err := NewSubscriberRepo(db).Unsubscribe(context.Background(), "s-1", at, entry)
	if err != nil || !changed {
		t.Fatalf("unsubscribe: changed=%v err=%v", changed, err)
	}
	if entry.CampaignID == nil || *entry.CampaignID != cid {
		t.Fatalf("entry lost its campaign: %+v", entry)
	}
	expectationsMet(t, mock)
}

func TestSubscriberRepo_UnsubscribeUnknownCampaign(t *testing.T) {
	for name, cid := range map[string]string{
		"not a uuid":  "gone",
		"no such row": "9b2f4f8e-3c1a-4d5e-8f60-1a2b3c4d5e6f",
	} {
		t.Run(name, func(t *testing.T) {
			db, mock, cleanup := setupTestDB(t)
			defer cleanup()
			at := time.Now().UTC()

			mock.ExpectBegin()
			mock.ExpectExec(regexp.QuoteMeta("SET status = 'unsubscribed'")).
				WithArgs(at, "s-1").
				WillReturnResult(sqlmock.NewResult(0, 1))
			if cid != "gone" {
				mock.ExpectExec(regexp.QuoteMeta("SET total_unsubscribed = total_unsubscribed + 1")).
					WithArgs(cid).
					WillReturnResult(sqlmock.NewResult(0, 0))
			}
			mock.ExpectExec("INSERT INTO newsletter_activity").
				WillReturnResult(sqlmock.NewResult(1, 1))
			mock.ExpectCommit()

			entry := unsubscribeEntry(cid)
			changed, err := NewSubscriberRepo(db).Unsubscribe(context.Background(), "s-1", at, entry)
			if err != nil || !changed {
				t.Fatalf("unsubscribe: changed=%v err=%v", changed, err)
			}
			if entry.CampaignID != nil {
				t.Fatalf("campaign %q should be cleared from the entry", *entry.CampaignID)
			}
			expectationsMet(t, mock)
		})
	}
}

func TestSubscriberRepo_UnsubscribeRollsBackOnLedgerError(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	at := time.Now().UTC()
	cid := "9b2f4f8e-3c1a-4d5e-8f60-1a2b3c4d5e6f"

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET status = 'unsubscribed'")).
		WithArgs(at, "s-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET total_unsubscribed = total_unsubscribed + 1")).
		WithArgs(cid).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO newsletter_activity").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	changed, err := NewSubscriberRepo(db).Unsubscribe(context.Background(), "s-1", at, unsubscribeEntry(cid))
	if err == nil || changed {
		t.Fatalf("unsubscribe: changed=%v err=%v, want an error", changed, err)
	}
	expectationsMet(t, mock)
}

func TestSubscriberRepo_UnsubscribeMissing(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	at := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET status = 'unsubscribed'")).
		WithArgs(at, "s-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, err := NewSubscriberRepo(db).Unsubscribe(context.Background(), "s-1", at, unsubscribeEntry(""))
	if !errors.Is(err, subscriber.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	expectationsMet(t, mock)
}

func TestActivityRepo_AppendSend(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	cid := "c-1"
	a := &domain.Activity{
		ID: "a-1", SubscriberID: "s-1", CampaignID: &cid,
		Type: domain.ActivityEmailSent, EmailSubject: "Hello", CreatedAt: time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET total_emails_sent = total_emails_sent + 1")).
		WithArgs("s-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO newsletter_activity").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := NewActivityRepo(db).AppendSend(context.Background(), a); err != nil {
		t.Fatalf("AppendSend: %v", err)
	}
	expectationsMet(t, mock)
}

func TestActivityRepo_AppendSendMissingSubscriber(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE newsletter_subscribers").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := NewActivityRepo(db).AppendSend(context.Background(), &domain.Activity{ID: "a-1", SubscriberID: "gone"})
	if !errors.Is(err, subscriber.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	expectationsMet(t, mock)
}

func TestActivityRepo_ListAndCount(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewActivityRepo(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("AND campaign_id = $1 AND activity_type = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4")).
		WithArgs("c-1", domain.ActivityEmailSent, 10, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "subscriber_id", "campaign_id", "activity_type", "description", "email_subject",
			"clicked_url", "ip_address", "user_agent", "created_at",
		}).AddRow("a-1", "s-1", "c-1", "email_sent", "", "Hello", "", "", "", now))

	entries, err := repo.List(context.Background(), ledger.ListFilter{
		CampaignID: "c-1", Type: domain.ActivityEmailSent, Limit: 10,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].CampaignID == nil || *entries[0].CampaignID != "c-1" {
		t.Fatalf("entries = %+v", entries)
	}

	mock.ExpectQuery("SELECT activity_type, COUNT").
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows([]string{"activity_type", "count"}).
			AddRow("email_sent", 4).
			AddRow("email_opened", 2))

	counts, err := repo.CountByType(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("CountByType: %v", err)
	}
	if counts[domain.ActivityEmailSent] != 4 || counts[domain.ActivityEmailOpened] != 2 {
		t.Fatalf("counts = %v", counts)
	}
	expectationsMet(t, mock)
}

func TestActivityRepo_ListPurgedSubscriber(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .* FROM newsletter_activity").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "subscriber_id", "campaign_id", "activity_type", "description", "email_subject",
			"clicked_url", "ip_address", "user_agent", "created_at",
		}).AddRow("a-1", nil, "c-1", "email_sent", "", "Hello", "", "", "", time.Now().UTC()))

	entries, err := NewActivityRepo(db).List(context.Background(), ledger.ListFilter{CampaignID: "c-1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].SubscriberID != "" {
		t.Fatalf("entries = %+v", entries)
	}
	expectationsMet(t, mock)
}

func TestTemplateRepo_SetDefault(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT template_type FROM newsletter_templates").
		WithArgs("t-2").
		WillReturnRows(sqlmock.NewRows([]string{"template_type"}).AddRow("newsletter"))
	mock.ExpectExec(regexp.QuoteMeta("SET is_default = FALSE")).
		WithArgs(domain.TemplateNewsletter, "t-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET is_default = TRUE")).
		WithArgs("t-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := NewTemplateRepo(db).SetDefault(context.Background(), "t-2"); err != nil {
		t.Fatalf("SetDefault: %v", err)
	}
	expectationsMet(t, mock)
}

func TestTemplateRepo_SetDefaultMissing(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT template_type").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := NewTemplateRepo(db).SetDefault(context.Background(), "nope")
	if !errors.Is(err, template.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	expectationsMet(t, mock)
}

func openEffect() engagement.Effect {
	cid := "c-1"
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	return engagement.Effect{
		CampaignID:   "c-1",
		SubscriberID: "s-1",
		Activity: &domain.Activity{
			ID: "a-9", SubscriberID: "s-1", CampaignID: &cid,
			Type: domain.ActivityEmailOpened, CreatedAt: at,
		},
		Unique:           true,
		CampaignCounter:  domain.CounterOpened,
		SubscriberOpened: true,
		Touch:            true,
		At:               at,
	}
}

func expectRefs(mock sqlmock.Sqlmock, campaignOK, subscriberOK bool) {
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("c-1", "s-1").
		WillReturnRows(sqlmock.NewRows([]string{"c", "s"}).AddRow(campaignOK, subscriberOK))
}

func TestEngagementRepo_ApplyOpen(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	e := openEffect()

	mock.ExpectBegin()
	expectRefs(mock, true, true)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("s-1", "c-1", domain.ActivityEmailOpened).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO newsletter_activity").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE newsletter_campaigns SET total_opened = total_opened + 1")).
		WithArgs("c-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE newsletter_subscribers SET total_emails_opened = total_emails_opened + 1, last_engagement = $1 WHERE id = $2")).
		WithArgs(e.At, "s-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := NewEngagementRepo(db).Apply(context.Background(), e)
	if err != nil || !applied {
		t.Fatalf("Apply: applied=%v err=%v", applied, err)
	}
	expectationsMet(t, mock)
}

func TestEngagementRepo_ApplyRepeatOpen(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	expectRefs(mock, true, true)
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	applied, err := NewEngagementRepo(db).Apply(context.Background(), openEffect())
	if err != nil || applied {
		t.Fatalf("repeat open: applied=%v err=%v", applied, err)
	}
	expectationsMet(t, mock)
}

func TestEngagementRepo_ApplyUnknownSubscriber(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	expectRefs(mock, true, false)
	mock.ExpectRollback()

	_, err := NewEngagementRepo(db).Apply(context.Background(), openEffect())
	if !errors.Is(err, engagement.ErrInvalidEvent) {
		t.Fatalf("err = %v, want ErrInvalidEvent", err)
	}
	expectationsMet(t, mock)
}

func TestEngagementRepo_ApplyRepeatDelivered(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	e := engagement.Effect{
		CampaignID: "c-1", SubscriberID: "s-1",
		Delivery: true, CampaignCounter: domain.CounterDelivered, At: at,
	}

	mock.ExpectBegin()
	expectRefs(mock, true, true)
	mock.ExpectExec("INSERT INTO newsletter_deliveries").
		WithArgs("c-1", "s-1", at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	applied, err := NewEngagementRepo(db).Apply(context.Background(), e)
	if err != nil || applied {
		t.Fatalf("repeat delivered: applied=%v err=%v", applied, err)
	}
	expectationsMet(t, mock)
}
