package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/service/campaign"
	"github.com/lib/pq"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `
	id, name, campaign_type, subject, preheader, html_content, plain_text_content,
	from_name, from_email, reply_to_email, send_to_all, target_interests, target_subscribers,
	status, scheduled_at, sent_at,
	total_recipients, total_sent, total_delivered, total_bounced, total_opened,
	total_clicked, total_unsubscribed, total_spam_complaints,
	created_at, updated_at`

// counterColumns whitelists the counter columns engagement effects may
// increment.
var counterColumns = map[domain.CounterField]string{
	domain.CounterDelivered:      "total_delivered",
	domain.CounterBounced:        "total_bounced",
	domain.CounterOpened:         "total_opened",
	domain.CounterClicked:        "total_clicked",
	domain.CounterUnsubscribed:   "total_unsubscribed",
	domain.CounterSpamComplaints: "total_spam_complaints",
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row scanner) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	var scheduled, sent sql.NullTime
	err := row.Scan(
		&c.ID, &c.Name, &c.Type, &c.Subject, &c.Preheader, &c.HTMLContent, &c.PlainContent,
		&c.FromName, &c.FromEmail, &c.ReplyTo, &c.Target.SendToAll,
		pq.Array(&c.Target.InterestTags), pq.Array(&c.Target.SubscriberIDs),
		&c.Status, &scheduled, &sent,
		&c.Recipients, &c.Sent, &c.Delivered, &c.Bounced, &c.Opened,
		&c.Clicked, &c.Unsubscribed, &c.SpamComplaints,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.ScheduledAt = nullTime(scheduled)
	c.SentAt = nullTime(sent)
	return c, nil
}

func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM newsletter_campaigns WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := ` WHERE 1=1`
	args := []interface{}{}
	idx := 1
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND name ILIKE $%d", idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM newsletter_campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	q := `SELECT ` + campaignColumns + ` FROM newsletter_campaigns` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", idx, idx+1)
	rows, err := r.db.QueryContext(ctx, q, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	if c.ID == "" {
		return fmt.Errorf("create campaign: id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO newsletter_campaigns
			(id, name, campaign_type, subject, preheader, html_content, plain_text_content,
			 from_name, from_email, reply_to_email, send_to_all, target_interests, target_subscribers,
			 status, scheduled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
	`, c.ID, c.Name, c.Type, c.Subject, c.Preheader, c.HTMLContent, c.PlainContent,
		c.FromName, c.FromEmail, c.ReplyTo, c.Target.SendToAll,
		pq.Array(nonNil(c.Target.InterestTags)), pq.Array(nonNil(c.Target.SubscriberIDs)),
		c.Status, c.ScheduledAt, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepo) Update(ctx context.Context, id string, u campaign.UpdateFields) error {
	sets := []string{}
	args := []interface{}{}
	idx := 1
	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}

	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.Type != nil {
		add("campaign_type", *u.Type)
	}
	if u.Subject != nil {
		add("subject", *u.Subject)
	}
	if u.Preheader != nil {
		add("preheader", *u.Preheader)
	}
	if u.HTMLContent != nil {
		add("html_content", *u.HTMLContent)
	}
	if u.PlainContent != nil {
		add("plain_text_content", *u.PlainContent)
	}
	if u.FromName != nil {
		add("from_name", *u.FromName)
	}
	if u.FromEmail != nil {
		add("from_email", *u.FromEmail)
	}
	if u.ReplyTo != nil {
		add("reply_to_email", *u.ReplyTo)
	}
	if u.Target != nil {
		add("send_to_all", u.Target.SendToAll)
		add("target_interests", pq.Array(nonNil(u.Target.InterestTags)))
		add("target_subscribers", pq.Array(nonNil(u.Target.SubscriberIDs)))
	}

	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "updated_at = NOW()")
	q := fmt.Sprintf("UPDATE newsletter_campaigns SET %s WHERE id = $%d AND status IN ('draft','scheduled')",
		joinComma(sets), idx)
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	return r.checkClaimed(ctx, res, id)
}

func (r *CampaignRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM newsletter_campaigns
		WHERE id = $1 AND status IN ('draft','cancelled')
	`, id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			// Ledger entries reference the campaign.
			return campaign.ErrStateConflict
		}
		return fmt.Errorf("delete campaign: %w", err)
	}
	return r.checkClaimed(ctx, res, id)
}

func (r *CampaignRepo) Transition(ctx context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE newsletter_campaigns SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = ANY($3)
	`, to, id, pq.Array(statusStrings(from)))
	if err != nil {
		return fmt.Errorf("transition campaign: %w", err)
	}
	return r.checkClaimed(ctx, res, id)
}

func (r *CampaignRepo) Schedule(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE newsletter_campaigns SET status = 'scheduled', scheduled_at = $1, updated_at = NOW()
		WHERE id = $2 AND status IN ('draft','scheduled')
	`, at, id)
	if err != nil {
		return fmt.Errorf("schedule campaign: %w", err)
	}
	return r.checkClaimed(ctx, res, id)
}

func (r *CampaignRepo) BeginSend(ctx context.Context, id string, recipients int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE newsletter_campaigns SET status = 'sending', total_recipients = $1, updated_at = NOW()
		WHERE id = $2 AND status IN ('draft','scheduled')
	`, recipients, id)
	if err != nil {
		return fmt.Errorf("begin send: %w", err)
	}
	return r.checkClaimed(ctx, res, id)
}

func (r *CampaignRepo) CompleteSend(ctx context.Context, id string, sent int, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE newsletter_campaigns SET status = 'sent', total_sent = $1, sent_at = $2, updated_at = $2
		WHERE id = $3 AND status = 'sending'
	`, sent, at, id)
	if err != nil {
		return fmt.Errorf("complete send: %w", err)
	}
	return r.checkClaimed(ctx, res, id)
}

func (r *CampaignRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM newsletter_campaigns
		WHERE status = 'scheduled' AND scheduled_at <= $1
		ORDER BY scheduled_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// checkClaimed turns a conditional write that touched no rows into
// ErrNotFound or ErrStateConflict depending on whether the row exists.
func (r *CampaignRepo) checkClaimed(ctx context.Context, res sql.Result, id string) error {
	n, _ := res.RowsAffected()
	if n > 0 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM newsletter_campaigns WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check campaign: %w", err)
	}
	if !exists {
		return campaign.ErrNotFound
	}
	return campaign.ErrStateConflict
}

func statusStrings(in []domain.CampaignStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}
