package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/service/subscriber"
	"github.com/lib/pq"
)

// SubscriberRepo implements subscriber.Repository and audience.Store
// against PostgreSQL.
type SubscriberRepo struct{ db *sql.DB }

// NewSubscriberRepo creates a Postgres-backed subscriber repository.
func NewSubscriberRepo(db *sql.DB) *SubscriberRepo { return &SubscriberRepo{db: db} }

const subscriberColumns = `
	id, email, first_name, last_name, status, subscription_token, interests, referrer_url,
	is_verified, verification_sent_at, verified_at,
	total_emails_sent, total_emails_opened, total_links_clicked, last_engagement,
	subscribed_at, unsubscribed_at, updated_at`

// SQLSTATE codes this package maps to domain errors.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

func scanSubscriber(row scanner) (*domain.Subscriber, error) {
	s := &domain.Subscriber{}
	var sentAt, verifiedAt, engagedAt, unsubAt sql.NullTime
	err := row.Scan(
		&s.ID, &s.Email, &s.FirstName, &s.LastName, &s.Status, &s.Token,
		pq.Array(&s.Interests), &s.Source,
		&s.IsVerified, &sentAt, &verifiedAt,
		&s.EmailsSent, &s.EmailsOpened, &s.LinksClicked, &engagedAt,
		&s.SubscribedAt, &unsubAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.VerificationSentAt = nullTime(sentAt)
	s.VerifiedAt = nullTime(verifiedAt)
	s.LastEngagement = nullTime(engagedAt)
	s.UnsubscribedAt = nullTime(unsubAt)
	return s, nil
}

func (r *SubscriberRepo) Get(ctx context.Context, id string) (*domain.Subscriber, error) {
	return r.getBy(ctx, "id", id)
}

func (r *SubscriberRepo) GetByToken(ctx context.Context, token string) (*domain.Subscriber, error) {
	return r.getBy(ctx, "subscription_token", token)
}

func (r *SubscriberRepo) getBy(ctx context.Context, col, val string) (*domain.Subscriber, error) {
	s, err := scanSubscriber(r.db.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM newsletter_subscribers WHERE `+col+` = $1`, val))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, subscriber.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "22P02" {
		// Malformed uuid in the lookup key.
		return nil, subscriber.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscriber: %w", err)
	}
	return s, nil
}

// filterClause renders f as a WHERE clause. Placeholders start at $1.
func filterClause(f subscriber.Filter) (string, []interface{}) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	idx := 1
	add := func(cond string, val interface{}) {
		where += fmt.Sprintf(" AND "+cond, idx)
		args = append(args, val)
		idx++
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Verified != nil {
		add("is_verified = $%d", *f.Verified)
	}
	if len(f.AnyInterest) > 0 {
		add("interests && $%d", pq.Array(f.AnyInterest))
	}
	if len(f.IDs) > 0 {
		add("id::text = ANY($%d)", pq.Array(f.IDs))
	}
	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		where += fmt.Sprintf(" AND (email ILIKE $%d OR (first_name || ' ' || last_name) ILIKE $%d)", idx, idx)
		args = append(args, pattern)
	}
	return where, args
}

func (r *SubscriberRepo) Find(ctx context.Context, f subscriber.Filter) ([]domain.Subscriber, error) {
	where, args := filterClause(f)
	q := `SELECT ` + subscriberColumns + ` FROM newsletter_subscribers` + where + ` ORDER BY id`
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, f.Limit)
	}
	if f.Offset > 0 {
		q += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("find subscribers: %w", err)
	}
	defer rows.Close()

	var out []domain.Subscriber
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *SubscriberRepo) Count(ctx context.Context, f subscriber.Filter) (int, error) {
	where, args := filterClause(f)
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM newsletter_subscribers`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count subscribers: %w", err)
	}
	return n, nil
}

func (r *SubscriberRepo) Create(ctx context.Context, s *domain.Subscriber) error {
	if s.ID == "" {
		return fmt.Errorf("create subscriber: id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO newsletter_subscribers
			(id, email, first_name, last_name, status, subscription_token, interests, referrer_url,
			 is_verified, verified_at, subscribed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`, s.ID, s.Email, s.FirstName, s.LastName, s.Status, s.Token,
		pq.Array(nonNil(s.Interests)), s.Source, s.IsVerified, s.VerifiedAt, s.SubscribedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return subscriber.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("create subscriber: %w", err)
	}
	return nil
}

func (r *SubscriberRepo) Update(ctx context.Context, s *domain.Subscriber) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE newsletter_subscribers
		SET first_name = $1, last_name = $2, interests = $3, updated_at = NOW()
		WHERE id = $4
	`, s.FirstName, s.LastName, pq.Array(nonNil(s.Interests)), s.ID)
	if err != nil {
		return fmt.Errorf("update subscriber: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return subscriber.ErrNotFound
	}
	return nil
}

func (r *SubscriberRepo) MarkVerified(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE newsletter_subscribers SET is_verified = TRUE, verified_at = $1, updated_at = $1
		WHERE id = $2 AND NOT is_verified
	`, at, id)
	if err != nil {
		return false, fmt.Errorf("mark verified: %w", err)
	}
	return r.changedOrMissing(ctx, res, id)
}

func (r *SubscriberRepo) MarkVerificationSent(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE newsletter_subscribers SET verification_sent_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("mark verification sent: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return subscriber.ErrNotFound
	}
	return nil
}

// Unsubscribe writes the status change, the ledger entry and the
// campaign attribution in one transaction.
func (r *SubscriberRepo) Unsubscribe(ctx context.Context, id string, at time.Time, entry *domain.Activity) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE newsletter_subscribers SET status = 'unsubscribed', unsubscribed_at = $1, updated_at = $1
		WHERE id = $2 AND status <> 'unsubscribed'
	`, at, id)
	if err != nil {
		return false, fmt.Errorf("unsubscribe: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM newsletter_subscribers WHERE id = $1)`, id).Scan(&exists); err != nil {
			return false, fmt.Errorf("check subscriber: %w", err)
		}
		if !exists {
			return false, subscriber.ErrNotFound
		}
		return false, nil
	}

	if entry.CampaignID != nil {
		attributed := false
		if _, err := uuid.Parse(*entry.CampaignID); err == nil {
			res, err := tx.ExecContext(ctx, `
				UPDATE newsletter_campaigns SET total_unsubscribed = total_unsubscribed + 1
				WHERE id = $1 AND status IN ('sending','sent')
			`, *entry.CampaignID)
			if err != nil {
				return false, fmt.Errorf("attribute unsubscribe: %w", err)
			}
			n, _ := res.RowsAffected()
			attributed = n > 0
		}
		if !attributed {
			entry.CampaignID = nil
		}
	}
	if err := appendActivity(ctx, tx, entry); err != nil {
		return false, fmt.Errorf("append activity: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit unsubscribe: %w", err)
	}
	return true, nil
}

func (r *SubscriberRepo) SetStatus(ctx context.Context, ids []string, status domain.SubscriberStatus) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE newsletter_subscribers SET status = $1, updated_at = NOW()
		WHERE id::text = ANY($2) AND status <> $1
	`, status, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("set subscriber status: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Delete removes the subscriber. Ledger rows stay; the foreign key clears
// their subscriber_id.
func (r *SubscriberRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM newsletter_subscribers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return subscriber.ErrNotFound
	}
	return nil
}

// changedOrMissing reports whether a conditional update changed the row,
// returning ErrNotFound when the row does not exist at all.
func (r *SubscriberRepo) changedOrMissing(ctx context.Context, res sql.Result, id string) (bool, error) {
	n, _ := res.RowsAffected()
	if n > 0 {
		return true, nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM newsletter_subscribers WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check subscriber: %w", err)
	}
	if !exists {
		return false, subscriber.ErrNotFound
	}
	return false, nil
}
