package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/service/ledger"
	"github.com/ignite/newsletter/internal/service/subscriber"
)

// ActivityRepo implements ledger.Repository against PostgreSQL.
type ActivityRepo struct{ db *sql.DB }

// NewActivityRepo creates a Postgres-backed activity ledger.
func NewActivityRepo(db *sql.DB) *ActivityRepo { return &ActivityRepo{db: db} }

const insertActivity = `
	INSERT INTO newsletter_activity
		(id, subscriber_id, campaign_id, activity_type, description, email_subject,
		 clicked_url, ip_address, user_agent, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func appendActivity(ctx context.Context, db execer, a *domain.Activity) error {
	_, err := db.ExecContext(ctx, insertActivity,
		a.ID, a.SubscriberID, a.CampaignID, a.Type, a.Description, a.EmailSubject,
		a.ClickedURL, a.IPAddress, a.UserAgent, a.CreatedAt)
	return err
}

func (r *ActivityRepo) Append(ctx context.Context, a *domain.Activity) error {
	if err := appendActivity(ctx, r.db, a); err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

func (r *ActivityRepo) AppendSend(ctx context.Context, a *domain.Activity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE newsletter_subscribers SET total_emails_sent = total_emails_sent + 1
		WHERE id = $1
	`, a.SubscriberID)
	if err != nil {
		return fmt.Errorf("bump emails sent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return subscriber.ErrNotFound
	}
	if err := appendActivity(ctx, tx, a); err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return tx.Commit()
}

func (r *ActivityRepo) List(ctx context.Context, f ledger.ListFilter) ([]domain.Activity, error) {
	q := `
		SELECT id, subscriber_id, campaign_id, activity_type, description, email_subject,
		       clicked_url, ip_address, user_agent, created_at
		FROM newsletter_activity WHERE 1=1`
	args := []interface{}{}
	idx := 1
	if f.SubscriberID != "" {
		q += fmt.Sprintf(" AND subscriber_id = $%d", idx)
		args = append(args, f.SubscriberID)
		idx++
	}
	if f.CampaignID != "" {
		q += fmt.Sprintf(" AND campaign_id = $%d", idx)
		args = append(args, f.CampaignID)
		idx++
	}
	if f.Type != "" {
		q += fmt.Sprintf(" AND activity_type = $%d", idx)
		args = append(args, f.Type)
		idx++
	}
	q += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT $%d OFFSET $%d", idx, idx+1)
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []domain.Activity
	for rows.Next() {
		var a domain.Activity
		var subscriberID, campaignID sql.NullString
		if err := rows.Scan(&a.ID, &subscriberID, &campaignID, &a.Type, &a.Description, &a.EmailSubject,
			&a.ClickedURL, &a.IPAddress, &a.UserAgent, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.SubscriberID = subscriberID.String // empty once the subscriber is purged
		if campaignID.Valid {
			a.CampaignID = &campaignID.String
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *ActivityRepo) CountByType(ctx context.Context, campaignID string) (map[domain.ActivityType]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT activity_type, COUNT(*)
		FROM newsletter_activity
		WHERE campaign_id = $1
		GROUP BY activity_type
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("count activity: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.ActivityType]int)
	for rows.Next() {
		var t domain.ActivityType
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan activity count: %w", err)
		}
		counts[t] = n
	}
	return counts, rows.Err()
}
