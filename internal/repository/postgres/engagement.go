package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/newsletter/internal/service/engagement"
	"github.com/lib/pq"
)

// EngagementRepo implements engagement.Repository against PostgreSQL.
type EngagementRepo struct{ db *sql.DB }

// NewEngagementRepo creates a Postgres-backed engagement repository.
func NewEngagementRepo(db *sql.DB) *EngagementRepo { return &EngagementRepo{db: db} }

// Apply writes the ledger entry, the campaign counter and the subscriber
// changes of e in one transaction.
func (r *EngagementRepo) Apply(ctx context.Context, e engagement.Effect) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var campaignOK, subscriberOK bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM newsletter_campaigns WHERE id = $1),
		       EXISTS(SELECT 1 FROM newsletter_subscribers WHERE id = $2)
	`, e.CampaignID, e.SubscriberID).Scan(&campaignOK, &subscriberOK); err != nil {
		return false, fmt.Errorf("check event refs: %w", err)
	}
	if !campaignOK {
		return false, fmt.Errorf("%w: unknown campaign %s", engagement.ErrInvalidEvent, e.CampaignID)
	}
	if !subscriberOK {
		return false, fmt.Errorf("%w: unknown subscriber %s", engagement.ErrInvalidEvent, e.SubscriberID)
	}

	if e.Unique && e.Activity != nil {
		var seen bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM newsletter_activity
				WHERE subscriber_id = $1 AND campaign_id = $2 AND activity_type = $3)
		`, e.SubscriberID, e.CampaignID, e.Activity.Type).Scan(&seen); err != nil {
			return false, fmt.Errorf("check duplicate event: %w", err)
		}
		if seen {
			return false, nil
		}
	}

	if e.Delivery {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO newsletter_deliveries (campaign_id, subscriber_id, delivered_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (campaign_id, subscriber_id) DO NOTHING
		`, e.CampaignID, e.SubscriberID, e.At)
		if err != nil {
			return false, fmt.Errorf("mark delivered: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return false, nil
		}
	}

	if e.Activity != nil {
		if err := appendActivity(ctx, tx, e.Activity); err != nil {
			var pqErr *pq.Error
			if e.Unique && errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				// Lost a race with a concurrent copy of the same event.
				return false, nil
			}
			return false, fmt.Errorf("append activity: %w", err)
		}
	}

	if e.CampaignCounter != "" {
		col, ok := counterColumns[e.CampaignCounter]
		if !ok {
			return false, fmt.Errorf("unknown counter %q", e.CampaignCounter)
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE newsletter_campaigns SET %s = %s + 1 WHERE id = $1", col, col),
			e.CampaignID); err != nil {
			return false, fmt.Errorf("increment %s: %w", col, err)
		}
	}

	sets := []string{}
	args := []interface{}{}
	if e.SubscriberOpened {
		sets = append(sets, "total_emails_opened = total_emails_opened + 1")
	}
	if e.SubscriberClicked {
		sets = append(sets, "total_links_clicked = total_links_clicked + 1")
	}
	if e.Touch {
		args = append(args, e.At)
		sets = append(sets, fmt.Sprintf("last_engagement = $%d", len(args)))
	}
	if e.SubscriberStatus != "" {
		args = append(args, e.SubscriberStatus, e.At)
		sets = append(sets,
			fmt.Sprintf("status = $%d", len(args)-1),
			fmt.Sprintf("updated_at = $%d", len(args)))
	}
	if len(sets) > 0 {
		args = append(args, e.SubscriberID)
		q := fmt.Sprintf("UPDATE newsletter_subscribers SET %s WHERE id = $%d", joinComma(sets), len(args))
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return false, fmt.Errorf("update subscriber engagement: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit engagement: %w", err)
	}
	return true, nil
}
