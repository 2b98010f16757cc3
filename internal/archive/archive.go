// Package archive keeps a durable copy of every finished campaign: a
// stats snapshot and an export of the campaign's activity ledger.
//
// Two backends exist. The local backend writes JSON files under a
// directory; the AWS backend puts snapshots in DynamoDB and ledger
// exports in S3.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/newsletter/internal/config"
	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/pkg/logger"
	"github.com/ignite/newsletter/internal/service/ledger"
	"github.com/ignite/newsletter/internal/service/metrics"
)

// ErrNotFound is returned when no snapshot exists for a campaign.
var ErrNotFound = errors.New("archive not found")

// exportPageSize is how many ledger entries are read per page while
// exporting.
const exportPageSize = 500

// Snapshot is the archived view of a campaign after its send completed.
type Snapshot struct {
	CampaignID string               `json:"campaign_id"`
	Name       string               `json:"name"`
	Subject    string               `json:"subject"`
	Stats      domain.CampaignStats `json:"stats"`
	Entries    int                  `json:"ledger_entries"`
	ArchivedAt time.Time            `json:"archived_at"`
}

// Backend stores snapshots and ledger exports.
type Backend interface {
	SaveSnapshot(ctx context.Context, s *Snapshot) error
	LoadSnapshot(ctx context.Context, campaignID string) (*Snapshot, error)
	ExportActivity(ctx context.Context, campaignID string, entries []domain.Activity) error
}

// ActivitySource reads the activity ledger.
type ActivitySource interface {
	List(ctx context.Context, f ledger.ListFilter) ([]domain.Activity, error)
}

// Archiver implements campaign.Archiver on top of a Backend.
type Archiver struct {
	backend Backend
	ledger  ActivitySource
	now     func() time.Time
}

// NewArchiver creates an archiver that exports from src into backend.
func NewArchiver(backend Backend, src ActivitySource) *Archiver {
	return &Archiver{backend: backend, ledger: src, now: time.Now}
}

// New builds the backend selected by cfg.Type and wraps it.
func New(ctx context.Context, cfg config.ArchiveConfig, src ActivitySource) (*Archiver, error) {
	switch cfg.Type {
	case "", "local":
		return NewArchiver(NewLocalBackend(cfg.LocalPath), src), nil
	case "aws":
		b, err := NewAWSBackend(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewArchiver(b, src), nil
	default:
		return nil, fmt.Errorf("unknown archive type %q", cfg.Type)
	}
}

// ArchiveCampaign exports the campaign's ledger and then saves its stats
// snapshot. The snapshot is written last so its presence means the
// export completed.
func (a *Archiver) ArchiveCampaign(ctx context.Context, c *domain.Campaign) error {
	entries, err := a.collect(ctx, c.ID)
	if err != nil {
		return err
	}
	if err := a.backend.ExportActivity(ctx, c.ID, entries); err != nil {
		return fmt.Errorf("export activity: %w", err)
	}

	snap := &Snapshot{
		CampaignID: c.ID,
		Name:       c.Name,
		Subject:    c.Subject,
		Stats:      metrics.CampaignStats(c),
		Entries:    len(entries),
		ArchivedAt: a.now().UTC(),
	}
	if err := a.backend.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	logger.Info("campaign archived", "campaign_id", c.ID, "ledger_entries", len(entries))
	return nil
}

// Snapshot returns the latest archived snapshot of a campaign.
func (a *Archiver) Snapshot(ctx context.Context, campaignID string) (*Snapshot, error) {
	return a.backend.LoadSnapshot(ctx, campaignID)
}

func (a *Archiver) collect(ctx context.Context, campaignID string) ([]domain.Activity, error) {
	var all []domain.Activity
	for offset := 0; ; offset += exportPageSize {
		page, err := a.ledger.List(ctx, ledger.ListFilter{
			CampaignID: campaignID,
			Limit:      exportPageSize,
			Offset:     offset,
		})
		if err != nil {
			return nil, fmt.Errorf("read ledger: %w", err)
		}
		all = append(all, page...)
		if len(page) < exportPageSize {
			return all, nil
		}
	}
}
