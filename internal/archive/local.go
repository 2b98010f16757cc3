package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ignite/newsletter/internal/domain"
)

// LocalBackend writes archives as JSON files:
//
//	<dir>/campaigns/<id>/snapshot.json
//	<dir>/campaigns/<id>/activity.json
type LocalBackend struct {
	dir string
	mu  sync.Mutex
}

// NewLocalBackend creates a file backend rooted at dir.
func NewLocalBackend(dir string) *LocalBackend {
	return &LocalBackend{dir: dir}
}

func (b *LocalBackend) campaignDir(id string) string {
	return filepath.Join(b.dir, "campaigns", filepath.Base(id))
}

func (b *LocalBackend) SaveSnapshot(_ context.Context, s *Snapshot) error {
	return b.writeJSON(filepath.Join(b.campaignDir(s.CampaignID), "snapshot.json"), s)
}

func (b *LocalBackend) LoadSnapshot(_ context.Context, campaignID string) (*Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(b.campaignDir(campaignID), "snapshot.json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &s, nil
}

func (b *LocalBackend) ExportActivity(_ context.Context, campaignID string, entries []domain.Activity) error {
	if entries == nil {
		entries = []domain.Activity{}
	}
	return b.writeJSON(filepath.Join(b.campaignDir(campaignID), "activity.json"), entries)
}

// writeJSON writes v to path through a temp file so readers never see a
// partial document.
func (b *LocalBackend) writeJSON(path string, v interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp, path)
}
