package campaign

import (
	"errors"
	"fmt"

	"github.com/ignite/newsletter/internal/domain"
)

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound      = errors.New("campaign not found")
	ErrInvalidState  = errors.New("invalid campaign state")
	ErrEmptyAudience = errors.New("campaign audience is empty")
	ErrValidation    = errors.New("invalid campaign")

	// ErrStateConflict is returned by repositories when a conditional
	// status update matched no row because the status had moved on.
	ErrStateConflict = errors.New("campaign status changed concurrently")
)

// InvalidStateError reports an operation attempted from a disallowed
// status. errors.Is(err, ErrInvalidState) matches it.
type InvalidStateError struct {
	CampaignID string
	Current    domain.CampaignStatus
	Op         string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s campaign %s in %q status", e.Op, e.CampaignID, e.Current)
}

// Is matches ErrInvalidState.
func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
