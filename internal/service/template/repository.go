package template

import (
	"context"

	"github.com/ignite/newsletter/internal/domain"
)

// Repository defines the data access contract for templates.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single template. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Template, error)

	// List returns templates, optionally of one type, ordered by type then name.
	List(ctx context.Context, t domain.TemplateType) ([]domain.Template, error)

	// Create inserts a new template. IsDefault is ignored.
	Create(ctx context.Context, t *domain.Template) error

	// SetDefault marks id as the default of its type and clears the flag
	// on every other template of that type, in one transaction.
	SetDefault(ctx context.Context, id string) error

	// Default returns the default template of a type.
	Default(ctx context.Context, t domain.TemplateType) (*domain.Template, error)

	// IncrementUsage adds one to times_used.
	IncrementUsage(ctx context.Context, id string) error
}
