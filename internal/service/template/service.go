package template

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/newsletter/internal/domain"
)

// Service implements template business logic.
type Service struct {
	repo Repository
	now  func() time.Time

	syntax SyntaxChecker
}

// SyntaxChecker parses template text without rendering it.
type SyntaxChecker interface {
	Validate(tpl string) error
}

// SetSyntaxChecker rejects templates that do not parse.
func (s *Service) SetSyntaxChecker(c SyntaxChecker) { s.syntax = c }

// NewService creates a template service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// CreateInput holds the fields for a new template.
type CreateInput struct {
	Name            string              `json:"name"`
	Type            domain.TemplateType `json:"template_type"`
	Description     string              `json:"description"`
	SubjectTemplate string              `json:"subject_template"`
	HTMLContent     string              `json:"html_content"`
	PlainContent    string              `json:"plain_text_content"`
}

// Create validates and stores a new, active, non-default template.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Template, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if in.SubjectTemplate == "" || in.HTMLContent == "" {
		return nil, fmt.Errorf("%w: subject and html content are required", ErrValidation)
	}
	if in.Type == "" {
		in.Type = domain.TemplateCustom
	}
	if s.syntax != nil {
		for _, part := range []string{in.SubjectTemplate, in.HTMLContent, in.PlainContent} {
			if err := s.syntax.Validate(part); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrValidation, err)
			}
		}
	}
	now := s.now().UTC()
	t := &domain.Template{
		ID:              uuid.New().String(),
		Name:            strings.TrimSpace(in.Name),
		Type:            in.Type,
		Description:     in.Description,
		SubjectTemplate: in.SubjectTemplate,
		HTMLContent:     in.HTMLContent,
		PlainContent:    in.PlainContent,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Get returns a single template.
func (s *Service) Get(ctx context.Context, id string) (*domain.Template, error) {
	return s.repo.Get(ctx, id)
}

// List returns templates, optionally filtered by type.
func (s *Service) List(ctx context.Context, t domain.TemplateType) ([]domain.Template, error) {
	return s.repo.List(ctx, t)
}

// SetDefault makes id the single default template of its type.
func (s *Service) SetDefault(ctx context.Context, id string) (*domain.Template, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, ErrInactive
	}
	if err := s.repo.SetDefault(ctx, id); err != nil {
		return nil, err
	}
	t.IsDefault = true
	return t, nil
}

// Default returns the default template for a type.
func (s *Service) Default(ctx context.Context, t domain.TemplateType) (*domain.Template, error) {
	return s.repo.Default(ctx, t)
}

// Use returns an active template and counts the use.
func (s *Service) Use(ctx context.Context, id string) (*domain.Template, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, ErrInactive
	}
	if err := s.repo.IncrementUsage(ctx, id); err != nil {
		return nil, err
	}
	t.TimesUsed++
	return t, nil
}
