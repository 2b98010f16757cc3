package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/service/template"
)

// TemplateRepo implements template.Repository.
type TemplateRepo struct{ s *Store }

func (r *TemplateRepo) Get(_ context.Context, id string) (*domain.Template, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.templates[id]
	if !ok {
		return nil, template.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *TemplateRepo) List(_ context.Context, typ domain.TemplateType) ([]domain.Template, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Template
	for _, t := range r.s.templates {
		if typ == "" || t.Type == typ {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *TemplateRepo) Create(_ context.Context, t *domain.Template) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t.ID == "" {
		return fmt.Errorf("id required")
	}
	cp := *t
	cp.IsDefault = false
	r.s.templates[t.ID] = &cp
	return nil
}

func (r *TemplateRepo) SetDefault(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	target, ok := r.s.templates[id]
	if !ok {
		return template.ErrNotFound
	}
	now := time.Now().UTC()
	for _, t := range r.s.templates {
		if t.Type == target.Type && t.IsDefault && t.ID != id {
			t.IsDefault = false
			t.UpdatedAt = now
		}
	}
	target.IsDefault = true
	target.UpdatedAt = now
	return nil
}

func (r *TemplateRepo) Default(_ context.Context, typ domain.TemplateType) (*domain.Template, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.templates {
		if t.Type == typ && t.IsDefault {
			cp := *t
			return &cp, nil
		}
	}
	return nil, template.ErrNotFound
}

func (r *TemplateRepo) IncrementUsage(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.templates[id]
	if !ok {
		return template.ErrNotFound
	}
	t.TimesUsed++
	return nil
}
