package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/newsletter/internal/digest"
	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/pkg/httputil"
	"github.com/ignite/newsletter/internal/service/template"
)

// CreateTemplate handles POST /api/templates
func (h *Handlers) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var in template.CreateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	t, err := h.templates.Create(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.Created(w, t)
}

// ListTemplates handles GET /api/templates?type=
func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	items, err := h.templates.List(r.Context(), domain.TemplateType(r.URL.Query().Get("type")))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Template{}
	}
	httputil.OK(w, map[string]interface{}{"data": items})
}

// GetTemplate handles GET /api/templates/{id}
func (h *Handlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.templates.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.OK(w, t)
}

// SetDefaultTemplate handles POST /api/templates/{id}/default
func (h *Handlers) SetDefaultTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.templates.SetDefault(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.OK(w, t)
}

// BuildDigest handles POST /api/digest
func (h *Handlers) BuildDigest(w http.ResponseWriter, r *http.Request) {
	if h.digest == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "digest feed is not configured")
		return
	}
	var req digest.Request
	if !httputil.Decode(w, r, &req) {
		return
	}
	c, err := h.digest.Build(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.Created(w, c)
}
