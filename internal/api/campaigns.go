package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/pkg/httputil"
	"github.com/ignite/newsletter/internal/service/campaign"
	"github.com/ignite/newsletter/internal/service/ledger"
)

// CreateCampaign handles POST /api/campaigns
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.CreateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, err := h.campaigns.Create(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.Created(w, c)
}

// ListCampaigns handles GET /api/campaigns?status=&search=&page=&limit=
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r, 20, 100)
	q := r.URL.Query()
	items, total, err := h.campaigns.List(r.Context(), campaign.ListFilter{
		Status: q.Get("status"),
		Search: q.Get("search"),
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Campaign{}
	}
	httputil.OK(w, paginated(items, p, total))
}

// GetCampaign handles GET /api/campaigns/{id}
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.OK(w, c)
}

type updateCampaignRequest struct {
	Name         *string              `json:"name"`
	Type         *domain.CampaignType `json:"campaign_type"`
	Subject      *string              `json:"subject"`
	Preheader    *string              `json:"preheader"`
	HTMLContent  *string              `json:"html_content"`
	PlainContent *string              `json:"plain_text_content"`
	FromName     *string              `json:"from_name"`
	FromEmail    *string              `json:"from_email"`
	ReplyTo      *string              `json:"reply_to_email"`
	Target       *domain.TargetRule   `json:"target"`
}

// UpdateCampaign handles PUT /api/campaigns/{id}. Only draft and
// scheduled campaigns are editable.
func (h *Handlers) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var req updateCampaignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Type != nil && !req.Type.Valid() {
		httputil.BadRequest(w, "unknown campaign type "+string(*req.Type))
		return
	}
	id := chi.URLParam(r, "id")
	err := h.campaigns.Update(r.Context(), id, campaign.UpdateFields{
		Name:         req.Name,
		Type:         req.Type,
		Subject:      req.Subject,
		Preheader:    req.Preheader,
		HTMLContent:  req.HTMLContent,
		PlainContent: req.PlainContent,
		FromName:     req.FromName,
		FromEmail:    req.FromEmail,
		ReplyTo:      req.ReplyTo,
		Target:       req.Target,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.GetCampaign(w, r)
}

// DeleteCampaign handles DELETE /api/campaigns/{id}
func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	httputil.NoContent(w)
}

// SendCampaign handles POST /api/campaigns/{id}/send. The send runs in
// the request; the response carries the per-recipient summary.
func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, campaign.StartSend{CampaignID: chi.URLParam(r, "id")})
}

// SendTestCampaign handles POST /api/campaigns/{id}/test
func (h *Handlers) SendTestCampaign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Email == "" {
		httputil.BadRequest(w, "email is required")
		return
	}
	h.execute(w, r, campaign.SendTest{CampaignID: chi.URLParam(r, "id"), Address: req.Email})
}

// CancelCampaign handles POST /api/campaigns/{id}/cancel
func (h *Handlers) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, campaign.Cancel{CampaignID: chi.URLParam(r, "id")})
}

func (h *Handlers) execute(w http.ResponseWriter, r *http.Request, a campaign.Action) {
	res, err := h.campaigns.Execute(r.Context(), a)
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.OK(w, res)
}

// ScheduleCampaign handles POST /api/campaigns/{id}/schedule
func (h *Handlers) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScheduledAt time.Time `json:"scheduled_at"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.ScheduledAt.IsZero() {
		httputil.BadRequest(w, "scheduled_at is required")
		return
	}
	c, err := h.campaigns.Schedule(r.Context(), chi.URLParam(r, "id"), req.ScheduledAt)
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.OK(w, c)
}

// DuplicateCampaign handles POST /api/campaigns/{id}/duplicate
func (h *Handlers) DuplicateCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Duplicate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.Created(w, c)
}

// CampaignStats handles GET /api/campaigns/{id}/stats
func (h *Handlers) CampaignStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.campaigns.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.OK(w, st)
}

// ReconcileCampaign handles GET /api/campaigns/{id}/reconcile
func (h *Handlers) ReconcileCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	rec, err := h.ledger.Reconcile(r.Context(), c)
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.OK(w, rec)
}

// CampaignActivity handles GET /api/campaigns/{id}/activity?type=
func (h *Handlers) CampaignActivity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.campaigns.Get(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	p := ParsePagination(r, 50, 500)
	entries, err := h.ledger.List(r.Context(), ledger.ListFilter{
		CampaignID: id,
		Type:       domain.ActivityType(r.URL.Query().Get("type")),
		Limit:      p.Limit,
		Offset:     p.Offset,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.Activity{}
	}
	httputil.OK(w, map[string]interface{}{"data": entries, "page": p.Page, "limit": p.Limit})
}
