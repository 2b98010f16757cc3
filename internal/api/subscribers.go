package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/pkg/httputil"
	"github.com/ignite/newsletter/internal/service/metrics"
	"github.com/ignite/newsletter/internal/service/subscriber"
)

// ListSubscribers handles GET /api/subscribers?status=&verified=&interest=&search=
func (h *Handlers) ListSubscribers(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r, 50, 500)
	q := r.URL.Query()
	f := subscriber.Filter{
		Status: domain.SubscriberStatus(q.Get("status")),
		Search: q.Get("search"),
		Limit:  p.Limit,
		Offset: p.Offset,
	}
	if v := q.Get("verified"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			httputil.BadRequest(w, "verified must be true or false")
			return
		}
		f.Verified = &b
	}
	if v := q.Get("interest"); v != "" {
		f.AnyInterest = subscriber.NormalizeTags(strings.Split(v, ","))
	}

	subs, total, err := h.subscribers.List(r.Context(), f)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if subs == nil {
		subs = []domain.Subscriber{}
	}
	httputil.OK(w, paginated(subs, p, total))
}

// GetSubscriber handles GET /api/subscribers/{id}
func (h *Handlers) GetSubscriber(w http.ResponseWriter, r *http.Request) {
	sub, err := h.subscribers.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"subscriber": sub,
		"engagement": metrics.Engagement(sub, time.Now()),
	})
}

// SetSubscriberStatus handles POST /api/subscribers/status, the bulk
// activate/deactivate action.
func (h *Handlers) SetSubscriberStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs    []string                `json:"ids"`
		Status domain.SubscriberStatus `json:"status"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	n, err := h.subscribers.SetStatus(r.Context(), req.IDs, req.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.OK(w, map[string]int{"updated": n})
}

// PurgeSubscriber handles DELETE /api/subscribers/{id}
func (h *Handlers) PurgeSubscriber(w http.ResponseWriter, r *http.Request) {
	if err := h.subscribers.Purge(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	httputil.NoContent(w)
}
