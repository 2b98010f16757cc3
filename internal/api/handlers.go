// Package api serves the admin JSON API and the public subscribe,
// confirm, unsubscribe and tracking endpoints.
package api

import (
	"math"
	"net/http"
	"strconv"

	"github.com/ignite/newsletter/internal/digest"
	"github.com/ignite/newsletter/internal/mailer"
	"github.com/ignite/newsletter/internal/service/campaign"
	"github.com/ignite/newsletter/internal/service/ledger"
	"github.com/ignite/newsletter/internal/service/subscriber"
	"github.com/ignite/newsletter/internal/service/template"
	"github.com/ignite/newsletter/internal/tracking"
)

// Deps are the services the handlers call. Digest and Tracking may be nil;
// their routes then answer 503 or are not mounted.
type Deps struct {
	Campaigns   *campaign.Service
	Subscribers *subscriber.Service
	Templates   *template.Service
	Ledger      *ledger.Service
	Digest      *digest.Builder
	Tracking    *tracking.Handler
	Health      *HealthChecker
	Pages       *mailer.Renderer
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	campaigns   *campaign.Service
	subscribers *subscriber.Service
	templates   *template.Service
	ledger      *ledger.Service
	digest      *digest.Builder
	tracking    *tracking.Handler
	health      *HealthChecker
	pages       *mailer.Renderer
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(d Deps) *Handlers {
	if d.Health == nil {
		d.Health = NewHealthChecker(nil, nil)
	}
	if d.Pages == nil {
		d.Pages = mailer.NewRenderer()
	}
	return &Handlers{
		campaigns:   d.Campaigns,
		subscribers: d.Subscribers,
		templates:   d.Templates,
		ledger:      d.Ledger,
		digest:      d.Digest,
		tracking:    d.Tracking,
		health:      d.Health,
		pages:       d.Pages,
	}
}

// PaginationParams holds parsed pagination values from query params.
type PaginationParams struct {
	Page   int
	Limit  int
	Offset int
}

// PaginatedResponse wraps list data with pagination metadata.
type PaginatedResponse struct {
	Data       interface{}    `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}

// PaginationMeta contains pagination metadata for the response.
type PaginationMeta struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
}

// ParsePagination reads page and limit, clamping limit to [1, maxLimit].
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) PaginationParams {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return PaginationParams{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

func paginated(data interface{}, p PaginationParams, total int) PaginatedResponse {
	pages := int(math.Ceil(float64(total) / float64(p.Limit)))
	if pages < 1 {
		pages = 1
	}
	return PaginatedResponse{
		Data: data,
		Pagination: PaginationMeta{
			Page:       p.Page,
			Limit:      p.Limit,
			Total:      total,
			TotalPages: pages,
			HasMore:    p.Page < pages,
		},
	}
}
