package api

import (
	"errors"
	"net/http"

	"github.com/ignite/newsletter/internal/digest"
	"github.com/ignite/newsletter/internal/pkg/httputil"
	"github.com/ignite/newsletter/internal/service/campaign"
	"github.com/ignite/newsletter/internal/service/engagement"
	"github.com/ignite/newsletter/internal/service/ledger"
	"github.com/ignite/newsletter/internal/service/subscriber"
	"github.com/ignite/newsletter/internal/service/template"
)

// respondError maps a service error to its HTTP status. Only 4xx errors
// expose their message; everything else is logged and answered with a
// generic 500.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var stateErr *campaign.InvalidStateError
	switch {
	case errors.Is(err, campaign.ErrNotFound),
		errors.Is(err, subscriber.ErrNotFound),
		errors.Is(err, template.ErrNotFound):
		httputil.NotFound(w, err.Error())

	case errors.As(err, &stateErr):
		httputil.Conflict(w, "invalid_state", err.Error(), map[string]string{
			"campaign_id": stateErr.CampaignID,
			"status":      string(stateErr.Current),
		})
	case errors.Is(err, campaign.ErrStateConflict):
		httputil.Conflict(w, "state_conflict", err.Error(), nil)
	case errors.Is(err, subscriber.ErrDuplicateEmail):
		httputil.Conflict(w, "duplicate_email", err.Error(), nil)

	case errors.Is(err, campaign.ErrEmptyAudience):
		httputil.Unprocessable(w, "empty_audience", err.Error())
	case errors.Is(err, digest.ErrNoItems):
		httputil.Unprocessable(w, "no_items", err.Error())
	case errors.Is(err, template.ErrInactive):
		httputil.Unprocessable(w, "template_inactive", err.Error())

	case errors.Is(err, campaign.ErrValidation),
		errors.Is(err, template.ErrValidation),
		errors.Is(err, subscriber.ErrInvalidEmail),
		errors.Is(err, subscriber.ErrInvalidToken),
		errors.Is(err, subscriber.ErrInvalidStatus),
		errors.Is(err, engagement.ErrInvalidEvent),
		errors.Is(err, ledger.ErrInvalidActivity):
		httputil.BadRequest(w, err.Error())

	default:
		httputil.InternalError(w, r, err)
	}
}
