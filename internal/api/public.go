package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/pkg/httputil"
	"github.com/ignite/newsletter/internal/pkg/logger"
	"github.com/ignite/newsletter/internal/service/subscriber"
	"github.com/ignite/newsletter/internal/tracking"
)

const pageTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{ title | escape }}</title>
<style>body{font-family:Arial,sans-serif;max-width:480px;margin:80px auto;color:#333;text-align:center;}</style>
</head>
<body>
<h1>{{ title | escape }}</h1>
<p>{{ message | escape }}</p>
</body>
</html>`

// Subscribe handles POST /newsletter/subscribe
func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	var in subscriber.SubscribeInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	in.IPAddress = tracking.RealIP(r)
	in.UserAgent = r.UserAgent()

	sub, err := h.subscribers.Subscribe(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	message := "Thanks for subscribing!"
	if !sub.IsVerified {
		message = "Please check your inbox to confirm your subscription."
	}
	httputil.Created(w, map[string]interface{}{
		"id":          sub.ID,
		"email":       sub.Email,
		"is_verified": sub.IsVerified,
		"message":     message,
	})
}

// Confirm handles GET /newsletter/confirm/{token}
func (h *Handlers) Confirm(w http.ResponseWriter, r *http.Request) {
	sub, err := h.subscribers.Confirm(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.publicError(w, r, err)
		return
	}
	h.respondPage(w, r, http.StatusOK, sub, "Subscription confirmed",
		"Your email address is confirmed. Welcome aboard!")
}

// Unsubscribe handles GET and POST /newsletter/unsubscribe/{token}?campaign=
// Repeating the request succeeds without further effects.
func (h *Handlers) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	sub, err := h.subscribers.Unsubscribe(r.Context(), subscriber.UnsubscribeInput{
		Token:      chi.URLParam(r, "token"),
		CampaignID: r.URL.Query().Get("campaign"),
		Reason:     r.URL.Query().Get("reason"),
		IPAddress:  tracking.RealIP(r),
		UserAgent:  r.UserAgent(),
	})
	if err != nil {
		h.publicError(w, r, err)
		return
	}
	h.respondPage(w, r, http.StatusOK, sub, "You have been unsubscribed",
		"You will no longer receive our newsletter.")
}

func (h *Handlers) publicError(w http.ResponseWriter, r *http.Request, err error) {
	if wantsJSON(r) {
		respondError(w, r, err)
		return
	}
	switch {
	case isClientError(err):
		h.respondPage(w, r, http.StatusNotFound, nil, "Link not valid",
			"This link is invalid or has expired.")
	default:
		logger.Error("public page failed", "path", r.URL.Path, "error", err)
		h.respondPage(w, r, http.StatusInternalServerError, nil, "Something went wrong",
			"Please try again later.")
	}
}

func (h *Handlers) respondPage(w http.ResponseWriter, r *http.Request, status int, sub *domain.Subscriber, title, message string) {
	if wantsJSON(r) {
		body := map[string]interface{}{"message": message}
		if sub != nil {
			body["email"] = sub.Email
			body["status"] = sub.Status
			body["is_verified"] = sub.IsVerified
		}
		httputil.JSON(w, status, body)
		return
	}
	page, err := h.pages.Render(pageTemplate, map[string]interface{}{"title": title, "message": message})
	if err != nil {
		logger.Error("render public page", "error", err)
		http.Error(w, message, status)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(page))
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func isClientError(err error) bool {
	return errors.Is(err, subscriber.ErrInvalidToken) || errors.Is(err, subscriber.ErrNotFound)
}
