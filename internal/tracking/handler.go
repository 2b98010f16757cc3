package tracking

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/newsletter/internal/pkg/logger"
	"github.com/ignite/newsletter/internal/service/engagement"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// Handler serves the open pixel and click redirect.
type Handler struct {
	signer *Signer
	sink   Sink
}

func NewHandler(signer *Signer, sink Sink) *Handler {
	return &Handler{signer: signer, sink: sink}
}

// Mount registers the tracking routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/t/o/{data}/{sig}", h.HandleOpen)
	r.Get("/t/c/{data}/{sig}", h.HandleClick)
}

// HandleOpen always answers with the pixel; bad links are not recorded.
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	link, err := h.signer.DecodeOpen(chi.URLParam(r, "data"), chi.URLParam(r, "sig"))
	if err != nil {
		logger.Debug("rejected open link", "error", err)
		servePixel(w)
		return
	}

	h.sink.Publish(r.Context(), engagement.Event{
		Type:         engagement.EventOpen,
		CampaignID:   link.CampaignID,
		SubscriberID: link.SubscriberID,
		IPAddress:    realIP(r),
		UserAgent:    r.UserAgent(),
		At:           time.Now().UTC(),
	})
	servePixel(w)
}

// HandleClick records the click and redirects to the signed target.
func (h *Handler) HandleClick(w http.ResponseWriter, r *http.Request) {
	link, err := h.signer.DecodeClick(chi.URLParam(r, "data"), chi.URLParam(r, "sig"))
	if err != nil {
		http.Error(w, "bad link", http.StatusBadRequest)
		return
	}

	h.sink.Publish(r.Context(), engagement.Event{
		Type:         engagement.EventClick,
		CampaignID:   link.CampaignID,
		SubscriberID: link.SubscriberID,
		URL:          link.URL,
		IPAddress:    realIP(r),
		UserAgent:    r.UserAgent(),
		At:           time.Now().UTC(),
	})
	http.Redirect(w, r, link.URL, http.StatusFound)
}

func servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}

// RealIP returns the client address, preferring proxy headers.
func RealIP(r *http.Request) string { return realIP(r) }

func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
