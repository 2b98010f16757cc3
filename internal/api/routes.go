package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/newsletter/internal/pkg/logger"
)

// SetupRoutes configures the public newsletter routes and the admin API.
// Authentication of /api is left to the fronting proxy.
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(requestLogger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.health.HandleHealth)
	r.Get("/health/live", h.health.HandleLiveness)
	r.Get("/health/ready", h.health.HandleReadiness)

	r.Route("/newsletter", func(r chi.Router) {
		r.Post("/subscribe", h.Subscribe)
		r.Get("/confirm/{token}", h.Confirm)
		r.Get("/unsubscribe/{token}", h.Unsubscribe)
		r.Post("/unsubscribe/{token}", h.Unsubscribe)
	})

	if h.tracking != nil {
		h.tracking.Mount(r)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", h.ListCampaigns)
			r.Post("/", h.CreateCampaign)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetCampaign)
				r.Put("/", h.UpdateCampaign)
				r.Delete("/", h.DeleteCampaign)
				r.Post("/send", h.SendCampaign)
				r.Post("/test", h.SendTestCampaign)
				r.Post("/cancel", h.CancelCampaign)
				r.Post("/schedule", h.ScheduleCampaign)
				r.Post("/duplicate", h.DuplicateCampaign)
				r.Get("/stats", h.CampaignStats)
				r.Get("/reconcile", h.ReconcileCampaign)
				r.Get("/activity", h.CampaignActivity)
			})
		})

		r.Route("/subscribers", func(r chi.Router) {
			r.Get("/", h.ListSubscribers)
			r.Post("/status", h.SetSubscriberStatus)
			r.Get("/{id}", h.GetSubscriber)
			r.Delete("/{id}", h.PurgeSubscriber)
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", h.ListTemplates)
			r.Post("/", h.CreateTemplate)
			r.Get("/{id}", h.GetTemplate)
			r.Post("/{id}/default", h.SetDefaultTemplate)
		})

		r.Post("/digest", h.BuildDigest)
	})

	return r
}

// requestLogger logs each request through the structured logger instead of
// chi's stdlib-backed middleware.Logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
