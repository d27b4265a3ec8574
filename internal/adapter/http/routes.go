package http

import (
	"github.com/go-chi/chi/v5"

	"github.com/syncbridge/syncbridge/internal/config"
	"github.com/syncbridge/syncbridge/internal/middleware"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, webhookCfg config.Webhook) {
	// Ingestion webhooks (outside auth, HMAC-verified)
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.With(middleware.WebhookHMAC(webhookCfg.TrackerSecret, "X-Sync-Signature-256")).
			Post("/tracker", h.HandleTrackerWebhook)
	})

	r.Route("/api/v1/sync", func(r chi.Router) {
		r.Post("/enqueue", h.Enqueue)
		r.Post("/enqueue-all", h.EnqueueAllPending)
		r.Post("/enqueue-type", h.EnqueueAllByType)

		r.Get("/entities/{id}", h.GetEntity)
		r.Get("/entities/{id}/records", h.ListRecords)
		r.Delete("/entities/{id}", h.DeleteEntity)
	})
}
