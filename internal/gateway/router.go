package gateway

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router builds the chi mux for every endpoint named in §4.6.
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(tracingMiddleware)
	r.Use(requestLogger)
	r.Use(limitBody(g.cfg.MaxBodyBytes))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Nexus-Backend", "X-Nexus-Backend-Type", "X-Nexus-Route-Reason", "X-Nexus-Privacy-Zone", "X-Nexus-Cost-Estimated"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", g.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	limitClients := rateLimiter(context.Background(), g.cfg.RateLimit)

	r.Route("/v1", func(r chi.Router) {
		r.With(limitClients).Post("/chat/completions", g.handleChatCompletions)
		r.Post("/embeddings", g.handleEmbeddings)
		r.Get("/models", g.handleListModels)

		r.Route("/models", func(r chi.Router) {
			r.Post("/load", g.handleLoadModel)
			r.Post("/migrate", g.handleMigrateModel)
			r.Delete("/{model_id}", g.handleUnloadModel)
		})

		r.Get("/fleet/recommendations", g.handleFleetRecommendations)
	})

	return r
}
