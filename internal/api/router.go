package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/codepair/internal/api/middleware"
	"github.com/eldtechnologies/codepair/internal/handlers"
	"github.com/eldtechnologies/codepair/internal/rooms"
	"github.com/eldtechnologies/codepair/internal/ws"
)

// maxBodyBytes bounds request bodies; the largest is a full code buffer.
const maxBodyBytes = 512 * 1024

// Options carries the router's dependencies. Redis is optional.
type Options struct {
	Rooms          *rooms.Store
	Hub            *ws.Hub
	Redis          *redis.Client
	AllowedOrigins []string
	RateLimit      middleware.RateLimiterConfig
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(maxBodyBytes))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting needs Redis
	if opts.Redis != nil {
		limiter := middleware.NewRateLimiter(opts.Redis, logger, opts.RateLimit)
		r.Use(limiter.Middleware)
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(opts.Rooms, opts.Redis, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/ws", opts.Hub.ServeWS)

	r.Route("/rooms", func(r chi.Router) {
		r.Post("/", h.CreateRoom)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetRoom)
			r.Post("/join", h.JoinRoom)
			r.Post("/leave", h.LeaveRoom)
			r.Patch("/code", h.UpdateCode)
			r.Patch("/language", h.UpdateLanguage)
			r.Post("/participants", h.AddParticipant)
			r.Get("/participants", h.ListParticipants)
			r.Delete("/participants/{pid}", h.RemoveParticipant)
		})
	})

	return r
}
