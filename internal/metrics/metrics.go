package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codepair_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codepair_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Room metrics
	RoomsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codepair_rooms_created_total",
			Help: "Total rooms created",
		},
		[]string{"language"},
	)

	RoomMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codepair_room_mutations_total",
			Help: "Total successful room mutations",
		},
		[]string{"kind"}, // join, leave, code, language, participant_add, participant_remove
	)

	PublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codepair_publish_failures_total",
			Help: "Room updates that could not be published",
		},
	)

	// Push channel metrics
	Broadcasts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codepair_ws_broadcasts_total",
			Help: "Room updates fanned out to WebSocket subscribers",
		},
	)

	BroadcastDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codepair_ws_deliveries_total",
			Help: "Per-connection deliveries of room updates",
		},
		[]string{"result"}, // "sent" or "dropped"
	)

	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "codepair_ws_active_connections",
			Help: "Currently open WebSocket connections",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codepair_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
