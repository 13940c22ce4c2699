package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ashita-ai/xiaoban/internal/model"
	"github.com/ashita-ai/xiaoban/internal/proactive"
	"github.com/ashita-ai/xiaoban/internal/service/status"
)

// Store is the subset of storage.Store the handlers use directly.
type Store interface {
	Ping(ctx context.Context) error
	Dialect() string
	AddSubscription(ctx context.Context, sub model.PushSubscription) error
	RemoveSubscription(ctx context.Context, endpoint string) error
}

// Proactive is the subset of *proactive.Engine exposed over HTTP.
type Proactive interface {
	FireNow(ctx context.Context) (proactive.Firing, bool)
	TakePending() (string, bool)
	Rules() []proactive.RuleState
	Stats() proactive.Stats
	Running() bool
}

// Pusher delivers a notification to every subscribed browser.
type Pusher interface {
	Enabled() bool
	Broadcast(ctx context.Context, title, body string) int
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	store               Store
	statusSvc           *status.Service
	engine              Proactive
	pusher              Pusher
	vapidPublicKey      string
	pushTitle           string
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	openapiSpec         []byte

	pings singleflight.Group
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Engine, Pusher, OpenAPISpec.
type HandlersDeps struct {
	Store               Store
	StatusSvc           *status.Service
	Engine              Proactive
	Pusher              Pusher
	VAPIDPublicKey      string
	PushTitle           string
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
}

const defaultMaxRequestBodyBytes = 1 << 20

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	if d.MaxRequestBodyBytes <= 0 {
		d.MaxRequestBodyBytes = defaultMaxRequestBodyBytes
	}
	if d.PushTitle == "" {
		d.PushTitle = proactive.DefaultPushTitle
	}
	return &Handlers{
		store:               d.Store,
		statusSvc:           d.StatusSvc,
		engine:              d.Engine,
		pusher:              d.Pusher,
		vapidPublicKey:      d.VAPIDPublicKey,
		pushTitle:           d.PushTitle,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		openapiSpec:         d.OpenAPISpec,
	}
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	httpStatus := http.StatusOK

	storeStatus := h.store.Dialect()
	if err := h.pingStore(); err != nil {
		storeStatus = h.store.Dialect() + " (disconnected)"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	scheduler := "disabled"
	if h.engine != nil {
		scheduler = "stopped"
		if h.engine.Running() {
			scheduler = "running"
		}
	}

	writeJSON(w, r, httpStatus, model.HealthResponse{
		Status:    status,
		Version:   h.version,
		Store:     storeStatus,
		Scheduler: scheduler,
		Uptime:    int64(time.Since(h.startedAt).Seconds()),
	})
}

const healthPingTimeout = 3 * time.Second

// pingStore collapses concurrent health probes into one store ping. The ping
// runs on its own context so one caller hanging up cannot fail the others.
func (h *Handlers) pingStore() error {
	res, _, _ := h.pings.Do("ping", func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), healthPingTimeout)
		defer cancel()
		return h.store.Ping(ctx), nil
	})
	if err, ok := res.(error); ok {
		return err
	}
	return nil
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

// --- Shared helpers ---

const maxQueryLimit = 500

func queryInt(r *http.Request, key string, defaultVal int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// queryLimit returns a bounded limit value from query params.
// Values are clamped to [1, maxQueryLimit].
func queryLimit(r *http.Request, defaultVal int) int {
	limit := queryInt(r, "limit", defaultVal)
	if limit < 1 {
		return 1
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}
