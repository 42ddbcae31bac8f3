package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
)

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

type HealthResponse struct {
	Status     HealthStatus          `json:"status"`
	CheckedAt  time.Time             `json:"checked_at"`
	Components map[string]CheckEntry `json:"components"`
}

type CheckEntry struct {
	Status     HealthStatus `json:"status"`
	Message    string       `json:"message,omitempty"`
	CheckedAt  time.Time    `json:"checked_at"`
	DurationMs int64        `json:"duration_ms"`
}

// Pinger is any dependency that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db    *sqlx.DB
	cache Pinger
}

// NewHealthHandler checks postgres, and redis when cache is not nil.
// Redis only degrades the service since the initiation throttle fails open.
func NewHealthHandler(db *sqlx.DB, cache Pinger) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

// pingHandler reports liveness only
func (h *HealthHandler) pingHandler(w http.ResponseWriter, r *http.Request) {
	writeHealthJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

// healthCheckHandler reports readiness of the backing stores
func (h *HealthHandler) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := map[string]CheckEntry{
		"postgres": check(ctx, h.db.PingContext, HealthUnhealthy),
	}
	if h.cache != nil {
		components["redis"] = check(ctx, h.cache.Ping, HealthDegraded)
	}

	overall := HealthHealthy
	for _, entry := range components {
		switch entry.Status {
		case HealthUnhealthy:
			overall = HealthUnhealthy
		case HealthDegraded:
			if overall == HealthHealthy {
				overall = HealthDegraded
			}
		}
	}

	statusCode := http.StatusOK
	if overall == HealthUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	writeHealthJSON(w, statusCode, HealthResponse{
		Status:     overall,
		CheckedAt:  time.Now(),
		Components: components,
	})
}

func check(ctx context.Context, ping func(context.Context) error, failure HealthStatus) CheckEntry {
	start := time.Now()
	err := ping(ctx)

	entry := CheckEntry{
		Status:     HealthHealthy,
		CheckedAt:  time.Now(),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry.Status = failure
		entry.Message = err.Error()
	}
	return entry
}

func writeHealthJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
