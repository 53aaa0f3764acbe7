package rest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	providerdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/provider"
)

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

type HealthResponse struct {
	Status     HealthStatus          `json:"status"`
	CheckedAt  time.Time             `json:"checked_at"`
	Components map[string]CheckEntry `json:"components"`
}

type CheckEntry struct {
	Status     HealthStatus   `json:"status"`
	Message    string         `json:"message,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CheckedAt  time.Time      `json:"checked_at"`
	DurationMs int64          `json:"duration_ms"`
}

// ProviderHealthSource reports the last probed health of each registered FSP.
type ProviderHealthSource interface {
	HealthSnapshot() map[string]providerdm.HealthStatus
}

type HealthHandler struct {
	db        *sql.DB
	providers ProviderHealthSource
}

func NewHealthHandler(db *sql.DB, providers ProviderHealthSource) *HealthHandler {
	return &HealthHandler{db: db, providers: providers}
}

// HandleLiveness → just says service is up
func (h *HealthHandler) pingHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "OK"}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// HandleReadiness → checks DB connection and provider availability
func (h *HealthHandler) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := map[string]CheckEntry{
		"postgres":  h.checkPostgres(ctx),
		"providers": h.checkProviders(),
	}

	overall := HealthHealthy
	if components["postgres"].Status == HealthUnhealthy {
		overall = HealthUnhealthy
	}

	resp := HealthResponse{
		Status:     overall,
		CheckedAt:  time.Now(),
		Components: components,
	}

	statusCode := http.StatusOK
	if overall == HealthUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

func (h *HealthHandler) checkPostgres(ctx context.Context) CheckEntry {
	start := time.Now()
	err := h.db.PingContext(ctx)

	entry := CheckEntry{
		Status:     HealthHealthy,
		CheckedAt:  time.Now(),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry.Status = HealthUnhealthy
		entry.Message = err.Error()
	}
	return entry
}

// checkProviders is informational only: a window with every FSP down still
// leaves the service able to accept and queue payments.
func (h *HealthHandler) checkProviders() CheckEntry {
	start := time.Now()

	var snapshot map[string]providerdm.HealthStatus
	if h.providers != nil {
		snapshot = h.providers.HealthSnapshot()
	}

	healthy := 0
	details := make(map[string]any, len(snapshot))
	for fspCode, status := range snapshot {
		details[fspCode] = string(status)
		if status == providerdm.HealthHealthy {
			healthy++
		}
	}

	entry := CheckEntry{
		Status:     HealthHealthy,
		Details:    details,
		CheckedAt:  time.Now(),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if len(snapshot) > 0 && healthy == 0 {
		entry.Status = HealthUnhealthy
		entry.Message = fmt.Sprintf("0 of %d providers healthy", len(snapshot))
	}
	return entry
}
