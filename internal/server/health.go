package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// HealthResponse represents the JSON response from the health check endpoint.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	Timestamp  string            `json:"timestamp"`
}

// HealthChecker is implemented by the vector store and the history store.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewHealthHandler creates an HTTP handler for the /health endpoint.
// It reports 503 when any named dependency is unreachable.
func NewHealthHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	names := make([]string, 0, len(checkers))
	for name := range checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		// Create context with 3-second timeout for health check
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		response := HealthResponse{
			Status:     "healthy",
			Components: make(map[string]string, len(names)),
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		}
		status := http.StatusOK

		for _, name := range names {
			if err := checkers[name].Health(ctx); err != nil {
				response.Components[name] = "disconnected"
				response.Status = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			response.Components[name] = "connected"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(response)
	}
}
