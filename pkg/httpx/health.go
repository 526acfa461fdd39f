package httpx

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker is satisfied by any infrastructure dependency that exposes
// a Ping method (the database pool, RedisClient and EventBus all qualify).
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthChecks holds the dependencies the health endpoint probes: the
// Postgres pool backing the event store, the Redis claim ledger, and the
// event bus.
type HealthChecks struct {
	EventStore  HealthChecker
	ClaimLedger HealthChecker
	Bus         HealthChecker
}

type healthResponse struct {
	Status      string `json:"status"`
	EventStore  string `json:"eventStore"`
	ClaimLedger string `json:"claimLedger"`
	Bus         string `json:"bus"`
}

// HealthHandler returns an http.HandlerFunc that probes all registered
// HealthCheckers and reports degraded status if any of them fail.
func HealthHandler(checks HealthChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{
			Status:      "ok",
			EventStore:  "ok",
			ClaimLedger: "ok",
			Bus:         "ok",
		}

		if err := checks.EventStore.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.EventStore = "unreachable"
		}
		if err := checks.ClaimLedger.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.ClaimLedger = "unreachable"
		}
		if err := checks.Bus.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Bus = "unreachable"
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		JSON(w, status, resp)
	}
}
