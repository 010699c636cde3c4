package http

import (
	"context"
	"net/http"
	"time"

	"github.com/Strob0t/tyresync/internal/resilience"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthDeps are the dependencies reported by /health. Nil fields are
// reported as "disabled".
type HealthDeps struct {
	Store     Pinger
	Queue     interface{ IsConnected() bool }
	Observers interface{ Len() int }
	Breaker   *resilience.Breaker
}

type healthStatus struct {
	Status    string `json:"status"`
	Postgres  string `json:"postgres"`
	NATS      string `json:"nats"`
	Relay     string `json:"relay,omitempty"`
	Observers int    `json:"observers"`
}

// HealthHandler reports service health. A failing database ping turns the
// response into 503; NATS is optional and only marks the service degraded.
func HealthHandler(deps HealthDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := healthStatus{Status: "ok", Postgres: "disabled", NATS: "disabled"}
		code := http.StatusOK

		if deps.Store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			err := deps.Store.Ping(ctx)
			cancel()
			if err != nil {
				st.Postgres = "unreachable"
				st.Status = "unavailable"
				code = http.StatusServiceUnavailable
			} else {
				st.Postgres = "ok"
			}
		}
		if deps.Queue != nil {
			if deps.Queue.IsConnected() {
				st.NATS = "ok"
			} else {
				st.NATS = "disconnected"
				if code == http.StatusOK {
					st.Status = "degraded"
				}
			}
		}
		if deps.Breaker != nil {
			st.Relay = string(deps.Breaker.State())
		}
		if deps.Observers != nil {
			st.Observers = deps.Observers.Len()
		}

		writeJSON(w, code, st)
	}
}
