package daemon

import (
	"encoding/json"
	"net/http"

	"github.com/harun/conclave/internal/observability"
	"github.com/harun/conclave/pkg/deliberation"
	"github.com/harun/conclave/pkg/workerpool"
)

type healthResponse struct {
	Status        string                `json:"status"`
	Version       string                `json:"version"`
	UptimeSeconds float64               `json:"uptime_seconds"`
	Session       deliberation.Snapshot `json:"session"`
	Pool          workerpool.Stats      `json:"pool"`
}

func (d *Daemon) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", observability.MetricsHandler())
	mux.HandleFunc("GET /healthz", d.handleHealth)
	return mux
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := d.Status()

	resp := healthResponse{
		Status:        "ok",
		Version:       Version,
		UptimeSeconds: status.Uptime.Seconds(),
		Session:       status.Snapshot,
		Pool:          status.Pool,
	}
	code := http.StatusOK
	if status.Snapshot.State.IsTerminal() {
		resp.Status = "stopped"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
