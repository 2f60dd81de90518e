// Package admin exposes a small HTTP surface for a running simulation:
// JSON status, mid-run strategy switching, and Prometheus metrics.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"twinsim/internal/sim"
)

type Server struct {
	Pipeline *sim.Pipeline
	reg      *prometheus.Registry
}

func NewServer(p *sim.Pipeline) *Server {
	s := &Server{Pipeline: p, reg: prometheus.NewRegistry()}
	s.registerMetrics()
	return s
}

// registerMetrics publishes the pipeline's live aggregates as gauges. Values
// are pulled at scrape time so no per-tick instrumentation is needed.
func (s *Server) registerMetrics() {
	gauge := func(name, help string, fn func(sim.Metrics) float64) {
		s.reg.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Namespace: "twinsim", Name: name, Help: help},
			func() float64 { return fn(s.Pipeline.Metrics()) },
		))
	}
	gauge("ticks_total", "Ticks simulated so far",
		func(m sim.Metrics) float64 { return float64(m.Ticks) })
	gauge("syncs_total", "Successful twin syncs",
		func(m sim.Metrics) float64 { return float64(m.Sync.SyncCount) })
	gauge("syncs_failed_total", "Sync attempts lost in transit",
		func(m sim.Metrics) float64 { return float64(m.Sync.FailedCount) })
	gauge("alerts_total", "Alerts emitted",
		func(m sim.Metrics) float64 { return float64(m.Fault.Total) })
	gauge("twin_drift", "Current twin drift",
		func(m sim.Metrics) float64 { return m.Twin.Drift })
	gauge("twin_accuracy", "Current twin accuracy",
		func(m sim.Metrics) float64 { return m.Twin.Accuracy })
	gauge("battery_remaining_pct", "Battery remaining percent",
		func(m sim.Metrics) float64 { return m.BatteryRemainingPct })
	gauge("bytes_sent_total", "Total bytes transmitted",
		func(m sim.Metrics) float64 { return float64(m.TotalBytesSent) })
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/strategy", s.handleStrategy)
	mux.HandleFunc("/forecasts", s.handleForecasts)
	mux.HandleFunc("/alerts", s.handleAlerts)
	mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	return mux
}

func (s *Server) Start(addr string) error {
	return http.ListenAndServe(addr, s.routes())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Pipeline.Metrics())
}

// handleStrategy switches the sync strategy mid-run via ?name=. Twin
// history is preserved across the switch.
func (s *Server) handleStrategy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	name := r.URL.Query().Get("name")
	if err := s.Pipeline.SetStrategy(name); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"strategy": name})
}

func (s *Server) handleForecasts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Pipeline.Forecasts())
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Pipeline.Alerts())
}
