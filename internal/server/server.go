// Package server exposes the bridge's HTTP surface: liveness, metrics
// and a read-only device inventory.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mkurtov/haierbridge/internal/device"
)

// HTTPServer serves health, metrics and the device inventory.
type HTTPServer struct {
	Server *http.Server
}

// Appliances supplies the current engine set for the inventory endpoint.
type Appliances func() []device.Appliance

// New wires the handler mux and returns the server.
func New(addr string, registry *prometheus.Registry, appliances Appliances) *HTTPServer {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", HealthHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/devices", DevicesHandler(appliances))

	return &HTTPServer{Server: &http.Server{Addr: addr, Handler: mux}}
}

func (s *HTTPServer) ListenAndServe() error {
	return s.Server.ListenAndServe()
}

// HealthHandler returns a simple OK for liveness checks.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// DevicesHandler reports the discovered devices and their live state.
func DevicesHandler(appliances Appliances) http.Handler {
	type entry struct {
		ID    string       `json:"id"`
		Name  string       `json:"name"`
		Kind  device.Kind  `json:"kind"`
		Model string       `json:"model"`
		State device.State `json:"state"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var out []entry
		if appliances != nil {
			for _, a := range appliances() {
				out = append(out, entry{
					ID:    a.ID(),
					Name:  a.Name(),
					Kind:  a.Kind(),
					Model: a.Descriptor().Model,
					State: a.State(),
				})
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(out)
	})
}
