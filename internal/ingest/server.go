// Package ingest serves the HTTP side of the bridge: event intake on the
// firmware wire format, device registry administration, and metrics.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"switch-relay/internal/metrics"
	"switch-relay/internal/mqtt"
	"switch-relay/internal/registry"
	"switch-relay/internal/relay"
)

// Server is the HTTP ingest and admin server.
type Server struct {
	httpServer      *http.Server
	relay           *relay.Relay
	registry        *registry.Registry
	defaultDeviceID string
}

// New creates a Server on the given address.
func New(addr string, rly *relay.Relay, reg *registry.Registry, defaultDeviceID string) *Server {
	s := &Server{
		relay:           rly,
		registry:        reg,
		defaultDeviceID: defaultDeviceID,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /event", s.handleEvent)
	mux.HandleFunc("GET /devices", s.handleListDevices)
	mux.HandleFunc("GET /devices/{id}", s.handleGetDevice)
	mux.HandleFunc("PUT /devices/{id}", s.handlePutDevice)
	mux.HandleFunc("DELETE /devices/{id}", s.handleDeleteDevice)
	mux.HandleFunc("POST /devices/{id}/reset", s.handleReset)
	mux.HandleFunc("GET /devices/{id}/state", s.handleDeviceState)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Run starts listening and blocks until ctx is cancelled or the server
// fails. A server error is logged, never fatal to the process.
func (s *Server) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		log.Println("[INFO] Shutting down ingest server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	log.Printf("[INFO] Ingest server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("[ERR] Ingest server exited: %v", err)
	}
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the mux. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

type outcomeJSON struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id,omitempty"`
	Outcome   string `json:"outcome"`
	Reason    string `json:"reason,omitempty"`
	Status    int    `json:"status,omitempty"`
}

type resultJSON struct {
	AllPressed bool          `json:"all_pressed"`
	Action     string        `json:"action,omitempty"`
	Outcomes   []outcomeJSON `json:"outcomes,omitempty"`
}

type switchStateJSON struct {
	Pressed       bool      `json:"pressed"`
	LastChangedAt time.Time `json:"last_changed_at"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 4096))
	if err != nil {
		http.Error(w, "unable to read body", http.StatusBadRequest)
		return
	}

	ev, err := mqtt.DecodeEvent(body, s.defaultDeviceID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	metrics.EventReceived("http")
	res, err := s.relay.RecordEvent(ev)
	if err != nil {
		if errors.Is(err, relay.ErrInvalidEvent) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	log.Printf("[INFO] Event device=%s switch=%d pressed=%v allPressed=%v action=%q",
		ev.DeviceID, ev.SwitchID, ev.Pressed, res.AllPressed, res.Action)
	writeJSON(w, http.StatusOK, toResultJSON(res))
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.registry.Devices()
	if devices == nil {
		devices = []registry.Device{}
	}
	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.registry.Device(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handlePutDevice(w http.ResponseWriter, r *http.Request) {
	var d registry.Device
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		http.Error(w, "invalid device JSON", http.StatusBadRequest)
		return
	}
	d.ID = r.PathValue("id")

	if err := s.registry.PutDevice(d); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.registry.Save(); err != nil {
		log.Printf("[WARN] Failed to flush registry: %v", err)
	}

	log.Printf("[INFO] Device %s stored (%d switches)", d.ID, len(d.Switches))
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.registry.DeleteDevice(id)
	s.relay.RemoveDevice(id)
	if err := s.registry.Save(); err != nil {
		log.Printf("[WARN] Failed to flush registry: %v", err)
	}

	log.Printf("[INFO] Device %s removed", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res := s.relay.ResetDevice(id)
	log.Printf("[INFO] Administrative reset of device %s", id)
	writeJSON(w, http.StatusOK, toResultJSON(res))
}

func (s *Server) handleDeviceState(w http.ResponseWriter, r *http.Request) {
	states := s.relay.SwitchStates(r.PathValue("id"))
	out := make(map[int]switchStateJSON, len(states))
	for id, st := range states {
		out[id] = switchStateJSON{Pressed: st.Pressed, LastChangedAt: st.LastChangedAt}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

func toResultJSON(res relay.Result) resultJSON {
	out := resultJSON{
		AllPressed: res.AllPressed,
		Action:     string(res.Action),
	}
	for _, o := range res.Outcomes {
		out.Outcomes = append(out.Outcomes, outcomeJSON{
			UserID:    o.UserID,
			ChannelID: o.ChannelID,
			Outcome:   o.Kind.String(),
			Reason:    o.Reason,
			Status:    o.Status,
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[WARN] Failed to encode response: %v", err)
	}
}
