// Package api exposes the relay's observability surface over HTTP: health,
// status, registered nodes and Prometheus metrics. The relay data path
// stays on raw TCP; this server is read-only.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relaymesh/backend/internal/events"
	"github.com/relaymesh/backend/internal/machine"
	"github.com/relaymesh/backend/internal/relayer"
)

// Server is the admin HTTP server.
type Server struct {
	machine  *machine.Machine
	relayer  *relayer.Relayer
	bus      *events.Bus
	registry *prometheus.Registry
	logger   *log.Logger
}

// NewServer builds the admin server around the live machine and relayer.
func NewServer(m *machine.Machine, r *relayer.Relayer, bus *events.Bus, reg *prometheus.Registry) *Server {
	return &Server{
		machine:  m,
		relayer:  r,
		bus:      bus,
		registry: reg,
		logger:   log.New(log.Writer(), "[ADMIN] ", log.LstdFlags),
	}
}

// Handler builds the admin router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.HandleFunc("/api/status", s.handleStatus).Methods("GET")
	r.HandleFunc("/api/nodes", s.handleNodes).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return r
}

// Start blocks serving the admin API on the given port.
func (s *Server) Start(port string) error {
	addr := fmt.Sprintf(":%s", port)
	s.logger.Printf("admin API listening on %s", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]interface{}{
		"relayer_ready":     s.relayer.IsReady(),
		"routes":            s.relayer.RouteCount(),
		"nodes":             len(s.machine.Nodes()),
		"pool_workers":      s.machine.Pool().Workers(),
		"pool_pending":      s.machine.Pool().Pending(),
		"event_subscribers": s.bus.SubscriberCount(),
	})
}

type nodeView struct {
	Name      string `json:"name"`
	Group     string `json:"group"`
	Addr      string `json:"addr"`
	SourceID  string `json:"source_id"`
	PublicKey string `json:"public_key_pem,omitempty"`
}

func (s *Server) handleNodes(w http.ResponseWriter, _ *http.Request) {
	nodes := s.machine.Nodes()
	views := make([]nodeView, 0, len(nodes))
	for _, n := range nodes {
		pem, err := n.PublicKeyPEM()
		if err != nil {
			s.logger.Printf("failed to encode public key for %s: %v", n.Name(), err)
		}
		views = append(views, nodeView{
			Name:      n.Name(),
			Group:     n.Group(),
			Addr:      n.Addr(),
			SourceID:  n.SourceID(),
			PublicKey: pem,
		})
	}
	writeJSON(w, views)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
