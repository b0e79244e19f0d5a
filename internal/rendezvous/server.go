package rendezvous

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sotto/internal/domain"
)

// Server is the rendezvous broker: the pub/sub hub plus the bundle
// registry behind one HTTP surface.
type Server struct {
	log *slog.Logger
	hub *Hub
	reg *Registry
}

// NewServer builds a broker with an empty hub and registry.
func NewServer(log *slog.Logger) *Server {
	return &Server{
		log: log,
		hub: NewHub(log),
		reg: NewRegistry(),
	}
}

// Router returns the broker's HTTP routes.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/v1/ws", s.hub.ServeWS)
	r.Post("/v1/bundles", s.handleRegisterBundle)
	r.Get("/v1/bundles/{peerKey}", s.handleFetchBundle)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleRegisterBundle(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = r.Body.Close() }()
	var b domain.PrekeyBundle
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&b); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.reg.Register(b); err != nil {
		if errors.Is(err, ErrBundleInvalid) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	bundlesRegistered.Inc()
	s.log.Info("bundle registered", "peer", b.PeerKey(), "one_time_prekeys", len(b.OneTimePrekeys))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFetchBundle(w http.ResponseWriter, r *http.Request) {
	peer, err := domain.ParsePeerKey(chi.URLParam(r, "peerKey"))
	if err != nil {
		http.Error(w, "bad peer key", http.StatusBadRequest)
		return
	}
	bundle, ok := s.reg.Fetch(peer)
	if !ok {
		http.Error(w, "no bundle for peer", http.StatusNotFound)
		return
	}
	bundlesFetched.Inc()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(bundle); err != nil {
		s.log.Warn("writing bundle failed", "peer", peer, "error", err)
	}
}
