package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/p2poolv2/p2pool/src/node"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// requestTimeout bounds the round trip to the node actor for one request.
const requestTimeout = 5 * time.Second

// Service exposes the state of a node over HTTP.
type Service struct {
	sync.Mutex

	bindAddress string
	handle      *node.Handle
	registry    *prometheus.Registry
	mux         *http.ServeMux
	server      *http.Server
	logger      *logrus.Entry
}

// NewService creates a service answering on bindAddress. The handle is used to
// query the node and registry backs the /metrics endpoint.
func NewService(bindAddress string, handle *node.Handle, registry *prometheus.Registry, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		handle:      handle,
		registry:    registry,
		mux:         http.NewServeMux(),
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

// registerHandlers registers the API handlers on the service's own ServeMux,
// so that several services can coexist in one process.
func (s *Service) registerHandlers() {
	s.logger.Debug("Registering p2pool API handlers")
	s.mux.HandleFunc("/peers", s.makeHandler(s.GetPeers))
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the http.Handler serving the API.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve calls ListenAndServe. This is a blocking call; it returns after Close.
func (s *Service) Serve() {
	s.Lock()
	s.server = &http.Server{
		Addr:    s.bindAddress,
		Handler: s.mux,
	}
	server := s.server
	s.Unlock()

	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving p2pool API")

	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		s.logger.Error(err)
	}
}

// Close stops a running server.
func (s *Service) Close() error {
	s.Lock()
	defer s.Unlock()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// GetPeers returns the IDs of the connected peers.
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	peers, err := s.handle.GetPeers(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Retrieving peers")

		http.Error(w, err.Error(), http.StatusServiceUnavailable)

		return
	}

	ids := make([]string, 0, len(peers))
	for _, p := range peers {
		ids = append(ids, p.String())
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(ids)
}
