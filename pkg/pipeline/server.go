package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{}

// Server exposes /metrics and a /packets websocket that streams decoded
// packets as JSON.
type Server struct {
	hub              *Hub
	mux              *http.ServeMux
	websocketCounter atomic.Int64
}

func NewServer(hub *Hub, gatherer prometheus.Gatherer) *Server {
	s := &Server{hub: hub}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/packets", s.packets)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s.mux = mux

	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http server shutdown")
		}
	}()

	log.Info().Str("address", addr).Msg("Starting http server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "listen and serve")
	}
	return nil
}

func (s *Server) packets(w http.ResponseWriter, r *http.Request) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Err(err).Msg("upgrade")
		return
	}
	defer c.Close()

	packets, id := s.hub.Attach()
	defer s.hub.Detach(id)
	s.incrementWebsocketCounter()
	defer s.decrementWebsocketCounter()

	// The client never sends data; reading only notices when it goes away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case p := <-packets:
			message, err := json.Marshal(p)
			if err != nil {
				log.Err(err).Msg("json marshal")
				return
			}
			if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Info().Err(err).Msg("failed to write to websocket")
				return
			}
		}
	}
}

func (s *Server) incrementWebsocketCounter() {
	if s.websocketCounter.Add(1) == 1 {
		log.Info().Msg("First websocket connected")
	}
}

func (s *Server) decrementWebsocketCounter() {
	if s.websocketCounter.Add(-1) == 0 {
		log.Info().Msg("Last websocket disconnected")
	}
}
