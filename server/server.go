// Package server is the local bridge between the governing program and the
// sync controller: a websocket for saves and reload notifications plus a
// small HTTP API.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/savesync/errors"
	"github.com/teranos/savesync/events"
	"github.com/teranos/savesync/logger"
	"github.com/teranos/savesync/savestore"
)

// Config configures the bridge
type Config struct {
	Port              int
	Key               string // local slot the governing program saves under
	SaveRatePerSecond float64
	SaveBurst         int
	AllowedOrigins    []string
}

// Server serves /ws and /api for one local save slot
type Server struct {
	cfg     Config
	store   savestore.Store
	bus     *events.Bus
	status  StatusSource
	session SessionSource
	logger  *zap.SugaredLogger

	upgrader websocket.Upgrader
	reload   *events.Subscription

	// paces POST /api/save across all HTTP callers
	httpLimiter *rate.Limiter

	clients map[*Client]bool
	mu      sync.RWMutex

	httpServer *http.Server

	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	broadcastDrops atomic.Int64
	state          atomic.Int32
	stopOnce       sync.Once
}

// New creates a bridge and subscribes it to reload events.
// status and session may be nil when no controller is running.
func New(cfg Config, store savestore.Store, bus *events.Bus, status StatusSource, session SessionSource, log *zap.SugaredLogger) *Server {
	if cfg.SaveBurst < 1 {
		cfg.SaveBurst = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:         cfg,
		store:       store,
		bus:         bus,
		status:      status,
		session:     session,
		logger:      log,
		httpLimiter: rate.NewLimiter(rate.Limit(cfg.SaveRatePerSecond), cfg.SaveBurst),
		clients:     make(map[*Client]bool),
		ctx:         ctx,
		cancel:      cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  2048,
		WriteBufferSize: 2048,
		CheckOrigin:     s.checkOrigin,
	}
	s.reload = bus.Subscribe(events.TopicStateReloaded, func(e events.Event) {
		s.broadcast(Message{Type: MsgReload, Blob: e.Blob})
	})
	return s
}

// Handler returns the bridge's routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWebSocket)
	mux.HandleFunc("/api/state", s.corsMiddleware(s.HandleState))
	mux.HandleFunc("/api/save", s.corsMiddleware(s.HandleSave))
	mux.HandleFunc("/api/status", s.corsMiddleware(s.HandleStatus))
	mux.HandleFunc("/health", s.corsMiddleware(s.HandleHealth))
	return mux
}

// Start listens on the configured port and serves until Stop is called
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.cfg.Port))
	if err != nil {
		return errors.Wrapf(err, "failed to listen on port %d", s.cfg.Port)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Stop is called
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: writeWait,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Infow("Bridge listening",
		logger.FieldAddress, ln.Addr().String(),
		logger.FieldKey, s.cfg.Key,
	)

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "bridge server failed")
	}
	return nil
}

// Stop closes every client, shuts down the HTTP server and waits for pumps to exit
func (s *Server) Stop() error {
	var shutdownErr error
	s.stopOnce.Do(func() {
		s.logger.Infow("Initiating bridge shutdown")
		s.setState(ServerStateDraining)

		s.reload.Unsubscribe()

		s.mu.Lock()
		clientsToClose := make([]*Client, 0, len(s.clients))
		for client := range s.clients {
			clientsToClose = append(clientsToClose, client)
			delete(s.clients, client)
		}
		srv := s.httpServer
		s.mu.Unlock()

		for _, client := range clientsToClose {
			client.conn.Close() // unblocks readPump
		}

		s.cancel()

		if srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				shutdownErr = errors.Wrap(err, "failed to shut down bridge")
			}
		}

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(ShutdownTimeout):
			s.logger.Warnw("Client shutdown timed out", "timeout", ShutdownTimeout)
		}

		s.setState(ServerStateStopped)
		s.logger.Infow("Bridge shutdown complete", "broadcast_drops", s.broadcastDrops.Load())
	})
	return shutdownErr
}

// State returns the lifecycle state
func (s *Server) State() ServerState {
	return ServerState(s.state.Load())
}

func (s *Server) setState(st ServerState) {
	s.state.Store(int32(st))
	s.logger.Debugw("Bridge state changed", "new_state", st.String())
}

// save stores blob locally and then announces it to the controller
func (s *Server) save(ctx context.Context, blob string) error {
	if err := checkBlob(blob); err != nil {
		return err
	}
	if err := s.store.Set(ctx, s.cfg.Key, blob); err != nil {
		return errors.Wrap(err, "failed to store save locally")
	}
	n := s.bus.Publish(events.Event{Topic: events.TopicSaveRequested, Blob: blob})
	s.logger.Debugw("Save stored",
		logger.FieldKey, s.cfg.Key,
		logger.FieldSize, len(blob),
		"listeners", n,
	)
	return nil
}

// load returns the blob stored under the local key
func (s *Server) load(ctx context.Context) (string, bool, error) {
	blob, found, err := s.store.Get(ctx, s.cfg.Key)
	if err != nil {
		return "", false, errors.Wrap(err, "failed to read local save")
	}
	return blob, found, nil
}

// register adds a client, refusing it past MaxClients
func (s *Server) register(c *Client) bool {
	s.mu.Lock()
	if s.State() != ServerStateRunning || len(s.clients) >= MaxClients {
		s.mu.Unlock()
		s.logger.Warnw("Rejecting client connection",
			logger.FieldClientID, shortID(c.id),
			"max_clients", MaxClients,
		)
		return false
	}
	s.clients[c] = true
	total := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Client connected",
		logger.FieldClientID, shortID(c.id),
		"total_clients", total,
	)
	return true
}

func (s *Server) unregister(c *Client) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	total := len(s.clients)
	s.mu.Unlock()

	if ok {
		s.logger.Infow("Client disconnected",
			logger.FieldClientID, shortID(c.id),
			"total_clients", total,
		)
	}
}

// broadcast queues msg for every client without blocking the publisher.
// A client whose queue is full misses the message.
func (s *Server) broadcast(msg Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for c := range s.clients {
		if !c.enqueue(msg) {
			s.broadcastDrops.Add(1)
			s.logger.Warnw("Client send queue full, dropping message",
				logger.FieldClientID, shortID(c.id),
				"type", msg.Type,
			)
		}
	}
}

func (s *Server) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// checkOrigin accepts requests without an Origin header (native clients)
// and browser origins that start with one of the allowed prefixes
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	s.logger.Debugw("Rejected origin", "origin", origin)
	return false
}

// corsMiddleware adds CORS headers for allowed origins and answers preflight requests
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.checkOrigin(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}
