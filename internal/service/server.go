package service

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crowdflash/crowdflash-server/pkg/config"
	"github.com/crowdflash/crowdflash-server/pkg/handlers"
	"github.com/crowdflash/crowdflash-server/pkg/hub"
	"github.com/crowdflash/crowdflash-server/pkg/metrics"
	"go.uber.org/zap"
)

type Server struct {
	server        *http.Server
	wsHandler     *handlers.WebSocketHandler
	loginHandler  *handlers.LoginHandler
	videoHandler  *handlers.VideoHandler
	healthHandler *handlers.HealthCheckHandler
	control       *ControlService
	hub           *hub.Hub
	metrics       *metrics.Metrics
	logger        *zap.Logger
	cfg           *config.ServerConfig
}

func NewServer(
	wsHandler *handlers.WebSocketHandler,
	loginHandler *handlers.LoginHandler,
	videoHandler *handlers.VideoHandler,
	healthHandler *handlers.HealthCheckHandler,
	control *ControlService,
	h *hub.Hub,
	m *metrics.Metrics,
	logger *zap.Logger,
	cfg *config.ServerConfig,
) *Server {
	return &Server{
		wsHandler:     wsHandler,
		loginHandler:  loginHandler,
		videoHandler:  videoHandler,
		healthHandler: healthHandler,
		control:       control,
		hub:           h,
		metrics:       m,
		logger:        logger,
		cfg:           cfg,
	}
}

func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.wsHandler.HandleConnection)
	mux.HandleFunc("/health", s.healthHandler.HandleHealthCheck)
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/api/login", s.loginHandler.HandleLogin)
	mux.HandleFunc("/api/upload", s.videoHandler.HandleUpload)
	mux.HandleFunc("/api/videos", s.videoHandler.HandleVideos)
	mux.HandleFunc("/api/videos/zip", s.videoHandler.HandleZip)
	mux.Handle("/", http.FileServer(http.Dir(s.cfg.PublicDir)))

	handler := s.withRequestMetrics(s.withCORS(mux))

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	if err := s.control.Start(); err != nil {
		return fmt.Errorf("failed to start control service: %w", err)
	}

	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.cfg.Port))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	return s.waitForShutdown()
}

// withCORS mirrors the allowed-origins policy of the admin and mobile
// front ends. Requests from other origins still pass through, they
// just get no CORS headers.
func (s *Server) withCORS(next http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(s.cfg.AllowedOrigins))
	for _, origin := range s.cfg.AllowedOrigins {
		allowed[origin] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Filename")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics != nil {
			s.metrics.Http.RequestsTotal.WithLabelValues(r.Method, r.URL.Path).Inc()
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	s.logger.Info("Received shutdown signal")

	shutdownTimeout := 30 * time.Second
	if s.cfg.ShutdownTimeout > 0 {
		shutdownTimeout = s.cfg.ShutdownTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return s.Shutdown(ctx)
}

// Shutdown stops the periodic pushes, tears down every socket and
// drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down services")

	s.control.Stop()
	s.hub.Close()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Server stopped gracefully")
	return nil
}
