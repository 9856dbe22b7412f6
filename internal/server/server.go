package server

import (
	"context"
	"net/http"
	"time"

	"gridcast/internal/api"
	"gridcast/internal/console"
	"gridcast/internal/policy"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Server exposes the forecast console and the policy aggregator over HTTP
type Server struct {
	console    *console.Console
	aggregator *policy.Aggregator
	predictor  api.Predictor
	events     http.Handler
	logger     *zap.Logger
	router     *gin.Engine
}

// Options wires the server's collaborators. Events may be nil when no live feed is served.
type Options struct {
	Console    *console.Console
	Aggregator *policy.Aggregator
	Predictor  api.Predictor
	Events     http.Handler
	Logger     *zap.Logger
}

// NewServer creates a new HTTP server
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Server{
		console:    opts.Console,
		aggregator: opts.Aggregator,
		predictor:  opts.Predictor,
		events:     opts.Events,
		logger:     opts.Logger,
		router:     gin.New(),
	}

	s.router.Use(Logger(s.logger))
	s.router.Use(ErrorHandler(s.logger))

	// Register routes
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if s.events != nil {
		s.router.GET("/ws", gin.WrapH(s.events))
	}

	forecast := s.router.Group("/api/forecast")
	{
		forecast.GET("", s.handleForecastState)
		forecast.POST("/range", s.handleSelectRange)
		forecast.POST("/refresh", s.handleRefresh)
		forecast.PUT("/weather", s.handleSetWeather)
		forecast.POST("/simulate", s.handleSimulate)
	}

	pol := s.router.Group("/api/policy")
	{
		pol.GET("", s.handlePolicyState)
		pol.PUT("/params", s.handleSetPolicy)
		pol.PUT("/active-city", s.handleSelectCity)
		pol.PUT("/cities/:city/weather", s.handleSetCityWeather)
		pol.POST("/recompute", s.handleRecompute)
		pol.POST("/snapshot", s.handleTakeSnapshot)
		pol.DELETE("/snapshot", s.handleClearSnapshot)
	}

	s.router.GET("/api/public/status", s.handlePublicStatus)

	s.router.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "no route for "+c.Request.URL.Path)
	})

	return s
}

// Handler returns the router wrapped in CORS for the given browser origins.
// An empty list allows every origin.
func (s *Server) Handler(allowedOrigins []string) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	}).Handler(s.router)
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context, addr string, allowedOrigins []string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(allowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// handleHealth returns the server health status
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC().String(),
	})
}

// detach keeps orchestration requests alive when the HTTP client goes away;
// supersession is what cancels them
func detach(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}
