// Package web serves the scanner dashboard API and live websocket feed.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dbehnke/pwn-beacon/pkg/config"
	"github.com/dbehnke/pwn-beacon/pkg/logger"
	"github.com/dbehnke/pwn-beacon/pkg/metrics"
	"github.com/gin-gonic/gin"
)

// Dependencies are the data sources behind the API
type Dependencies struct {
	Devices DeviceSource
	Store   SightingStore // nil when history is disabled
	Metrics *metrics.Collector
}

// Server represents the web dashboard HTTP server
type Server struct {
	config config.WebConfig
	logger *logger.Logger
	server *http.Server
	hub    *WebSocketHub
	api    *API
	auth   *Authenticator
	addr   string
	mu     sync.RWMutex
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// NewServer creates a new web server instance
func NewServer(cfg config.WebConfig, deps Dependencies, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithComponent("web")
	hub := NewWebSocketHub(log)
	return &Server{
		config: cfg,
		logger: log,
		hub:    hub,
		api:    NewAPI(deps.Devices, deps.Store, deps.Metrics, hub, log),
		auth:   NewAuthenticator(cfg),
	}
}

// Router builds the gin engine with every route registered
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.logger))

	router.GET("/health", s.handleHealth)
	router.POST("/api/login", s.handleLogin)

	protected := []gin.HandlerFunc{}
	if s.config.AuthRequired {
		protected = append(protected, s.auth.Middleware())
	}

	api := router.Group("/api", protected...)
	{
		api.GET("/status", s.api.HandleStatus)
		api.GET("/devices", s.api.HandleDevices)
		api.GET("/devices/:address", s.api.HandleDevice)
		api.GET("/sightings", s.api.HandleSightings)
	}

	router.GET("/ws", append(protected, gin.WrapH(s.hub.Handler()))...)

	return router
}

// Start binds the listener, runs the hub and serves until ctx is
// cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Web server is disabled")
		return nil
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port)))
	if err != nil {
		return fmt.Errorf("web listen: %w", err)
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.server = &http.Server{
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	go s.hub.Run(ctx)

	s.logger.Info("Dashboard listening",
		logger.String("address", ln.Addr().String()),
		logger.Bool("auth_required", s.config.AuthRequired))

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web shutdown: %w", err)
	}
	return ctx.Err()
}

// GetAddr returns the address the server is listening on
func (s *Server) GetAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// GetHub returns the WebSocket hub
func (s *Server) GetHub() *WebSocketHub {
	return s.hub
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "pwn-scanner",
		"time":    time.Now().Unix(),
	})
}

func (s *Server) handleLogin(c *gin.Context) {
	if !s.config.AuthRequired {
		c.JSON(http.StatusNotFound, gin.H{"error": "authentication is disabled"})
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	token, expires, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.logger.Warn("Rejected dashboard login",
				logger.String("username", req.Username),
				logger.String("client_ip", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		s.logger.Error("Failed to issue token", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"token_type": "Bearer",
		"expires_at": expires.UTC().Format(time.RFC3339),
	})
}

// requestLogger logs one line per request, raising the level for errors
func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", path),
			logger.Int("status", status),
			logger.Duration("duration", time.Since(start)),
			logger.String("client_ip", c.ClientIP()),
		}
		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		default:
			log.Debug("HTTP request", fields...)
		}
	}
}
