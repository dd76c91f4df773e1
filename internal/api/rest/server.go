package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/KevinKickass/et7000d/internal/api/websocket"
	"github.com/KevinKickass/et7000d/internal/auth"
	"github.com/KevinKickass/et7000d/internal/config"
	"github.com/KevinKickass/et7000d/internal/interfaces"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router *gin.Engine
	lm     interfaces.LifecycleManager
	logger *zap.Logger
	server *http.Server
	wsHub  *websocket.Hub
	cfg    *config.Config
	auth   *auth.Service
}

// NewServer builds the API. A nil authService leaves the API open.
func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub, authService *auth.Service) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router: gin.New(),
		lm:     lm,
		logger: logger,
		wsHub:  wsHub,
		cfg:    cfg,
		auth:   authService,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware(s.cfg.Server.AllowedOrigins))

	s.router.GET("/health", s.healthCheck)

	// API v1
	v1 := s.router.Group("/api/v1")
	if s.auth != nil {
		v1.Use(s.auth.AuthMiddleware())
	}
	read := auth.RequirePermission(auth.PermRead)
	write := auth.RequirePermission(auth.PermWrite)
	{
		v1.GET("/system/status", read, s.getSystemStatus)

		devices := v1.Group("/devices")
		{
			devices.GET("", read, s.listDevices)
			devices.GET("/:id", read, s.getDevice)
			devices.GET("/:id/:group", read, s.readGroup)
			devices.PUT("/:id/:group", write, s.writeGroup)
			devices.GET("/:id/:group/:channel", read, s.readChannel)
			devices.PUT("/:id/:group/:channel", write, s.writeChannel)

			devices.POST("/:id/reconnect", write, s.reconnectDevice)
			devices.POST("/:id/modbus/read", read, s.readModbus)
			devices.POST("/:id/modbus/write", write, s.writeModbus)
		}

		ws := v1.Group("/ws")
		{
			ws.GET("/live", read, s.wsLiveConnection)
			ws.GET("/status", read, s.wsStatus)
		}
	}
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, s.cfg.Server.AllowedOrigins, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}
