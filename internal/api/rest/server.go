package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/KevinKickass/StationCore/internal/api/websocket"
	"github.com/KevinKickass/StationCore/internal/config"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
)

// Server is the station's HTTP surface: status for the monitoring page and
// a command endpoint feeding the same orchestrator handlers as every other
// control source. No auth; the station sits on a closed stage network.
type Server struct {
	router  *gin.Engine
	station StationProvider
	logger  *zap.Logger
	server  *http.Server
	wsHub   *websocket.Hub
}

// StationProvider is the lifecycle-manager view the API needs.
type StationProvider interface {
	StationStatus() StationStatusResponse
	ExecuteCommand(name, source string) error
}

// StationStatusResponse aggregates orchestrator and actuator state.
type StationStatusResponse struct {
	StationID     string      `json:"station_id"`
	StationName   string      `json:"station_name,omitempty"`
	State         string      `json:"state"`
	ActuatorState string      `json:"actuator_state"`
	Looping       bool        `json:"looping"`
	Cycle         int         `json:"cycle"`
	LastError     string      `json:"last_error,omitempty"`
	Units         interface{} `json:"units"`
	Timestamp     int64       `json:"timestamp"`
}

func NewServer(cfg *config.Config, station StationProvider, logger *zap.Logger, wsHub *websocket.Hub) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:  gin.New(),
		station: station,
		logger:  logger,
		wsHub:   wsHub,
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

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	{
		station := v1.Group("/station")
		{
			station.GET("/status", s.getStationStatus)
			station.POST("/command", s.executeStationCommand)
		}

		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
			ws.GET("/status", s.wsStatus)
		}
	}
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
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
