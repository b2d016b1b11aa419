package rest

import (
	"net/http"

	"github.com/KevinKickass/StationCore/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GET /api/v1/station/status
func (s *Server) getStationStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.station.StationStatus())
}

// POST /api/v1/station/command
func (s *Server) executeStationCommand(c *gin.Context) {
	var req struct {
		Command string `json:"command" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("STATION_400", "Invalid request body", err.Error()))
		return
	}

	if err := s.station.ExecuteCommand(req.Command, "api"); err != nil {
		s.logger.Error("Station command rejected",
			zap.String("command", req.Command),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("STATION_400", "Command rejected", err.Error()))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Command accepted",
		"command": req.Command,
	})
}
