package server

import (
	"errors"
	"net/http"

	"gridcast/internal/console"
	"gridcast/internal/models"
	"gridcast/internal/policy"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type rangeRequest struct {
	Range  string `json:"range" binding:"required"`
	Offset int    `json:"offset"`
}

type activeCityRequest struct {
	City string `json:"city" binding:"required"`
}

// handleForecastState returns the console view
func (s *Server) handleForecastState(c *gin.Context) {
	c.JSON(http.StatusOK, s.console.State())
}

// handleSelectRange switches the horizon and fetches its forecast
func (s *Server) handleSelectRange(c *gin.Context) {
	var req rangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	r, err := models.ParseTimeRange(req.Range)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_RANGE", err.Error())
		return
	}

	if _, err := s.console.SelectRange(detach(c), r, req.Offset); err != nil {
		s.consoleError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.console.State())
}

// handleRefresh re-fetches the current selection
func (s *Server) handleRefresh(c *gin.Context) {
	if _, err := s.console.Refresh(detach(c)); err != nil {
		s.consoleError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.console.State())
}

// handleSetWeather stores the operator weather. Omitted fields keep their current value.
func (s *Server) handleSetWeather(c *gin.Context) {
	w := s.console.State().Current
	if err := c.ShouldBindJSON(&w); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	s.console.SetWeather(w)
	c.JSON(http.StatusOK, s.console.State())
}

// handleSimulate recomputes the series under the operator weather
func (s *Server) handleSimulate(c *gin.Context) {
	if _, err := s.console.Simulate(detach(c)); err != nil {
		s.consoleError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.console.State())
}

func (s *Server) consoleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, console.ErrModelLocked):
		writeError(c, http.StatusConflict, "MODEL_LOCKED", err.Error())
	case errors.Is(err, console.ErrSuperseded):
		writeError(c, http.StatusConflict, "SUPERSEDED", err.Error())
	default:
		s.logger.Error("Console request failed", zap.Error(err))
		writeError(c, http.StatusBadGateway, "PREDICTOR_ERROR", err.Error())
	}
}

// handlePolicyState returns the aggregator view
func (s *Server) handlePolicyState(c *gin.Context) {
	c.JSON(http.StatusOK, s.aggregator.State())
}

// handleSetPolicy edits the macro parameters. Omitted fields keep their current value.
func (s *Server) handleSetPolicy(c *gin.Context) {
	p := s.aggregator.State().Policy
	if err := c.ShouldBindJSON(&p); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	s.aggregator.SetPolicy(p)
	c.JSON(http.StatusAccepted, s.aggregator.State())
}

// handleSelectCity chooses the city whose weather the controls edit
func (s *Server) handleSelectCity(c *gin.Context) {
	var req activeCityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	if err := s.aggregator.SelectCity(models.City(req.City)); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_CITY", err.Error())
		return
	}
	c.JSON(http.StatusOK, s.aggregator.State())
}

// handleSetCityWeather edits one city's weather. Omitted fields keep their current value.
func (s *Server) handleSetCityWeather(c *gin.Context) {
	city, err := models.ParseCity(c.Param("city"))
	if err != nil {
		writeError(c, http.StatusNotFound, "INVALID_CITY", err.Error())
		return
	}

	w := s.aggregator.State().Cities[city]
	if err := c.ShouldBindJSON(&w); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	if _, err := s.aggregator.SetCityWeather(city, w); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_CITY", err.Error())
		return
	}
	c.JSON(http.StatusAccepted, s.aggregator.State())
}

// handleRecompute aggregates immediately, skipping the debounce
func (s *Server) handleRecompute(c *gin.Context) {
	if _, err := s.aggregator.Recompute(detach(c)); err != nil {
		switch {
		case errors.Is(err, policy.ErrSuperseded):
			writeError(c, http.StatusConflict, "SUPERSEDED", err.Error())
		case errors.Is(err, policy.ErrClosed):
			writeError(c, http.StatusServiceUnavailable, "SHUTTING_DOWN", err.Error())
		default:
			s.logger.Error("Recompute failed", zap.Error(err))
			writeError(c, http.StatusBadGateway, "PREDICTOR_ERROR", err.Error())
		}
		return
	}
	c.JSON(http.StatusOK, s.aggregator.State())
}

// handleTakeSnapshot freezes the current aggregate
func (s *Server) handleTakeSnapshot(c *gin.Context) {
	snap, err := s.aggregator.Snapshot()
	if err != nil {
		if errors.Is(err, policy.ErrNoResult) {
			writeError(c, http.StatusConflict, "NO_RESULT", err.Error())
			return
		}
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusCreated, snap)
}

// handleClearSnapshot discards the frozen aggregate
func (s *Server) handleClearSnapshot(c *gin.Context) {
	s.aggregator.ClearSnapshot()
	c.Status(http.StatusNoContent)
}

// handlePublicStatus relays the citizen-facing grid status. A failed upstream
// call yields a zero status rather than an error.
func (s *Server) handlePublicStatus(c *gin.Context) {
	status, err := s.predictor.GetPublicStatus(c.Request.Context())
	if err != nil {
		s.logger.Warn("Public status unavailable", zap.Error(err))
		c.JSON(http.StatusOK, models.PublicStatus{})
		return
	}
	c.JSON(http.StatusOK, status)
}
