package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"terminal-core/internal/automation"
	"terminal-core/internal/capability"
	"terminal-core/internal/detector"
	"terminal-core/internal/order"
	"terminal-core/pkg/backend"
	"terminal-core/pkg/db"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getSystemStatus(c *gin.Context) {
	sessions, err := s.DB.ListSessions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	active := 0
	for _, sess := range sessions {
		if s.Automation.IsRunning(sess.ID) {
			active++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"terminal_id":     s.Meta.TerminalID,
		"version":         s.Meta.Version,
		"symbols":         s.Meta.Symbols,
		"currency":        s.Currency,
		"sessions":        len(sessions),
		"active_sessions": active,
	})
}

type createSessionRequest struct {
	Symbol          string       `json:"symbol" binding:"required"`
	Engine          string       `json:"engine" binding:"required"`
	Period          int          `json:"period"`
	CooldownSeconds float64      `json:"cooldown_seconds"`
	Params          order.Params `json:"params"`
}

func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	params, err := encodeParams(req.Params)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := s.Automation.Create(c.Request.Context(), db.Session{
		Symbol:          req.Symbol,
		Engine:          req.Engine,
		Period:          req.Period,
		CooldownSeconds: req.CooldownSeconds,
		Params:          params,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (s *Server) listSessions(c *gin.Context) {
	sessions, err := s.DB.ListSessions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, gin.H{
			"session": sess,
			"running": s.Automation.IsRunning(sess.ID),
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (s *Server) getSession(c *gin.Context) {
	sess, err := s.DB.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess, "running": s.Automation.IsRunning(sess.ID)})
}

func (s *Server) startSession(c *gin.Context) {
	id := c.Param("id")
	if err := s.Automation.Start(c.Request.Context(), id); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, automation.ErrSessionRunning):
			status = http.StatusConflict
		case errors.Is(err, db.ErrNotFound):
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": automation.StatusActive})
}

func (s *Server) stopSession(c *gin.Context) {
	id := c.Param("id")
	if err := s.Automation.Stop(c.Request.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, automation.ErrSessionNotRunning) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": automation.StatusStopped})
}

type switchSymbolRequest struct {
	Symbol string `json:"symbol" binding:"required"`
}

func (s *Server) switchSymbol(c *gin.Context) {
	var req switchSymbolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	if err := s.Automation.SwitchSymbol(c.Request.Context(), id, req.Symbol); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, automation.ErrSessionNotRunning) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "symbol": req.Symbol})
}

func (s *Server) listSignals(c *gin.Context) {
	signals, err := s.DB.ListSignals(c.Request.Context(), c.Param("id"), 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals})
}

func (s *Server) getCapabilities(c *gin.Context) {
	snap := s.Resolver.Refresh(c.Request.Context(), c.Param("symbol"))
	supported := make(map[string]bool, len(order.Engines))
	for _, eng := range order.Engines {
		supported[string(eng)] = capability.IsSupported(eng, snap)
	}
	c.JSON(http.StatusOK, gin.H{"capabilities": snap, "supported": supported})
}

type manualOrderRequest struct {
	Engine string       `json:"engine" binding:"required"`
	Side   string       `json:"side" binding:"required"`
	Symbol string       `json:"symbol" binding:"required"`
	Params order.Params `json:"params"`
}

// submitManualOrder builds and submits one order outside any automation
// session; the resulting contract replaces the tracked one.
func (s *Server) submitManualOrder(c *gin.Context) {
	var req manualOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payload, err := order.Build(order.Engine(req.Engine), detector.Side(req.Side), req.Symbol, req.Params, s.Currency)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ack, err := s.Submitter.Submit(c.Request.Context(), payload)
	if err != nil {
		status := http.StatusBadGateway
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	if s.Tracker != nil {
		if err := s.Tracker.Track(c.Request.Context(), ack.ContractID); err != nil {
			// Tracking is best-effort; the order is already placed.
			c.JSON(http.StatusOK, gin.H{"contract_id": ack.ContractID, "tracking_error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"contract_id": ack.ContractID})
}

func (s *Server) getTrackedContract(c *gin.Context) {
	current := s.Tracker.Current()
	if current == nil {
		c.JSON(http.StatusOK, gin.H{"contract": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"contract": current})
}

func encodeParams(p order.Params) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
