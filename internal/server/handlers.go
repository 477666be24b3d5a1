package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "spread-trader/internal/errors"
	"spread-trader/internal/models"
	"spread-trader/internal/resilience"
	"spread-trader/internal/store"
)

type tripRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// BreakerView is the body of the breaker status endpoint.
type BreakerView struct {
	Trading models.CircuitBreakerStatus `json:"trading"`
	API     []resilience.BreakerStats   `json:"api"`
}

func (s *Server) health(c *gin.Context) {
	h := s.deps.Health.Check(c.Request.Context())
	status := http.StatusOK
	if h.Status == resilience.HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, h)
}

func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func (s *Server) listRecommendations(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	recs, err := s.deps.Ledger.ListRecommendations(c.Request.Context(), store.RecommendationFilter{
		Status: models.RecommendationStatus(c.Query("status")),
		Limit:  limit,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	success(c, http.StatusOK, recs)
}

func (s *Server) approve(c *gin.Context) {
	trade, err := s.deps.Approvals.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}

	if trade.Status == models.TradePendingFill {
		pending := *trade
		s.background("follow_fill", func(ctx context.Context) {
			result, outcome, err := s.deps.Approvals.FollowFill(ctx, pending)
			if err != nil {
				s.logger.Error().Err(err).Str("trade_id", pending.ID).Msg("Fill follow failed")
				return
			}
			s.logger.Info().
				Str("trade_id", pending.ID).
				Str("order_id", result.OrderID).
				Bool("filled", result.Filled).
				Int("adjustments", result.Adjustments).
				Str("outcome", string(outcome)).
				Msg("Fill follow finished")
		})
	}
	success(c, http.StatusCreated, trade)
}

func (s *Server) reject(c *gin.Context) {
	id := c.Param("id")
	if err := s.deps.Approvals.Reject(c.Request.Context(), id); err != nil {
		handleError(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"id": id, "status": models.RecommendationRejected})
}

func (s *Server) listTrades(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	trades, err := s.deps.Ledger.ListTrades(c.Request.Context(), store.TradeFilter{
		Status:     models.TradeStatus(c.Query("status")),
		Underlying: c.Query("underlying"),
		Limit:      limit,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	success(c, http.StatusOK, trades)
}

func (s *Server) getTrade(c *gin.Context) {
	trade, err := s.deps.Ledger.GetTrade(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	success(c, http.StatusOK, trade)
}

// closeTrade checks the trade synchronously and closes it in the background,
// since a close follows its order through the fill ladder.
func (s *Server) closeTrade(c *gin.Context) {
	id := c.Param("id")
	trade, err := s.deps.Ledger.GetTrade(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	if trade.Status != models.TradeOpen {
		handleError(c, apperrors.NewValidationError("status", trade.Status,
			fmt.Sprintf("trade %s is %s, not open", trade.ID, trade.Status)))
		return
	}
	if _, busy := s.closing.LoadOrStore(id, struct{}{}); busy {
		fail(c, http.StatusConflict, ErrCodeBadRequest, "close already in progress")
		return
	}

	s.background("close_trade", func(ctx context.Context) {
		defer s.closing.Delete(id)
		closed, err := s.deps.Approvals.Close(ctx, id)
		if err != nil {
			s.logger.Error().Err(err).Str("trade_id", id).Msg("Manual close failed")
			return
		}
		s.logger.Info().Str("trade_id", id).Str("status", string(closed.Status)).Msg("Manual close finished")
	})
	success(c, http.StatusAccepted, gin.H{"id": id, "status": "closing"})
}

func (s *Server) breakerStatus(c *gin.Context) {
	st, err := s.deps.Breaker.Status(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	view := BreakerView{Trading: st, API: []resilience.BreakerStats{}}
	if s.deps.APIBreakers != nil {
		view.API = s.deps.APIBreakers.AllStats()
	}
	success(c, http.StatusOK, view)
}

// FillsView is the fill quality summary and the most recent fills.
type FillsView struct {
	Stats  resilience.FillStats     `json:"stats"`
	Recent []resilience.FillQuality `json:"recent"`
}

func (s *Server) fillQuality(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	view := FillsView{Recent: []resilience.FillQuality{}}
	if s.deps.Fills != nil {
		view.Stats = s.deps.Fills.Stats()
		view.Recent = s.deps.Fills.Recent(limit)
	}
	success(c, http.StatusOK, view)
}

func (s *Server) tripBreaker(c *gin.Context) {
	var req tripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "reason is required")
		return
	}
	tripped, err := s.deps.Breaker.Trip(c.Request.Context(), req.Reason)
	if err != nil {
		handleError(c, err)
		return
	}
	st, err := s.deps.Breaker.Status(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"tripped": tripped, "status": st})
}

func (s *Server) resetBreaker(c *gin.Context) {
	if err := s.deps.Breaker.Reset(c.Request.Context()); err != nil {
		handleError(c, err)
		return
	}
	s.logger.Warn().Str("client_ip", c.ClientIP()).Msg("Circuit breaker reset over HTTP")
	success(c, http.StatusOK, gin.H{"halted": false})
}

func (s *Server) resetAPIBreakers(c *gin.Context) {
	if s.deps.APIBreakers != nil {
		s.deps.APIBreakers.ResetAll()
	}
	success(c, http.StatusOK, gin.H{"reset": true})
}
