package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"sports-prediction/internal/models"
	"sports-prediction/internal/services"
)

// SettlementHandler serves operator moderation, scoring and settlement
type SettlementHandler struct {
	lifecycle  *services.LifecycleService
	scoring    *services.ScoringService
	settlement *services.SettlementService
}

// NewSettlementHandler creates a new SettlementHandler
func NewSettlementHandler(
	lifecycle *services.LifecycleService,
	scoring *services.ScoringService,
	settlement *services.SettlementService,
) *SettlementHandler {
	return &SettlementHandler{
		lifecycle:  lifecycle,
		scoring:    scoring,
		settlement: settlement,
	}
}

// GetPending lists the moderation queue in submission order
// GET /api/admin/predictions/pending
func (h *SettlementHandler) GetPending(c *gin.Context) {
	events, err := h.lifecycle.ListPending(c.Request.Context(), queryInt(c, "limit", 100, 500))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get predictions"})
		return
	}
	respondOK(c, http.StatusOK, events)
}

// ScorePrediction (re)computes the score of one prediction
// POST /api/admin/predictions/:id/score
func (h *SettlementHandler) ScorePrediction(c *gin.Context) {
	id, ok := predictionID(c)
	if !ok {
		return
	}

	event, err := h.lifecycle.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	score, err := h.scoring.Score(c.Request.Context(), event)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, score)
}

// RankPending scores the pending queue. With promote=true the best eligible
// prediction is promoted as well.
// POST /api/admin/scoring/rank
func (h *SettlementHandler) RankPending(c *gin.Context) {
	ctx := c.Request.Context()
	limit := queryInt(c, "limit", 100, 500)

	var (
		winner *models.ScoredEvent
		scored []*models.ScoredEvent
		err    error
	)
	if c.Query("promote") == "true" {
		winner, scored, err = h.settlement.PromoteTopRanked(ctx, limit)
	} else {
		var pending []*models.PredictionEvent
		pending, err = h.lifecycle.ListPending(ctx, limit)
		if err == nil {
			winner, scored, err = h.scoring.RankAndSelect(ctx, pending)
		}
	}
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, gin.H{
		"selected": winner,
		"ranked":   scored,
	})
}

// GetScores lists current scores, best first
// GET /api/admin/scores
func (h *SettlementHandler) GetScores(c *gin.Context) {
	scores, err := h.scoring.ListScores(c.Request.Context(), queryInt(c, "limit", 100, 500))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get scores"})
		return
	}
	respondOK(c, http.StatusOK, scores)
}

// Promote creates the ledger pool of a pending prediction and approves it
// POST /api/admin/predictions/:id/promote
func (h *SettlementHandler) Promote(c *gin.Context) {
	id, ok := predictionID(c)
	if !ok {
		return
	}

	event, err := h.settlement.Promote(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	log.Printf("[Admin] Prediction %s promoted by admin %d", id, c.GetUint("admin_id"))
	respondOK(c, http.StatusOK, event)
}

// Reject rejects a pending prediction
// POST /api/admin/predictions/:id/reject
func (h *SettlementHandler) Reject(c *gin.Context) {
	id, ok := predictionID(c)
	if !ok {
		return
	}

	if err := h.lifecycle.Reject(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	event, err := h.lifecycle.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	log.Printf("[Admin] Prediction %s rejected by admin %d", id, c.GetUint("admin_id"))
	respondOK(c, http.StatusOK, event)
}

// Close stops staking on a prediction
// POST /api/admin/predictions/:id/close
func (h *SettlementHandler) Close(c *gin.Context) {
	id, ok := predictionID(c)
	if !ok {
		return
	}

	event, err := h.settlement.Close(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, event)
}

// Resolve posts the winning option of a prediction
// POST /api/admin/predictions/:id/resolve
func (h *SettlementHandler) Resolve(c *gin.Context) {
	id, ok := predictionID(c)
	if !ok {
		return
	}

	var req models.ResolvePredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := h.settlement.Resolve(c.Request.Context(), id, req.WinningOption)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, event)
}
