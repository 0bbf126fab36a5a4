package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sports-prediction/internal/auth"
	"sports-prediction/internal/models"
	"sports-prediction/internal/services"
)

// PredictionHandler serves prediction submission and public reads
type PredictionHandler struct {
	lifecycle *services.LifecycleService
	scoring   *services.ScoringService
	mirror    *services.PoolMirrorService
}

// NewPredictionHandler creates a new PredictionHandler
func NewPredictionHandler(
	lifecycle *services.LifecycleService,
	scoring *services.ScoringService,
	mirror *services.PoolMirrorService,
) *PredictionHandler {
	return &PredictionHandler{
		lifecycle: lifecycle,
		scoring:   scoring,
		mirror:    mirror,
	}
}

// predictionResponse is an event with the cached view of its pool, if any
type predictionResponse struct {
	*models.PredictionEvent
	Pool *models.PoolView `json:"pool,omitempty"`
}

func (h *PredictionHandler) withPool(event *models.PredictionEvent, now time.Time) predictionResponse {
	resp := predictionResponse{PredictionEvent: event}
	if event.PoolID == nil {
		return resp
	}
	if pool, ok := h.mirror.Get(*event.PoolID); ok {
		view := h.mirror.View(pool, now)
		resp.Pool = &view
	}
	return resp
}

// Submit stores a new pending prediction
// POST /api/predictions
func (h *PredictionHandler) Submit(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req models.SubmitPredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The logged-in wallet creates the pool unless another address is given.
	if req.CreatorLedgerAddress == "" {
		if wallet, ok := auth.GetWalletAddress(c); ok {
			req.CreatorLedgerAddress = wallet
		}
	}

	event, err := h.lifecycle.Submit(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, event)
}

// GetApproved lists predictions open for betting with their odds
// GET /api/predictions/approved
func (h *PredictionHandler) GetApproved(c *gin.Context) {
	limit := queryInt(c, "limit", 50, 200)

	events, err := h.lifecycle.ListApproved(c.Request.Context(), limit)
	if err != nil {
		log.Printf("[API] Failed to list approved predictions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get predictions"})
		return
	}

	now := time.Now()
	out := make([]predictionResponse, 0, len(events))
	for _, e := range events {
		out = append(out, h.withPool(e, now))
	}
	respondOK(c, http.StatusOK, out)
}

// GetPrediction returns one prediction
// GET /api/predictions/:id
func (h *PredictionHandler) GetPrediction(c *gin.Context) {
	id, ok := predictionID(c)
	if !ok {
		return
	}

	event, err := h.lifecycle.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, h.withPool(event, time.Now()))
}

// GetMine lists the caller's submissions
// GET /api/predictions/mine
func (h *PredictionHandler) GetMine(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	events, err := h.lifecycle.ListByCreator(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get predictions"})
		return
	}
	respondOK(c, http.StatusOK, events)
}

// GetPool returns the odds view of a prediction's pool, loading it from the
// ledger on a cache miss
// GET /api/predictions/:id/pool
func (h *PredictionHandler) GetPool(c *gin.Context) {
	id, ok := predictionID(c)
	if !ok {
		return
	}

	event, err := h.lifecycle.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if event.PoolID == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "prediction has no pool yet"})
		return
	}

	pool, err := h.mirror.Load(c.Request.Context(), *event.PoolID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, h.mirror.View(pool, time.Now()))
}

// GetScore returns a prediction's current score
// GET /api/predictions/:id/score
func (h *PredictionHandler) GetScore(c *gin.Context) {
	id, ok := predictionID(c)
	if !ok {
		return
	}

	score, err := h.scoring.GetScore(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, score)
}
