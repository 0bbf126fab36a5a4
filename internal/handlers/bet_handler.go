package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sports-prediction/internal/auth"
	"sports-prediction/internal/models"
	"sports-prediction/internal/services"
)

// BetHandler serves staking and claims
type BetHandler struct {
	bets       *services.BetService
	settlement *services.SettlementService
}

// NewBetHandler creates a new BetHandler
func NewBetHandler(bets *services.BetService, settlement *services.SettlementService) *BetHandler {
	return &BetHandler{
		bets:       bets,
		settlement: settlement,
	}
}

// PlaceBet stakes on one option of a prediction
// POST /api/predictions/:id/bets
func (h *BetHandler) PlaceBet(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	wallet, _ := auth.GetWalletAddress(c)

	id, ok := predictionID(c)
	if !ok {
		return
	}

	var req models.PlaceBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bet, err := h.bets.PlaceBet(c.Request.Context(), userID, wallet, id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, bet)
}

// GetMyBets lists the caller's bets, newest first
// GET /api/bets/me
func (h *BetHandler) GetMyBets(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit := queryInt(c, "limit", 20, 100)
	offset := queryInt(c, "offset", 0, 0)

	bets, err := h.bets.ListByUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get bets"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    bets,
		"limit":   limit,
		"offset":  offset,
	})
}

// GetMySummary maps each prediction to the caller's position
// GET /api/bets/me/summary
func (h *BetHandler) GetMySummary(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	summary, err := h.bets.UserSummary(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get bets"})
		return
	}
	respondOK(c, http.StatusOK, summary)
}

// GetPredictionBets lists every bet on a prediction
// GET /api/predictions/:id/bets
func (h *BetHandler) GetPredictionBets(c *gin.Context) {
	id, ok := predictionID(c)
	if !ok {
		return
	}

	bets, err := h.bets.ListByPrediction(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get bets"})
		return
	}
	respondOK(c, http.StatusOK, bets)
}

// GetClaimStatus reports whether the caller can claim on a prediction
// GET /api/predictions/:id/claim
func (h *BetHandler) GetClaimStatus(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, ok := predictionID(c)
	if !ok {
		return
	}

	elig, err := h.settlement.ClaimEligibility(c.Request.Context(), id, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, elig)
}

// Claim pays out the caller's winning bet
// POST /api/predictions/:id/claim
func (h *BetHandler) Claim(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, ok := predictionID(c)
	if !ok {
		return
	}

	res, err := h.settlement.Claim(c.Request.Context(), id, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, res)
}
