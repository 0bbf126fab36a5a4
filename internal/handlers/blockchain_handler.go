package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sports-prediction/internal/blockchain"
	"sports-prediction/internal/services"
)

// Diagnoser reports ledger connectivity
type Diagnoser interface {
	RunDiagnostics(ctx context.Context) *blockchain.DiagnosticResult
}

// BlockchainHandler serves operator ledger tools
type BlockchainHandler struct {
	mirror    *services.PoolMirrorService
	diagnoser Diagnoser
}

func NewBlockchainHandler(mirror *services.PoolMirrorService, diagnoser Diagnoser) *BlockchainHandler {
	return &BlockchainHandler{
		mirror:    mirror,
		diagnoser: diagnoser,
	}
}

// RefreshPool re-reads a pool from the ledger into the mirror
// POST /api/admin/pools/:pool_id/refresh
func (h *BlockchainHandler) RefreshPool(c *gin.Context) {
	poolID := c.Param("pool_id")
	if !services.ValidLedgerAddress(poolID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pool id"})
		return
	}

	pool, err := h.mirror.Refresh(c.Request.Context(), poolID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, h.mirror.View(pool, time.Now()))
}

// Diagnostics checks RPC, authority key and program config
// GET /api/admin/ledger/diagnostics
func (h *BlockchainHandler) Diagnostics(c *gin.Context) {
	if h.diagnoser == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger client not configured"})
		return
	}
	respondOK(c, http.StatusOK, h.diagnoser.RunDiagnostics(c.Request.Context()))
}
