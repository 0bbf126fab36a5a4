package handlers

import (
	"github.com/gin-gonic/gin"

	"sports-prediction/internal/auth"
)

// Handlers groups every HTTP handler the API serves
type Handlers struct {
	Auth        *AuthHandler
	Admin       *AdminHandler
	Predictions *PredictionHandler
	Bets        *BetHandler
	Settlement  *SettlementHandler
	Blockchain  *BlockchainHandler
	Odds        *OddsHub
}

// RegisterRoutes mounts the public, authenticated and admin API on router
func RegisterRoutes(router *gin.Engine, h Handlers) {
	// Authentication routes (public)
	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/wallet", h.Auth.WalletLogin)
	}

	// Authenticated /auth/me route
	authProtected := router.Group("/auth")
	authProtected.Use(auth.AuthMiddleware())
	{
		authProtected.GET("/me", h.Auth.GetMe)
	}

	// Public prediction routes
	router.GET("/api/predictions/approved", h.Predictions.GetApproved)
	router.GET("/api/predictions/:id", h.Predictions.GetPrediction)
	router.GET("/api/predictions/:id/pool", h.Predictions.GetPool)
	router.GET("/api/predictions/:id/score", h.Predictions.GetScore)
	router.GET("/ws/pools/:pool_id", h.Odds.Stream)

	// API routes (protected)
	api := router.Group("/api")
	api.Use(auth.AuthMiddleware())
	{
		api.POST("/predictions", h.Predictions.Submit)
		api.GET("/predictions/mine", h.Predictions.GetMine)

		api.POST("/predictions/:id/bets", h.Bets.PlaceBet)
		api.GET("/predictions/:id/bets", h.Bets.GetPredictionBets)
		api.GET("/predictions/:id/claim", h.Bets.GetClaimStatus)
		api.POST("/predictions/:id/claim", h.Bets.Claim)

		api.GET("/bets/me", h.Bets.GetMyBets)
		api.GET("/bets/me/summary", h.Bets.GetMySummary)
	}

	// Admin routes (protected + admin only)
	admin := router.Group("/api/admin")
	admin.Use(auth.AuthMiddleware())
	admin.Use(h.Admin.AdminMiddleware())
	{
		admin.GET("/admins", h.Admin.ListAdmins)
		admin.POST("/admins", h.Admin.PromoteUser)

		admin.GET("/predictions/pending", h.Settlement.GetPending)
		admin.POST("/predictions/:id/score", h.Settlement.ScorePrediction)
		admin.POST("/predictions/:id/promote", h.Settlement.Promote)
		admin.POST("/predictions/:id/reject", h.Settlement.Reject)
		admin.POST("/predictions/:id/close", h.Settlement.Close)
		admin.POST("/predictions/:id/resolve", h.Settlement.Resolve)

		admin.POST("/scoring/rank", h.Settlement.RankPending)
		admin.GET("/scores", h.Settlement.GetScores)

		admin.POST("/pools/:pool_id/refresh", h.Blockchain.RefreshPool)
		admin.GET("/ledger/diagnostics", h.Blockchain.Diagnostics)
	}
}
