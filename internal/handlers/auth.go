package handlers

import (
	"crypto/ed25519"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mr-tron/base58"

	"sports-prediction/internal/auth"
	"sports-prediction/internal/services"
)

// LoginMessage is the text a wallet signs to log in
const LoginMessage = "Sign this message to authenticate with Sports Prediction"

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService  *services.AuthService
	adminService *services.AdminService
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService *services.AuthService, adminService *services.AdminService) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		adminService: adminService,
	}
}

// WalletLogin authenticates a user by wallet address and an ed25519
// signature of LoginMessage.
// POST /auth/wallet
func (h *AuthHandler) WalletLogin(c *gin.Context) {
	var req struct {
		WalletAddress string `json:"wallet_address" binding:"required"`
		Signature     string `json:"signature" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 1. Verify wallet address format
	if !services.ValidLedgerAddress(req.WalletAddress) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wallet address"})
		return
	}
	pubKey, _ := base58.Decode(req.WalletAddress)

	// 2. Verify signature. Wallets return base58; some clients send hex.
	sig, err := base58.Decode(req.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		sig, err = hex.DecodeString(req.Signature)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature format"})
			return
		}
	}

	if !ed25519.Verify(ed25519.PublicKey(pubKey), []byte(LoginMessage), sig) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	// 3. Process login/registration
	user, err := h.authService.ProcessWalletLogin(req.WalletAddress)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to authenticate"})
		return
	}

	token, err := auth.GenerateToken(user.ID, user.WalletAddress)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  user,
	})
}

// GetMe returns the currently authenticated user's profile
// GET /auth/me
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	user, err := h.authService.GetUserByID(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	resp := gin.H{
		"id":             user.ID,
		"wallet_address": user.WalletAddress,
		"nickname":       user.Nickname,
		"created_at":     user.CreatedAt,
	}
	if h.adminService != nil && h.adminService.IsAdmin(userID) {
		resp["role"] = "admin"
	}

	c.JSON(http.StatusOK, gin.H{
		"user": resp,
	})
}
