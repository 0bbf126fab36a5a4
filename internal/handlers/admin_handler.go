package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sports-prediction/internal/auth"
	"sports-prediction/internal/models"
	"sports-prediction/internal/services"
)

type AdminHandler struct {
	adminService *services.AdminService
}

func NewAdminHandler(adminService *services.AdminService) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
	}
}

// AdminMiddleware checks if user is admin
func (h *AdminHandler) AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := auth.GetUserID(c)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}

		admin, err := h.adminService.GetAdminByUserID(userID)
		if err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "Not an admin"})
			c.Abort()
			return
		}

		c.Set("admin_id", admin.ID)
		c.Set("admin_role", admin.Role)
		c.Next()
	}
}

// ListAdmins returns every operator
// GET /api/admin/admins
func (h *AdminHandler) ListAdmins(c *gin.Context) {
	admins, err := h.adminService.ListAdmins()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch admins"})
		return
	}
	respondOK(c, http.StatusOK, admins)
}

// PromoteUser grants an admin role to a user
// POST /api/admin/admins
func (h *AdminHandler) PromoteUser(c *gin.Context) {
	var req struct {
		UserID uint             `json:"user_id" binding:"required"`
		Role   models.AdminRole `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	admin, err := h.adminService.PromoteUserToAdmin(req.UserID, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, admin)
}
