package services

import (
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"sports-prediction/internal/models"
)

type AdminService struct {
	db *gorm.DB
}

func NewAdminService(db *gorm.DB) *AdminService {
	return &AdminService{
		db: db,
	}
}

// IsAdmin checks if a user is an admin
func (s *AdminService) IsAdmin(userID uint) bool {
	_, err := s.GetAdminByUserID(userID)
	return err == nil
}

// GetAdminByUserID gets admin by user ID
func (s *AdminService) GetAdminByUserID(userID uint) (*models.AdminUser, error) {
	var admin models.AdminUser
	if err := s.db.Where("user_id = ?", userID).First(&admin).Error; err != nil {
		return nil, err
	}
	return &admin, nil
}

// PromoteUserToAdmin grants an operator role to a user
func (s *AdminService) PromoteUserToAdmin(userID uint, role models.AdminRole) (*models.AdminUser, error) {
	if role != models.AdminRoleOperator && role != models.AdminRoleModerator {
		return nil, newValidationError("role", "role must be OPERATOR or MODERATOR")
	}

	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	admin := models.AdminUser{
		UserID: userID,
		Role:   role,
	}
	if err := s.db.Create(&admin).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, newValidationError("user_id", "user is already an admin")
		}
		return nil, fmt.Errorf("failed to promote user: %w", err)
	}

	log.Printf("[Admin] User %d promoted to %s", userID, role)
	return &admin, nil
}

// ListAdmins returns every admin, oldest first
func (s *AdminService) ListAdmins() ([]models.AdminUser, error) {
	var admins []models.AdminUser
	if err := s.db.Order("created_at ASC").Find(&admins).Error; err != nil {
		return nil, err
	}
	return admins, nil
}
