package services

import (
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"sports-prediction/internal/models"
	"sports-prediction/internal/utils"
)

// AuthService handles authentication business logic
type AuthService struct {
	db *gorm.DB
}

// NewAuthService creates a new AuthService
func NewAuthService(db *gorm.DB) *AuthService {
	return &AuthService{db: db}
}

// ProcessWalletLogin finds or creates a user by wallet address
func (s *AuthService) ProcessWalletLogin(walletAddress string) (*models.User, error) {
	var user models.User

	result := s.db.Where("wallet_address = ?", walletAddress).First(&user)
	if result.Error == nil {
		log.Printf("[Auth] User logged in: wallet=%s (ID: %d)", walletAddress, user.ID)
		return &user, nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", result.Error)
	}

	// Nicknames are random; retry a few times on a collision.
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		nickname, err := utils.GenerateNickname()
		if err != nil {
			return nil, err
		}

		user = models.User{
			WalletAddress: walletAddress,
			Nickname:      nickname,
		}
		lastErr = s.db.Create(&user).Error
		if lastErr == nil {
			log.Printf("[Auth] New user created: wallet=%s nickname=%s (ID: %d)", walletAddress, nickname, user.ID)
			return &user, nil
		}
		if !errors.Is(lastErr, gorm.ErrDuplicatedKey) {
			break
		}
	}

	return nil, fmt.Errorf("failed to create user: %w", lastErr)
}

// GetUserByID retrieves a user by their ID
func (s *AuthService) GetUserByID(userID uint) (*models.User, error) {
	var user models.User
	if err := s.db.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}
