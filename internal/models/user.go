package models

import (
	"time"
)

// User is a wallet-authenticated account
type User struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	WalletAddress string    `gorm:"size:64;uniqueIndex;not null" json:"wallet_address"`
	Nickname      string    `gorm:"size:64;uniqueIndex;not null" json:"nickname"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}

// AdminRole is the operator permission level
type AdminRole string

const (
	AdminRoleOperator  AdminRole = "OPERATOR"
	AdminRoleModerator AdminRole = "MODERATOR"
)

// AdminUser marks a user allowed to moderate and settle predictions
type AdminUser struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	Role      AdminRole `gorm:"size:20;not null" json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (AdminUser) TableName() string {
	return "admin_users"
}
