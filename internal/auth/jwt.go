package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer names this service in every session token
const Issuer = "sports-prediction"

// TokenTTL is how long a wallet session stays valid
const TokenTTL = 24 * time.Hour

var (
	// ErrSecretNotSet is returned before InitJWT has been called
	ErrSecretNotSet = errors.New("session secret not initialized")

	// ErrNoWallet is returned for sessions not bound to a wallet
	ErrNoWallet = errors.New("session is not bound to a wallet")
)

var sessionSecret []byte

// InitJWT sets the HMAC secret used to sign wallet sessions
func InitJWT(secret string) {
	sessionSecret = []byte(secret)
}

// Claims identify a user and the ledger wallet they signed in with
type Claims struct {
	UserID        uint   `json:"user_id"`
	WalletAddress string `json:"wallet_address"`
	jwt.RegisteredClaims
}

// GenerateToken issues a session for a user signed in with walletAddress
func GenerateToken(userID uint, walletAddress string) (string, error) {
	return generateToken(userID, walletAddress, time.Now())
}

func generateToken(userID uint, walletAddress string, now time.Time) (string, error) {
	if len(sessionSecret) == 0 {
		return "", ErrSecretNotSet
	}
	if walletAddress == "" {
		return "", ErrNoWallet
	}

	claims := &Claims{
		UserID:        userID,
		WalletAddress: walletAddress,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(sessionSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, nil
}

// ValidateToken checks signature, issuer and expiry and returns the session
func ValidateToken(tokenString string) (*Claims, error) {
	if len(sessionSecret) == 0 {
		return nil, ErrSecretNotSet
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) { return sessionSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}

	if claims.WalletAddress == "" {
		return nil, ErrNoWallet
	}
	if claims.Subject != strconv.FormatUint(uint64(claims.UserID), 10) {
		return nil, fmt.Errorf("session subject %q does not match user %d", claims.Subject, claims.UserID)
	}
	return claims, nil
}
