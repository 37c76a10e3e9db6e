package dto

import "github.com/golang-jwt/jwt/v5"

// ==================== Auth DTOs ====================

// ChallengeResponse carries the message a caller must sign to log in
type ChallengeResponse struct {
	Success   bool   `json:"success"`
	Nonce     string `json:"nonce"`
	Message   string `json:"message"`
	ExpiresAt int64  `json:"expires_at"`
}

// AuthRequest Authentication request structure
type AuthRequest struct {
	Address   string `json:"address" binding:"required"`   // signer address, 0x-prefixed
	Message   string `json:"message" binding:"required"`   // challenge message as issued
	Signature string `json:"signature" binding:"required"` // 65-byte EIP-191 signature, hex
}

// AuthResponse Authentication response structure
type AuthResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token,omitempty"`
	Address   string `json:"address,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
	Message   string `json:"message"`
}

// JWTClaims JWT Claims structure. Subject is the caller address.
type JWTClaims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}
