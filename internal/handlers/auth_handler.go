package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"shieldpool/internal/config"
	"shieldpool/internal/dto"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

var (
	errUnknownChallenge = errors.New("challenge unknown, expired or already used")
	errSignerMismatch   = errors.New("signature does not recover to address")
)

type challenge struct {
	message   string
	expiresAt time.Time
}

// AuthHandler issues login challenges and exchanges signed challenges for
// JWTs whose subject is the signer address.
type AuthHandler struct {
	secret       []byte
	issuer       string
	tokenTTL     time.Duration
	challengeTTL time.Duration
	logger       logrus.FieldLogger
	now          func() time.Time

	mu         sync.Mutex
	challenges map[string]challenge
}

// NewAuthHandler createprocess
func NewAuthHandler(cfg config.AuthConfig, logger logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{
		secret:       []byte(cfg.JWTSecret),
		issuer:       cfg.Issuer,
		tokenTTL:     time.Duration(cfg.TokenTTL) * time.Second,
		challengeTTL: time.Duration(cfg.ChallengeTTL) * time.Second,
		logger:       logger,
		now:          time.Now,
		challenges:   make(map[string]challenge),
	}
}

// GenerateChallengeHandler
// POST /api/auth/challenge
func (h *AuthHandler) GenerateChallengeHandler(c *gin.Context) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to generate nonce",
			"code":    "INTERNAL",
		})
		return
	}
	nonceStr := hex.EncodeToString(nonce)
	now := h.now()
	message := fmt.Sprintf("Shieldpool Authentication\nNonce: %s\nTimestamp: %d", nonceStr, now.Unix())
	expiresAt := now.Add(h.challengeTTL)

	h.mu.Lock()
	for k, ch := range h.challenges {
		if now.After(ch.expiresAt) {
			delete(h.challenges, k)
		}
	}
	h.challenges[nonceStr] = challenge{message: message, expiresAt: expiresAt}
	h.mu.Unlock()

	c.JSON(http.StatusOK, dto.ChallengeResponse{
		Success:   true,
		Nonce:     nonceStr,
		Message:   message,
		ExpiresAt: expiresAt.Unix(),
	})
}

// LoginHandler
// POST /api/auth/login
func (h *AuthHandler) LoginHandler(c *gin.Context) {
	var req dto.AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.AuthResponse{
			Success: false,
			Message: fmt.Sprintf("invalid request: %v", err),
		})
		return
	}
	if !common.IsHexAddress(req.Address) {
		c.JSON(http.StatusBadRequest, dto.AuthResponse{
			Success: false,
			Message: "address must be a 0x-prefixed address",
		})
		return
	}
	address := common.HexToAddress(req.Address)

	if err := h.consumeChallenge(req.Message); err != nil {
		h.logger.WithFields(logrus.Fields{"address": address.Hex(), "error": err}).Warn("Login rejected")
		c.JSON(http.StatusUnauthorized, dto.AuthResponse{Success: false, Message: err.Error()})
		return
	}

	signer, err := RecoverSigner(req.Message, req.Signature)
	if err == nil && signer != address {
		err = errSignerMismatch
	}
	if err != nil {
		h.logger.WithFields(logrus.Fields{"address": address.Hex(), "error": err}).Warn("Login rejected")
		c.JSON(http.StatusUnauthorized, dto.AuthResponse{Success: false, Message: err.Error()})
		return
	}

	expiresAt := h.now().Add(h.tokenTTL)
	token, err := GenerateJWTToken(h.secret, h.issuer, address, h.now(), expiresAt)
	if err != nil {
		h.logger.WithError(err).Error("JWT signing failed")
		c.JSON(http.StatusInternalServerError, dto.AuthResponse{Success: false, Message: "token generation failed"})
		return
	}

	h.logger.WithField("address", address.Hex()).Info("Caller authenticated")
	c.JSON(http.StatusOK, dto.AuthResponse{
		Success:   true,
		Token:     token,
		Address:   address.Hex(),
		ExpiresAt: expiresAt.Unix(),
		Message:   "success",
	})
}

// consumeChallenge accepts each issued challenge message once.
func (h *AuthHandler) consumeChallenge(message string) error {
	nonce := ""
	for _, line := range strings.Split(message, "\n") {
		if strings.HasPrefix(line, "Nonce: ") {
			nonce = strings.TrimPrefix(line, "Nonce: ")
			break
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.challenges[nonce]
	if !ok || ch.message != message {
		return errUnknownChallenge
	}
	delete(h.challenges, nonce)
	if h.now().After(ch.expiresAt) {
		return errUnknownChallenge
	}
	return nil
}

// RecoverSigner returns the address that produced an EIP-191 personal_sign
// signature over message.
func RecoverSigner(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes", crypto.SignatureLength)
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// GenerateJWTToken signs an HS256 token for address.
func GenerateJWTToken(secret []byte, issuer string, address common.Address, issuedAt, expiresAt time.Time) (string, error) {
	claims := dto.JWTClaims{
		Address: address.Hex(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			Issuer:    issuer,
			Subject:   address.Hex(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateJWTToken verifyJWT Token
func ValidateJWTToken(secret []byte, tokenString string) (*dto.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &dto.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("token invalid: %w", err)
	}

	claims, ok := token.Claims.(*dto.JWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("token invalid")
	}
	if !common.IsHexAddress(claims.Subject) {
		return nil, fmt.Errorf("token subject is not an address")
	}
	return claims, nil
}
