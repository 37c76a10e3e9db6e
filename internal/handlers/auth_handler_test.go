package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"shieldpool/internal/pool"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	want := crypto.PubkeyToAddress(key.PublicKey)
	message := "Shieldpool Authentication\nNonce: 00\nTimestamp: 1"

	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)

	got, err := RecoverSigner(message, hexutil.Encode(sig))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// wallets return V as 27/28
	sig[crypto.RecoveryIDOffset] += 27
	got, err = RecoverSigner(message, hexutil.Encode(sig))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = RecoverSigner(message+"x", hexutil.Encode(sig))
	require.NoError(t, err)
	assert.NotEqual(t, want, got)

	_, err = RecoverSigner(message, "0x1234")
	assert.Error(t, err)
	_, err = RecoverSigner(message, "nothex")
	assert.Error(t, err)
}

func TestJWTRoundTrip(t *testing.T) {
	secret := []byte("s3cret")
	addr := common.HexToAddress("0x00000000000000000000000000000000000000ab")
	now := time.Now()

	token, err := GenerateJWTToken(secret, "shieldpool", addr, now, now.Add(time.Hour))
	require.NoError(t, err)

	claims, err := ValidateJWTToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, addr.Hex(), claims.Subject)
	assert.Equal(t, "shieldpool", claims.Issuer)

	_, err = ValidateJWTToken([]byte("other"), token)
	assert.Error(t, err)

	expired, err := GenerateJWTToken(secret, "shieldpool", addr, now.Add(-2*time.Hour), now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = ValidateJWTToken(secret, expired)
	assert.Error(t, err)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{pool.ErrUnauthorizedAdmin, http.StatusForbidden},
		{pool.ErrUnauthorizedRelayer, http.StatusForbidden},
		{pool.ErrProtocolPaused, http.StatusLocked},
		{pool.ErrInvalidAmount, http.StatusBadRequest},
		{pool.ErrLeafIndexMismatch, http.StatusBadRequest},
		{pool.ErrNullifierAlreadySpent, http.StatusConflict},
		{pool.ErrInvalidStateRoot, http.StatusConflict},
		{pool.ErrTreeFull, http.StatusConflict},
		{pool.ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{pool.ErrOverflow, http.StatusUnprocessableEntity},
		{pool.ErrNotFound, http.StatusNotFound},
		{pool.ErrNotInitialized, http.StatusConflict},
		{fmt.Errorf("load config: %w", pool.ErrNotInitialized), http.StatusConflict},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}
