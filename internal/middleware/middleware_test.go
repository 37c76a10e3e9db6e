package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shieldpool/internal/handlers"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func serve(t *testing.T, mw gin.HandlerFunc, remoteAddr string, headers map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	seen := make(map[string]interface{})
	r := gin.New()
	r.GET("/x", mw, func(c *gin.Context) {
		for k, v := range c.Keys {
			seen[k] = v
		}
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w, seen
}

func TestRestrict(t *testing.T) {
	l := NewLocalhostOnly(quietLogger(), []string{"10.1.0.0/16", "192.168.1.7", "bad/cidr"})

	cases := []struct {
		addr string
		want int
	}{
		{"127.0.0.1:5000", http.StatusOK},
		{"[::1]:5000", http.StatusOK},
		{"10.1.44.2:5000", http.StatusOK},
		{"192.168.1.7:5000", http.StatusOK},
		{"192.168.1.8:5000", http.StatusForbidden},
		{"10.2.0.1:5000", http.StatusForbidden},
	}
	for _, tc := range cases {
		w, _ := serve(t, l.Restrict(), tc.addr, nil)
		assert.Equal(t, tc.want, w.Code, tc.addr)
	}
}

func TestRequireTOTP(t *testing.T) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "test", AccountName: "admin"})
	require.NoError(t, err)
	mw := NewAdminAuthMiddleware(quietLogger(), key.Secret()).RequireTOTP()

	w, _ := serve(t, mw, "127.0.0.1:1", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "MISSING_TOTP")

	w, _ = serve(t, mw, "127.0.0.1:1", map[string]string{AdminTOTPHeader: "000000x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_TOTP")

	code, err := totp.GenerateCode(key.Secret(), time.Now())
	require.NoError(t, err)
	w, _ = serve(t, mw, "127.0.0.1:1", map[string]string{AdminTOTPHeader: code})
	assert.Equal(t, http.StatusOK, w.Code)

	// no secret configured: no second factor
	w, _ = serve(t, NewAdminAuthMiddleware(quietLogger(), "").RequireTOTP(), "127.0.0.1:1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuth(t *testing.T) {
	secret := "jwt-secret"
	mw := NewAuthMiddleware(quietLogger(), secret).RequireAuth()
	addr := common.HexToAddress("0x00000000000000000000000000000000000000a1")

	w, _ := serve(t, mw, "127.0.0.1:1", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "MISSING_AUTH_HEADER")

	w, _ = serve(t, mw, "127.0.0.1:1", map[string]string{"Authorization": "Token abc"})
	assert.Contains(t, w.Body.String(), "INVALID_AUTH_FORMAT")

	w, _ = serve(t, mw, "127.0.0.1:1", map[string]string{"Authorization": "Bearer "})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	now := time.Now()
	token, err := handlers.GenerateJWTToken([]byte(secret), "test", addr, now, now.Add(time.Minute))
	require.NoError(t, err)
	w, keys := serve(t, mw, "127.0.0.1:1", map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, w.Code)
	caller, ok := keys[handlers.CallerAddressKey]
	require.True(t, ok)
	assert.Equal(t, addr, caller)
}
