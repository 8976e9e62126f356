package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/enterprise/fraud-engine/configs"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)

	token, err := m.GenerateToken("alice", RoleAnalyst)
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, RoleAnalyst, claims.Role)
	assert.Equal(t, "alice", claims.Subject)
}

func TestJWTManager_Rejects(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	token, err := m.GenerateToken("alice", RoleAnalyst)
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewJWTManager("other", time.Hour).ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.ValidateToken("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		later := NewJWTManager("secret", time.Hour)
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := later.ValidateToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("unsigned", func(t *testing.T) {
		none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Username: "alice"}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = m.ValidateToken(none)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func testAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	hash, err := hashWithCost("s3cret-Pass", bcrypt.MinCost)
	require.NoError(t, err)
	return NewAuthenticator(configs.AnalystConfig{Username: "analyst", PasswordHash: hash}, NewJWTManager("secret", time.Hour))
}

func TestAuthenticator_Login(t *testing.T) {
	a := testAuthenticator(t)

	resp, err := a.Login(&LoginRequest{Username: "analyst", Password: "s3cret-Pass"})
	require.NoError(t, err)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, RoleAnalyst, resp.Role)

	claims, err := a.jwtManager.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "analyst", claims.Username)
}

func TestAuthenticator_BadCredentials(t *testing.T) {
	a := testAuthenticator(t)

	tests := []struct {
		name string
		req  LoginRequest
	}{
		{"wrong password", LoginRequest{Username: "analyst", Password: "nope"}},
		{"wrong user", LoginRequest{Username: "admin", Password: "s3cret-Pass"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Login(&tt.req)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

func TestAuthenticator_NoHashConfigured(t *testing.T) {
	a := NewAuthenticator(configs.AnalystConfig{Username: "analyst"}, NewJWTManager("secret", time.Hour))
	_, err := a.Login(&LoginRequest{Username: "analyst", Password: ""})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func protectedRouter(m *JWTManager, roles ...string) *gin.Engine {
	r := gin.New()
	r.GET("/private", AuthMiddleware(m), RoleMiddleware(roles...), func(c *gin.Context) {
		name, _ := GetUsernameFromContext(c)
		c.JSON(http.StatusOK, gin.H{"username": name})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	token, err := m.GenerateToken("alice", RoleAnalyst)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong prefix", "Basic " + token, http.StatusUnauthorized},
		{"bad token", "Bearer abc", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			if tt.header != "" {
				req.Header.Set(AuthorizationHeader, tt.header)
			}
			w := httptest.NewRecorder()
			protectedRouter(m, RoleAnalyst).ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAuthMiddleware_SetsUsername(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	token, err := m.GenerateToken("alice", RoleAnalyst)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set(AuthorizationHeader, BearerPrefix+token)
	w := httptest.NewRecorder()
	protectedRouter(m, RoleAnalyst).ServeHTTP(w, req)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "alice", body["username"])
}

func TestRoleMiddleware_Forbidden(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	token, err := m.GenerateToken("bob", "viewer")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set(AuthorizationHeader, BearerPrefix+token)
	w := httptest.NewRecorder()
	protectedRouter(m, RoleAnalyst).ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword("correct horse", hash))
	assert.False(t, CheckPassword("battery staple", hash))
	assert.False(t, CheckPassword("correct horse", ""))
}
