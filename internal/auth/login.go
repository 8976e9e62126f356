package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraud-engine/configs"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// RoleAnalyst is granted to the configured dashboard operator
const RoleAnalyst = "analyst"

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents an authentication response
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
	Username  string `json:"username"`
	Role      string `json:"role"`
}

// Authenticator checks analyst credentials against configuration
type Authenticator struct {
	analyst    configs.AnalystConfig
	jwtManager *JWTManager
}

// NewAuthenticator creates a new authenticator
func NewAuthenticator(analyst configs.AnalystConfig, jwtManager *JWTManager) *Authenticator {
	if analyst.PasswordHash == "" {
		log.Warn().Str("username", analyst.Username).Msg("No analyst password hash configured, login disabled")
	}
	return &Authenticator{analyst: analyst, jwtManager: jwtManager}
}

// Login verifies the credentials and issues a token
func (a *Authenticator) Login(req *LoginRequest) (*LoginResponse, error) {
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(a.analyst.Username)) == 1
	passOK := CheckPassword(req.Password, a.analyst.PasswordHash)
	if !userOK || !passOK {
		return nil, ErrInvalidCredentials
	}

	token, err := a.jwtManager.GenerateToken(a.analyst.Username, RoleAnalyst)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &LoginResponse{
		Token:     token,
		ExpiresIn: int64(a.jwtManager.Expiration().Seconds()),
		Username:  a.analyst.Username,
		Role:      RoleAnalyst,
	}, nil
}
