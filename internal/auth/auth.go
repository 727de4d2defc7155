package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ============================================================================
// ERROR TAXONOMY
// ============================================================================

type ErrorCode int

const (
	ErrCodeTokenMissing ErrorCode = iota + 6000
	ErrCodeTokenInvalid
	ErrCodeTokenExpired
	ErrCodeInvalidCredentials
	ErrCodeInvalidSigningMethod
	ErrCodeSecretNotConfigured
)

type AuthError struct {
	Code      ErrorCode
	Message   string
	Err       error
	Timestamp int64
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func newAuthError(code ErrorCode, msg string, err error) *AuthError {
	return &AuthError{Code: code, Message: msg, Err: err, Timestamp: time.Now().UnixNano()}
}

// ============================================================================
// SERVICE
// ============================================================================

const (
	tokenDuration = 24 * time.Hour
	tokenIssuer   = "fleetplane"
)

// Metrics counts authentication outcomes.
type Metrics struct {
	loginAttempts    atomic.Uint64
	loginSuccesses   atomic.Uint64
	loginFailures    atomic.Uint64
	tokenValidations atomic.Uint64
	tokenRejections  atomic.Uint64
}

func (m *Metrics) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"login_attempts":    m.loginAttempts.Load(),
		"login_successes":   m.loginSuccesses.Load(),
		"login_failures":    m.loginFailures.Load(),
		"token_validations": m.tokenValidations.Load(),
		"token_rejections":  m.tokenRejections.Load(),
	}
}

// Service issues and validates HMAC-signed tokens for the ops API. It is
// constructed once and handed to the router; there is no package-level
// instance.
type Service struct {
	secret       []byte
	adminUser    string
	passwordHash string
	metrics      Metrics
}

// NewService builds the auth service. A missing secret is reported, not
// papered over with a fallback.
func NewService(secret, adminUser, passwordHash string) (*Service, error) {
	if secret == "" {
		return nil, newAuthError(ErrCodeSecretNotConfigured, "API_JWT_SECRET is not set", nil)
	}
	if len(secret) < 32 {
		log.Printf("[Auth] WARNING: JWT secret is short (%d chars), use at least 32 in production", len(secret))
	}
	return &Service{
		secret:       []byte(secret),
		adminUser:    adminUser,
		passwordHash: passwordHash,
	}, nil
}

func (s *Service) Metrics() map[string]interface{} {
	return s.metrics.Snapshot()
}

type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// GenerateToken issues a signed access token for username.
func (s *Service) GenerateToken(username string) (string, error) {
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        generateTokenID(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    tokenIssuer,
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken parses and verifies a token string.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	s.metrics.tokenValidations.Add(1)

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, newAuthError(ErrCodeInvalidSigningMethod,
				fmt.Sprintf("unexpected signing method: %v", token.Header["alg"]), nil)
		}
		return s.secret, nil
	})
	if err != nil {
		s.metrics.tokenRejections.Add(1)
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, newAuthError(ErrCodeTokenExpired, "token expired", nil)
		}
		return nil, newAuthError(ErrCodeTokenInvalid, "invalid token", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		s.metrics.tokenRejections.Add(1)
		return nil, newAuthError(ErrCodeTokenInvalid, "invalid claims", nil)
	}

	return claims, nil
}

// CheckCredentials verifies username and password against the configured
// admin account. Passwords are compared via their bcrypt hash.
func (s *Service) CheckCredentials(username, password string) bool {
	if username != s.adminUser || s.passwordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)) == nil
}

// HashPassword is a helper for provisioning the admin password hash.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	return string(bytes), err
}

func generateTokenID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// A predictable token ID is worse than no token at all.
		panic("auth: entropy source unavailable: " + err.Error())
	}
	return base64.URLEncoding.EncodeToString(b)
}

// ============================================================================
// MIDDLEWARE & HANDLERS
// ============================================================================

// Middleware authenticates a request by bearer header or, for WebSocket
// upgrades, a token query parameter.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")

		if tokenString == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader != "" {
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
					tokenString = parts[1]
				}
			}
		}

		if tokenString == "" {
			c.AbortWithStatusJSON(401, gin.H{
				"error": "authentication required",
				"code":  ErrCodeTokenMissing,
			})
			return
		}

		claims, err := s.ValidateToken(tokenString)
		if err != nil {
			var authErr *AuthError
			if errors.As(err, &authErr) {
				c.AbortWithStatusJSON(401, gin.H{"error": authErr.Message, "code": authErr.Code})
			} else {
				c.AbortWithStatusJSON(401, gin.H{"error": "invalid token", "code": ErrCodeTokenInvalid})
			}
			return
		}

		c.Set("username", claims.Username)
		c.Next()
	}
}

// LoginHandler exchanges admin credentials for an access token.
func (s *Service) LoginHandler(c *gin.Context) {
	s.metrics.loginAttempts.Add(1)

	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.metrics.loginFailures.Add(1)
		c.JSON(400, gin.H{"error": "invalid request"})
		return
	}

	if !s.CheckCredentials(req.Username, req.Password) {
		s.metrics.loginFailures.Add(1)
		c.JSON(401, gin.H{
			"error": "invalid credentials",
			"code":  ErrCodeInvalidCredentials,
		})
		return
	}

	token, err := s.GenerateToken(req.Username)
	if err != nil {
		c.JSON(500, gin.H{"error": "failed to generate token"})
		return
	}

	s.metrics.loginSuccesses.Add(1)
	c.JSON(200, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(tokenDuration.Seconds()),
	})
}
