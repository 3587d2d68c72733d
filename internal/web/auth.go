package web

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAuthDisabled  = errors.New("token update is disabled")
	ErrBadPassword   = errors.New("invalid password")
	ErrBadCode       = errors.New("invalid one-time code")
	errMissingBearer = errors.New("authorization header must be: Bearer <token>")
)

const (
	sessionSubject    = "token-admin"
	defaultSessionTTL = 12 * time.Hour
)

// AuthConfig configures the token-update login.
type AuthConfig struct {
	// Password is plain text or a bcrypt hash ("$2a$..."). Empty disables login.
	Password   string
	JWTSecret  string
	TOTPSecret string
	SessionTTL time.Duration
}

// Auth checks the update password and issues short-lived session tokens.
type Auth struct {
	cfg     AuthConfig
	secret  []byte
	limiter *loginLimiter
	now     func() time.Time
}

func NewAuth(cfg AuthConfig) *Auth {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	secret := cfg.JWTSecret
	if secret == "" {
		// sessions then only survive as long as the password does
		secret = "bollwatch:" + cfg.Password
	}
	return &Auth{
		cfg:     cfg,
		secret:  []byte(secret),
		limiter: newLoginLimiter(5, 15*time.Minute, 30*time.Minute),
		now:     time.Now,
	}
}

// Enabled reports whether a password is configured.
func (a *Auth) Enabled() bool { return a.cfg.Password != "" }

func (a *Auth) checkPassword(password string) bool {
	if strings.HasPrefix(a.cfg.Password, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(a.cfg.Password), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(a.cfg.Password), []byte(password)) == 1
}

// Login verifies the password and, when configured, the TOTP code, and
// returns a signed session token.
func (a *Auth) Login(password, code string) (string, time.Time, error) {
	if !a.Enabled() {
		return "", time.Time{}, ErrAuthDisabled
	}
	if !a.checkPassword(password) {
		return "", time.Time{}, ErrBadPassword
	}
	if a.cfg.TOTPSecret != "" && !totp.Validate(strings.TrimSpace(code), a.cfg.TOTPSecret) {
		return "", time.Time{}, ErrBadCode
	}

	now := a.now()
	exp := now.Add(a.cfg.SessionTTL)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sessionSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := tok.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, exp, nil
}

// Verify validates a session token.
func (a *Auth) Verify(tokenString string) error {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return err
	}
	if claims.Subject != sessionSubject {
		return fmt.Errorf("unexpected subject %q", claims.Subject)
	}
	return nil
}

// RequireSession rejects requests without a valid Bearer session token.
func (a *Auth) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": ErrAuthDisabled.Error()})
			return
		}
		header := c.GetHeader("Authorization")
		tokenString := strings.TrimPrefix(header, "Bearer ")
		if header == "" || tokenString == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errMissingBearer.Error()})
			return
		}
		if err := a.Verify(tokenString); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": fmt.Sprintf("invalid session: %v", err)})
			return
		}
		c.Next()
	}
}
