package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"
	"golang.org/x/crypto/bcrypt"

	"giveaway/internal/model"
	"giveaway/internal/repo"
)

// SessionCookie names the cookie carrying the signed admin session token.
const SessionCookie = "admin_session"

const adminIDKey = "admin_id"

var ErrInvalidCredentials = errors.New("invalid credentials")

type Config struct {
	Secret             string
	TokenTTL           time.Duration
	Username           string
	Password           string
	DeprecatedUsername string
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

type sessionClaims struct {
	AdminID int `json:"admin_id"`
	jwt.RegisteredClaims
}

// IssueToken signs a session token binding the admin identity.
func IssueToken(secret []byte, adminID int, ttl time.Duration) (string, error) {
	claims := sessionClaims{
		AdminID: adminID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies a session token and returns the bound admin id.
func ParseToken(secret []byte, tokenString string) (int, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("invalid session token: %w", err)
	}
	if claims.AdminID == 0 {
		return 0, errors.New("session token carries no admin id")
	}
	return claims.AdminID, nil
}

func SetSessionCookie(c *ginext.Context, token string, ttl time.Duration) {
	c.SetCookie(SessionCookie, token, int(ttl.Seconds()), "/", "", false, true)
}

func ClearSessionCookie(c *ginext.Context) {
	c.SetCookie(SessionCookie, "", -1, "/", "", false, true)
}

// RequireAdmin guards admin-only routes. Anonymous requests are
// redirected to the login page with the originally requested URL
// preserved in the next parameter; the guarded handler never runs.
func RequireAdmin(secret []byte) func(c *ginext.Context) {
	return func(c *ginext.Context) {
		token, err := c.Cookie(SessionCookie)
		if err != nil || token == "" {
			redirectToLogin(c)
			return
		}

		adminID, err := ParseToken(secret, token)
		if err != nil {
			redirectToLogin(c)
			return
		}

		c.Set(adminIDKey, adminID)
		c.Next()
	}
}

func redirectToLogin(c *ginext.Context) {
	next := url.QueryEscape(c.Request.URL.RequestURI())
	c.Redirect(302, "/admin/login?next="+next)
	c.Abort()
}

// AdminID returns the admin identity bound to the request by RequireAdmin.
func AdminID(c *ginext.Context) (int, bool) {
	v, ok := c.Get(adminIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int)
	return id, ok
}

// Bootstrap ensures exactly one admin with the configured username
// exists. A leftover record under the deprecated username is removed,
// and the password is only ever stored as a bcrypt hash.
func Bootstrap(ctx context.Context, r repo.Repository, cfg Config, log *zerolog.Logger) error {
	if cfg.DeprecatedUsername != "" && cfg.DeprecatedUsername != cfg.Username {
		if err := r.DeleteAdminByUsername(ctx, cfg.DeprecatedUsername); err != nil {
			return fmt.Errorf("failed to remove deprecated admin: %w", err)
		}
	}

	if _, err := r.GetAdminByUsername(ctx, cfg.Username); err == nil {
		return nil
	} else if !errors.Is(err, repo.ErrAdminNotFound) {
		return err
	}

	hash, err := HashPassword(cfg.Password)
	if err != nil {
		return err
	}

	id, err := r.CreateAdmin(ctx, &model.Admin{Username: cfg.Username, PasswordHash: hash})
	if err != nil {
		return err
	}
	log.Info().Int64("admin_id", id).Str("username", cfg.Username).Msg("admin account created")
	return nil
}
