package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
)

const (
	RoleAdmin   = "admin"
	RoleDoctor  = "doctor"
	RolePatient = "patient"
)

// Claims are the token claims issued to hospital admins, doctors and
// patients. HospitalID is empty for patients.
type Claims struct {
	jwt.RegisteredClaims
	HospitalID string   `json:"hospital_id,omitempty"`
	Roles      []string `json:"roles"`
}

type JWTConfig struct {
	Issuer     string
	SigningKey []byte
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			return authenticate(c, next, cfg, authHeader)
		}
	}
}

func authenticate(c echo.Context, next echo.HandlerFunc, cfg JWTConfig, authHeader string) error {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}

	claims, err := ParseToken(cfg, parts[1])
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	// Read by the tenant middleware.
	c.Set("jwt_hospital_id", claims.HospitalID)

	ctx := withIdentity(c.Request().Context(), claims.Subject, claims.Roles)
	c.SetRequest(c.Request().WithContext(ctx))
	return next(c)
}

// ParseToken validates an HS256 token and returns its claims.
func ParseToken(cfg JWTConfig, tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	return claims, nil
}

// IssueToken signs a token for subject. Used by the CLI and tests.
func IssueToken(cfg JWTConfig, subject, hospitalID string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		HospitalID: hospitalID,
		Roles:      roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.SigningKey)
}

// DevAuthMiddleware lets unauthenticated requests through in development,
// taking the identity from X-User-ID / X-User-Roles headers. Requests that
// do carry a bearer token are still validated.
func DevAuthMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if authHeader := c.Request().Header.Get("Authorization"); authHeader != "" {
				return authenticate(c, next, cfg, authHeader)
			}

			userID := c.Request().Header.Get("X-User-ID")
			if userID == "" {
				userID = uuid.Nil.String()
			}
			roles := []string{RoleAdmin}
			if r := c.Request().Header.Get("X-User-Roles"); r != "" {
				roles = strings.Split(r, ",")
			}

			ctx := withIdentity(c.Request().Context(), userID, roles)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func withIdentity(ctx context.Context, userID string, roles []string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, UserRolesKey, roles)
}

// WithIdentity is the exported form of withIdentity for handler tests.
func WithIdentity(ctx context.Context, userID uuid.UUID, roles ...string) context.Context {
	return withIdentity(ctx, userID.String(), roles)
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

// SubjectID returns the caller's id as a UUID.
func SubjectID(ctx context.Context) (uuid.UUID, error) {
	uid, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil {
		return uuid.Nil, fmt.Errorf("caller identity is not a valid id")
	}
	return uid, nil
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}
