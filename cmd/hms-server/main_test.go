package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arogyalink/hms/internal/config"
	"github.com/arogyalink/hms/internal/platform/auth"
	"github.com/arogyalink/hms/internal/platform/metrics"
	"github.com/arogyalink/hms/internal/platform/middleware"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:            "production",
		JWTIssuer:      "hms",
		CORSOrigins:    []string{"https://app.example"},
		RateLimitRPS:   100,
		RateLimitBurst: 100,
		RequestTimeout: 5 * time.Second,
		LogLevel:       "info",
		PhoneRegion:    "IN",
	}
}

// ---------------------------------------------------------------------------
// resolveSigningKey
// ---------------------------------------------------------------------------

func TestResolveSigningKey_FromConfig(t *testing.T) {
	key, random, err := resolveSigningKey("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	assert.False(t, random)
	assert.Equal(t, []byte("0123456789abcdef0123456789abcdef"), key)
}

func TestResolveSigningKey_RandomGeneration(t *testing.T) {
	key, random, err := resolveSigningKey("")
	require.NoError(t, err)
	assert.True(t, random)
	assert.Len(t, key, 32)

	key2, _, err := resolveSigningKey("")
	require.NoError(t, err)
	assert.NotEqual(t, key, key2, "two random keys should not be identical")
}

// ---------------------------------------------------------------------------
// logging
// ---------------------------------------------------------------------------

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), "parseLevel(%q)", in)
	}
}

func TestNewLogger_WritesToFile(t *testing.T) {
	cfg := testConfig()
	cfg.LogFile = filepath.Join(t.TempDir(), "hms.log")

	logger, closeLog := newLogger(cfg)
	logger.Info().Str("probe", "file-sink").Msg("hello")
	logger.Debug().Msg("below level")
	closeLog()

	data, err := os.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"probe":"file-sink"`)
	assert.NotContains(t, string(data), "below level")
}

// ---------------------------------------------------------------------------
// HTTP stack
// ---------------------------------------------------------------------------

func TestNewEcho_ErrorShapeAndRequestID(t *testing.T) {
	e := newEcho(testConfig(), zerolog.Nop(), metrics.New())

	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "error")
}

func TestNewEcho_ValidatorInstalled(t *testing.T) {
	e := newEcho(testConfig(), zerolog.Nop(), nil)

	type payload struct {
		Phone string `json:"phone" validate:"required,phone"`
	}
	e.POST("/probe", func(c echo.Context) error {
		var p payload
		if err := c.Bind(&p); err != nil {
			return err
		}
		if err := c.Validate(&p); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	})

	post := func(body string) int {
		req := httptest.NewRequest(http.MethodPost, "/probe", bytes.NewBufferString(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusNoContent, post(`{"phone":"+1 650-253-0000"}`))
	assert.Equal(t, http.StatusBadRequest, post(`{"phone":"123"}`))
}

func TestNewEcho_CORS(t *testing.T) {
	e := newEcho(testConfig(), zerolog.Nop(), nil)
	e.GET("/ping", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(echo.HeaderOrigin, "https://app.example")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestAuthMiddleware_ProductionRequiresToken(t *testing.T) {
	cfg := testConfig()
	key := []byte("0123456789abcdef0123456789abcdef")
	e := newEcho(cfg, zerolog.Nop(), nil)
	g := e.Group("/api", authMiddleware(cfg, key))
	g.GET("/me", func(c echo.Context) error {
		return c.String(http.StatusOK, auth.UserIDFromContext(c.Request().Context()))
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	subject := "3f1c2a8e-8d3c-4a55-9a43-1b2f7d9c0e11"
	token, err := auth.IssueToken(auth.JWTConfig{Issuer: cfg.JWTIssuer, SigningKey: key}, subject, "", []string{auth.RolePatient}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, subject, rec.Body.String())
}

func TestAuthMiddleware_DevelopmentAllowsHeaders(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "development"
	e := newEcho(cfg, zerolog.Nop(), nil)
	g := e.Group("/api", authMiddleware(cfg, []byte("dev")))
	g.GET("/me", func(c echo.Context) error {
		return c.String(http.StatusOK, auth.UserIDFromContext(c.Request().Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("X-User-ID", "dev-user")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dev-user", rec.Body.String())
}

// ---------------------------------------------------------------------------
// commands
// ---------------------------------------------------------------------------

func TestCommands(t *testing.T) {
	assert.Equal(t, "serve", serveCmd().Use)
	assert.Equal(t, "maintain", maintainCmd().Use)

	var names []string
	for _, c := range migrateCmd().Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"up", "status"}, names)

	create, _, err := hospitalCmd().Find([]string{"create"})
	require.NoError(t, err)
	assert.NotNil(t, create.Flags().Lookup("opd-start"))
	assert.NotNil(t, create.Flags().Lookup("upi-id"))
}

func TestTokenCmd_RejectsBadSubject(t *testing.T) {
	cmd := tokenCmd()
	cmd.SetArgs([]string{"--subject", "not-a-uuid"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}
