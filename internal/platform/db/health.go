package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is a snapshot of the connection pool.
type PoolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		MaxConns:      stat.MaxConns(),
	}
}

// Dependency is an extra backing service probed by the health endpoint.
type Dependency struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthHandler pings the database and every dependency. Any failure turns
// the response into 503.
func HealthHandler(pool *pgxpool.Pool, deps ...Dependency) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		checks := map[string]string{"database": "ok"}
		healthy := true
		if err := pool.Ping(ctx); err != nil {
			checks["database"] = err.Error()
			healthy = false
		}
		for _, d := range deps {
			checks[d.Name] = "ok"
			if err := d.Ping(ctx); err != nil {
				checks[d.Name] = err.Error()
				healthy = false
			}
		}

		status, code := "healthy", http.StatusOK
		if !healthy {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		return c.JSON(code, map[string]interface{}{
			"status": status,
			"checks": checks,
			"pool":   GetPoolStats(pool),
		})
	}
}
