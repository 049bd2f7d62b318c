package main

import (
	"context"
	crypto_rand "crypto/rand"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/arogyalink/hms/internal/config"
	"github.com/arogyalink/hms/internal/domain/admission"
	"github.com/arogyalink/hms/internal/domain/billing"
	"github.com/arogyalink/hms/internal/domain/hospital"
	"github.com/arogyalink/hms/internal/domain/opd"
	"github.com/arogyalink/hms/internal/domain/ward"
	"github.com/arogyalink/hms/internal/platform/auth"
	"github.com/arogyalink/hms/internal/platform/db"
	"github.com/arogyalink/hms/internal/platform/kv"
	"github.com/arogyalink/hms/internal/platform/metrics"
	"github.com/arogyalink/hms/internal/platform/middleware"
	"github.com/arogyalink/hms/internal/platform/notification"
	"github.com/arogyalink/hms/internal/platform/otp"
	"github.com/arogyalink/hms/internal/platform/scheduler"
	"github.com/arogyalink/hms/internal/platform/validation"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hms-server",
		Short: "Hospital management API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(maintainCmd())
	rootCmd.AddCommand(hospitalCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

// maintainCmd runs one slot maintenance sweep and exits, for cron-driven
// deployments that disable the in-process scheduler.
func maintainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "maintain",
		Short: "Prune past OPD slots and fill the booking window once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, closeLog := newLogger(cfg)
			defer closeLog()

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			app := buildServices(pool, cfg, logger, notification.LogSender{Logger: logger}, nil)
			defer app.dispatcher.Close()

			report, err := app.opd.Maintain(ctx, time.Now())
			if report != nil {
				fmt.Printf("Doctors: %d, slots deleted: %d, slots created: %d\n", report.Doctors, report.Deleted, report.Created)
			}
			return err
		},
	}
}

func hospitalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hospital",
		Short: "Manage hospitals",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new hospital",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			start, _ := cmd.Flags().GetString("opd-start")
			end, _ := cmd.Flags().GetString("opd-end")
			fee, _ := cmd.Flags().GetFloat64("admission-fee")
			upi, _ := cmd.Flags().GetString("upi-id")
			if name == "" || email == "" {
				return fmt.Errorf("--name and --email are required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := hospital.NewService(
				hospital.NewHospitalRepoPG(pool),
				hospital.NewDoctorRepoPG(pool),
				ward.NewService(ward.NewPartitionRepoPG(pool), db.NewTransactor(pool), zerolog.Nop()),
			)
			h := &hospital.Hospital{
				Name:         name,
				Email:        email,
				OPDStartTime: start,
				OPDEndTime:   end,
				AdmissionFee: fee,
			}
			if upi != "" {
				h.UPIID = &upi
			}
			if err := svc.CreateHospital(ctx, h); err != nil {
				return err
			}
			fmt.Printf("Hospital created: %s\n", h.ID)
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Hospital name")
	createCmd.Flags().String("email", "", "Contact email")
	createCmd.Flags().String("opd-start", "09:00", "OPD start time")
	createCmd.Flags().String("opd-end", "17:00", "OPD end time")
	createCmd.Flags().Float64("admission-fee", 0, "Flat admission fee")
	createCmd.Flags().String("upi-id", "", "UPI id for bill payments")

	cmd.AddCommand(createCmd)
	return cmd
}

// tokenCmd issues a signed access token. Identity management lives outside
// this service; the command covers operators and local testing.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			hospitalID, _ := cmd.Flags().GetString("hospital")
			roles, _ := cmd.Flags().GetStringSlice("roles")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if _, err := uuid.Parse(subject); err != nil {
				return fmt.Errorf("--subject must be a UUID: %w", err)
			}
			if hospitalID != "" {
				if _, err := uuid.Parse(hospitalID); err != nil {
					return fmt.Errorf("--hospital must be a UUID: %w", err)
				}
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is required to issue tokens")
			}
			token, err := auth.IssueToken(auth.JWTConfig{
				Issuer:     cfg.JWTIssuer,
				SigningKey: []byte(cfg.JWTSecret),
			}, subject, hospitalID, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().String("subject", "", "User id (UUID)")
	cmd.Flags().String("hospital", "", "Hospital id for admins and doctors")
	cmd.Flags().StringSlice("roles", []string{auth.RolePatient}, "Roles: admin, doctor, patient")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Logger
	logger, closeLog := newLogger(cfg)
	defer closeLog()

	signingKey, random, err := resolveSigningKey(cfg.JWTSecret)
	if err != nil {
		return err
	}
	if random {
		logger.Warn().Msg("JWT_SECRET not set, using a random signing key; tokens will not survive a restart")
	}

	// Database
	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Key-value store for OTP codes
	var store kv.Store
	var deps []db.Dependency
	if cfg.RedisURL != "" {
		rdb, err := kv.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		redisStore := kv.NewRedisStore(rdb)
		store = redisStore
		deps = append(deps, db.Dependency{Name: "redis", Ping: redisStore.Ping})
		logger.Info().Msg("connected to redis")
	} else {
		store = kv.NewMemory()
		logger.Warn().Msg("REDIS_URL not set, OTP codes are kept in memory")
	}

	// Email
	var sender notification.EmailSender = notification.LogSender{Logger: logger}
	if cfg.EmailEnabled() {
		smtp, err := notification.NewSMTPSender(notification.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure smtp")
		}
		sender = smtp
	}

	m := metrics.New()
	app := buildServices(pool, cfg, logger, sender, m)
	defer app.dispatcher.Close()

	// Echo server
	e := newEcho(cfg, logger, m)
	e.GET("/health", db.HealthHandler(pool, deps...))
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	api := e.Group("/api/v1")
	otp.NewHandler(otp.NewService(store, app.dispatcher, cfg.OTPTTL)).RegisterRoutes(api)

	protected := api.Group("", authMiddleware(cfg, signingKey), db.TenantMiddleware(cfg.IsDev()), middleware.Audit(logger))
	hospital.NewHandler(app.hospital).RegisterRoutes(protected)
	ward.NewHandler(app.ward).RegisterRoutes(protected)
	admission.NewHandler(app.admission).RegisterRoutes(protected)
	opd.NewHandler(app.opd).RegisterRoutes(protected)
	billing.NewHandler(app.billing).RegisterRoutes(protected)

	// Background slot maintenance
	if cfg.MaintenanceEnabled {
		sched, err := scheduler.New(logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create scheduler")
		}
		err = sched.Every("opd-slot-maintenance", cfg.MaintenanceEvery, func(ctx context.Context) error {
			_, err := app.opd.Maintain(ctx, time.Now())
			return err
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to schedule slot maintenance")
		}
		sched.Start()
		defer func() {
			if err := sched.Shutdown(); err != nil {
				logger.Error().Err(err).Msg("scheduler shutdown failed")
			}
		}()
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newEcho builds the server with the global middleware chain. Routes are
// added by the caller.
func newEcho(cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New(cfg.PhoneRegion)
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	if m != nil {
		e.Use(m.Middleware())
	}
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, db.HospitalHeader},
	}))
	e.Use(middleware.RateLimit(rateLimitCfg))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	return e
}

func authMiddleware(cfg *config.Config, signingKey []byte) echo.MiddlewareFunc {
	jwtCfg := auth.JWTConfig{Issuer: cfg.JWTIssuer, SigningKey: signingKey}
	if cfg.IsDev() {
		return auth.DevAuthMiddleware(jwtCfg)
	}
	return auth.JWTMiddleware(jwtCfg)
}

// services holds the wired domain services. The ward ledger backs both the
// hospital setup check and admissions; admissions and OPD appointments feed
// billing.
type services struct {
	hospital   *hospital.Service
	ward       *ward.Service
	admission  *admission.Service
	opd        *opd.Service
	billing    *billing.Service
	dispatcher *notification.Dispatcher
}

func buildServices(pool *pgxpool.Pool, cfg *config.Config, logger zerolog.Logger, sender notification.EmailSender, m *metrics.Metrics) *services {
	tx := db.NewTransactor(pool)
	dispatcher := notification.NewDispatcher(notification.NewTemplateEngine(), sender, logger, notification.DispatcherOptions{
		QueueSize: cfg.NotifyQueueSize,
	})

	wardSvc := ward.NewService(ward.NewPartitionRepoPG(pool), tx, logger)
	hospitalSvc := hospital.NewService(
		hospital.NewHospitalRepoPG(pool),
		hospital.NewDoctorRepoPG(pool),
		wardSvc,
	)
	admissionSvc := admission.NewService(
		admission.NewAdmissionRepoPG(pool),
		admission.NewTreatmentRepoPG(pool),
		wardSvc, hospitalSvc, tx, dispatcher, logger,
	)
	appointments := opd.NewAppointmentRepoPG(pool)
	opdSvc := opd.NewService(
		opd.NewSlotRepoPG(pool),
		appointments,
		opd.NewPrescriptionRepoPG(pool),
		hospitalSvc, tx, dispatcher, logger,
	)
	billingSvc := billing.NewService(
		billing.NewBillRepoPG(pool),
		appointments, admissionSvc, hospitalSvc, tx,
		billing.NewTextRenderer(), dispatcher, logger,
	)
	if m != nil {
		wardSvc.WithObserver(m)
		opdSvc.WithObserver(m)
		billingSvc.WithObserver(m)
	}

	return &services{
		hospital:   hospitalSvc,
		ward:       wardSvc,
		admission:  admissionSvc,
		opd:        opdSvc,
		billing:    billingSvc,
		dispatcher: dispatcher,
	}
}

// newLogger writes JSON to stdout, or console output in development, and
// additionally to a size-rotated file when LOG_FILE is set.
func newLogger(cfg *config.Config) (zerolog.Logger, func()) {
	var out io.Writer = os.Stdout
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	closeFn := func() {}
	if cfg.LogFile != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
		out = io.MultiWriter(out, file)
		closeFn = func() { _ = file.Close() }
	}

	logger := zerolog.New(out).With().Timestamp().Logger().Level(parseLevel(cfg.LogLevel))
	return logger, closeFn
}

func parseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// resolveSigningKey returns the configured JWT secret, or a random 32-byte
// key when none is set. The second return value is true when a random key
// was generated.
func resolveSigningKey(secret string) ([]byte, bool, error) {
	if secret != "" {
		return []byte(secret), false, nil
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random signing key: %w", err)
	}
	return key, true, nil
}
