package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/smartqueue/smartqueue/internal/config"
	"github.com/smartqueue/smartqueue/internal/domain/analytics"
	"github.com/smartqueue/smartqueue/internal/domain/directory"
	"github.com/smartqueue/smartqueue/internal/domain/labs"
	"github.com/smartqueue/smartqueue/internal/domain/queueing"
	"github.com/smartqueue/smartqueue/internal/maintenance"
	"github.com/smartqueue/smartqueue/internal/platform/auth"
	"github.com/smartqueue/smartqueue/internal/platform/db"
	"github.com/smartqueue/smartqueue/internal/platform/middleware"
	"github.com/smartqueue/smartqueue/internal/platform/notification"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "smartqueue-server",
		Short: "Hospital patient-flow API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(maintainCmd())

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

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
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
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func maintainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "maintain",
		Short: "Run one maintenance sweep and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			app := buildApp(cfg, pool, logger)
			report := app.sweeper.Run(ctx)

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			if report.Failed() {
				return fmt.Errorf("sweep finished with failed steps")
			}
			return nil
		},
	}
}

// app holds the wired services shared by the serve and maintain
// commands.
type app struct {
	directory *directory.Service
	queueing  *queueing.Service
	labs      *labs.Service
	analytics *analytics.Service
	sweeper   *maintenance.Sweeper
}

func buildApp(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) *app {
	dirRepo := directory.NewRepositoryPG(pool)
	dirSvc := directory.NewService(dirRepo, logger)

	notifier := notification.NewService(notification.NewRepoPG(pool))

	txRunner := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}
	queueRepo := queueing.NewRepositoryPG(pool)
	queueSvc := queueing.NewService(queueRepo, dirSvc, notifier, txRunner, queuePolicy(cfg), logger)

	labRepo := labs.NewRepositoryPG(pool)
	labSvc := labs.NewService(labRepo, dirSvc, queueSvc, notifier, labPolicy(cfg), logger)

	analyticsSvc := analytics.NewService(analytics.NewRepositoryPG(pool), queueRepo, labRepo, dirRepo, logger)

	sweeper := maintenance.NewSweeper(queueSvc, labSvc, analyticsSvc, dirRepo, logger)

	return &app{
		directory: dirSvc,
		queueing:  queueSvc,
		labs:      labSvc,
		analytics: analyticsSvc,
		sweeper:   sweeper,
	}
}

func queuePolicy(cfg *config.Config) queueing.Policy {
	return queueing.Policy{
		NoShowGrace:          time.Duration(cfg.NoShowGraceMinutes) * time.Minute,
		LoadBalanceThreshold: cfg.LoadBalanceThreshold,
		LoadBalanceBatch:     cfg.LoadBalanceBatch,
		TierWeights: map[directory.Tier]float64{
			directory.TierEmergency:   cfg.WaitWeightEmergency,
			directory.TierAppointment: cfg.WaitWeightAppointment,
			directory.TierWalkIn:      cfg.WaitWeightWalkIn,
		},
	}
}

func labPolicy(cfg *config.Config) labs.Policy {
	p := labs.DefaultPolicy()
	p.UrgentLead = time.Duration(cfg.UrgentLeadHours) * time.Hour
	p.RoutineLead = time.Duration(cfg.RoutineLeadHours) * time.Hour
	p.ConflictWindow = time.Duration(cfg.ConflictWindowMinutes) * time.Minute
	return p
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(cfg.JWTSecret))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	app := buildApp(cfg, pool, logger)

	apiV1 := e.Group("/api/v1")
	directory.NewHandler(app.directory).RegisterRoutes(apiV1)
	queueing.NewHandler(app.queueing).RegisterRoutes(apiV1)
	labs.NewHandler(app.labs).RegisterRoutes(apiV1)
	analytics.NewHandler(app.analytics).RegisterRoutes(apiV1)
	maintenance.NewHandler(app.sweeper).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
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
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
