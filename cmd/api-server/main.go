package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"unilib/database"
	"unilib/internal/config"
	"unilib/internal/handler"
	"unilib/internal/middleware"
	"unilib/internal/models"
	"unilib/internal/repository"
	"unilib/internal/service"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	db, err := database.ConnectDB(cfg, logger)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// Rate-limit counters live in redis so replicas share one window.
	// If redis is unreachable we degrade to per-process counters.
	windowStore := newWindowStore(cfg, logger)

	// repositories
	userRepo := repository.NewUserRepository(db)
	refreshTokenRepo := repository.NewRefreshTokenRepository(db)
	bookRepo := repository.NewBookRepo(db)
	authorRepo := repository.NewAuthorRepo(db)
	categoryRepo := repository.NewCategoryRepo(db)
	copyRepo := repository.NewCopyRepo(db)
	reservationRepo := repository.NewReservationRepository(db)
	loanRepo := repository.NewLoanRepository(db)
	fineRepo := repository.NewFineRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	apiKeyRepo := repository.NewAPIKeyRepository(db)

	// services
	authSvc := service.NewAuthService(userRepo, refreshTokenRepo, cfg)
	notificationSvc := service.NewNotificationService(notificationRepo)
	reservationSvc := service.NewReservationService(
		reservationRepo, copyRepo, userRepo, notificationSvc,
		cfg.PickupHoldWindow, logger,
	)
	bookSvc := service.NewBookService(bookRepo, copyRepo, reservationRepo)
	fineSvc := service.NewFineService(fineRepo, cfg.FinePerDay, cfg.FineCap)
	loanSvc := service.NewLoanService(
		loanRepo, copyRepo, userRepo, reservationSvc, fineSvc, notificationSvc,
		cfg.LoanPeriod, cfg.MaxActiveLoans, logger,
	)

	// handlers
	authHandler := handler.NewAuthHandler(authSvc, cfg.AccessTokenTTL)
	bookHandler := handler.NewBookHandler(bookSvc)
	authorHandler := handler.NewAuthorHandler(authorRepo)
	categoryHandler := handler.NewCategoryHandler(categoryRepo)
	reservationHandler := handler.NewReservationHandler(reservationSvc)
	loanHandler := handler.NewLoanHandler(loanSvc)
	fineHandler := handler.NewFineHandler(fineSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.RateLimitMiddleware(windowStore, cfg.RateLimitRequests, cfg.RateLimitWindow))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	authHandler.RegisterRoutes(api.Group("/auth"))
	bookHandler.RegisterRoutes(api.Group("/books"))

	authed := api.Group("")
	authed.Use(middleware.AuthMiddleware(authSvc))
	reservationHandler.RegisterRoutes(authed.Group("/reservations"))
	loanHandler.RegisterRoutes(authed.Group("/loans"))
	fineHandler.RegisterRoutes(authed.Group("/fines"))
	notificationHandler.RegisterRoutes(authed.Group("/notifications"))
	authorHandler.RegisterRoutes(authed.Group("/authors"))
	categoryHandler.RegisterRoutes(authed.Group("/categories"))

	staff := api.Group("/admin")
	staff.Use(middleware.AuthMiddleware(authSvc))
	staff.Use(middleware.RequireRole(models.RoleLibrarian, models.RoleAdmin))
	bookHandler.RegisterAdminRoutes(staff.Group("/books"))
	reservationHandler.RegisterAdminRoutes(staff.Group("/reservations"))
	loanHandler.RegisterDeskRoutes(staff.Group("/loans"))
	fineHandler.RegisterDeskRoutes(staff.Group("/fines"))

	// machine-to-machine surface (kiosks, sorting machines)
	internalAPI := api.Group("/internal")
	internalAPI.Use(middleware.APIKeyMiddleware(apiKeyRepo))
	reservationHandler.RegisterServiceRoutes(internalAPI.Group("/reservations"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go runMaintenanceLoop(ctx, reservationSvc, loanSvc, cfg.SweepInterval, logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: r,
	}

	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
	}
}

// runMaintenanceLoop expires overdue pickup holds and flags overdue
// loans on a fixed interval until ctx is cancelled.
func runMaintenanceLoop(
	ctx context.Context,
	reservations service.ReservationService,
	loans service.LoanService,
	interval time.Duration,
	logger *slog.Logger,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			report, err := reservations.Sweep(ctx, now)
			if err != nil {
				logger.Error("reservation sweep failed", "error", err)
			} else if report.Scanned > 0 {
				logger.Info("reservation sweep",
					"scanned", report.Scanned,
					"expired", report.Expired,
					"promoted", report.Promoted,
					"failed", len(report.Failed),
				)
			}

			flagged, err := loans.FlagOverdue(ctx, now)
			if err != nil {
				logger.Error("overdue flagging failed", "error", err)
			} else if flagged > 0 {
				logger.Info("loans flagged overdue", "count", flagged)
			}
		}
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func newWindowStore(cfg *config.Config, logger *slog.Logger) middleware.WindowStore {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("invalid redis url, using in-memory rate limiting", "error", err)
		return middleware.NewMemoryWindowStore()
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, using in-memory rate limiting", "error", err)
		return middleware.NewMemoryWindowStore()
	}
	return middleware.NewRedisWindowStore(client)
}
