package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/healthlink/healthlink-api/internal/config"
	"github.com/healthlink/healthlink-api/internal/domain"
	"github.com/healthlink/healthlink-api/internal/handler"
	"github.com/healthlink/healthlink-api/internal/repository"
	"github.com/healthlink/healthlink-api/internal/service"
	"github.com/healthlink/healthlink-api/internal/utils"
	"github.com/healthlink/healthlink-api/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	infra  Infrastructure
	config *config.Config
	router *gin.Engine
	server *http.Server
}

// NewApp assembles the repositories, services and HTTP surface.
func NewApp(infra Infrastructure, cfg *config.Config) (*App, error) {
	repos := repository.NewRepositories(infra.Postgres())

	jwtManager, err := utils.NewJWTManager(cfg.JWT)
	if err != nil {
		return nil, fmt.Errorf("failed to create jwt manager: %w", err)
	}

	ledger := service.NewRefreshTokenLedger(repos.Token, jwtManager)
	securityTokens := service.NewSecurityTokenService(infra.Redis())
	notifier := service.NewLogNotifier(infra.Logger())
	rateLimiter := service.NewRateLimiter(infra.Redis())
	healthChecker := NewHealthChecker(infra)

	authService := service.NewAuthService(
		repos.User,
		ledger,
		jwtManager,
		securityTokens,
		notifier,
		infra.Logger(),
		service.SecurityPolicy{
			BCryptCost:       cfg.Security.BCryptCost,
			RefreshTokenTTL:  cfg.JWT.RefreshTokenExpiry.Duration,
			LockoutMaxFailed: cfg.Security.LockoutMaxFailed,
			LockoutWindow:    cfg.Security.LockoutWindow.Duration,
			ResetTokenTTL:    cfg.Security.ResetTokenTTL.Duration,
			ConfirmTokenTTL:  cfg.Security.ConfirmTokenTTL.Duration,
		},
	)

	authHandler := handler.NewAuthHandler(authService)

	router := gin.Default()
	router.Use(otelgin.Middleware("healthlink-api"))
	router.Use(handler.LoggerMiddleware(infra.Logger()))
	router.Use(handler.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders))

	setupRoutes(router, cfg, infra.Logger(), authHandler, authService, rateLimiter, healthChecker, infra.MetricsHandler())

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	return &App{
		infra:  infra,
		config: cfg,
		router: router,
		server: srv,
	}, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	logger *zap.Logger,
	authHandler *handler.AuthHandler,
	authService service.AuthService,
	rateLimiter *service.RateLimiter,
	healthChecker *HealthChecker,
	metricsHandler http.Handler,
) {
	router.GET("/metrics", observability.PrometheusHandler(metricsHandler))
	router.GET("/health", healthChecker.Handler)

	throttled := handler.RateLimitMiddleware(
		rateLimiter,
		logger,
		cfg.Security.RateLimitRequests,
		cfg.Security.RateLimitWindow.Duration,
		handler.IPBasedKey,
	)

	api := router.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", throttled, authHandler.Register)
			auth.POST("/login", throttled, authHandler.Login)
			auth.POST("/refresh-token", authHandler.Refresh)
			auth.POST("/revoke-token", authHandler.Revoke)
			auth.POST("/forgot-password", throttled, authHandler.ForgotPassword)
			auth.POST("/reset-password", throttled, authHandler.ResetPassword)
			auth.POST("/confirm-email", authHandler.ConfirmEmail)
			auth.POST("/change-password", handler.AuthMiddleware(authService), authHandler.ChangePassword)
			auth.GET("/me", handler.AuthMiddleware(authService), authHandler.GetMe)
			auth.GET("/users/:id",
				handler.AuthMiddleware(authService),
				handler.RequireRoles(domain.RoleSystemAdmin),
				authHandler.GetUser)
		}
	}
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		a.infra.Logger().Info("Application starting",
			zap.String("host", a.config.Server.Host),
			zap.String("port", a.config.Server.Port),
		)

		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.infra.Logger().Error("Server error", zap.Error(err))
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case err := <-errChan:
		a.infra.Logger().Error("Application failed to start", zap.Error(err))
		serverErr = err
	case <-ctx.Done():
		a.infra.Logger().Info("Application stopped by context")
	}

	if err := a.Shutdown(); err != nil {
		a.infra.Logger().Error("Shutdown error", zap.Error(err))
		if serverErr != nil {
			return errors.Join(serverErr, err)
		}
		return err
	}

	return serverErr
}

func (a *App) Shutdown() error {
	a.infra.Logger().Info("Application shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	errs := make(chan error, 2)

	go func() {
		errs <- a.server.Shutdown(ctx)
	}()

	go func() {
		errs <- a.infra.Shutdown(ctx)
	}()

	err := errors.Join(<-errs, <-errs)
	if err != nil {
		a.infra.Logger().Error("Shutdown failed", zap.Error(err))
		return err
	}

	a.infra.Logger().Info("Application exited successfully")
	return nil
}
