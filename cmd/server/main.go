package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	echoapi "github.com/pilab-dev/shadow-authz/api/echo"
	"github.com/pilab-dev/shadow-authz/cache"
	"github.com/pilab-dev/shadow-authz/cache/redis"
	"github.com/pilab-dev/shadow-authz/config"
	"github.com/pilab-dev/shadow-authz/internal/metrics"
	applog "github.com/pilab-dev/shadow-authz/log"
	"github.com/pilab-dev/shadow-authz/mongodb"
	"github.com/pilab-dev/shadow-authz/services"
	"github.com/pilab-dev/shadow-authz/tracing"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fallbackLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		fallbackLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
	}
	logger := applog.NewZerologAdapter(logLevel, cfg.LogPretty)

	ctx := context.Background()
	logger.Info(ctx, "starting shadow-authz server", map[string]interface{}{
		"http_port":     cfg.HTTPPort,
		"mongo_db_name": cfg.MongoDBName,
		"log_level":     logLevel.String(),
	})

	metrics.InitCustomMetrics(prometheus.DefaultRegisterer)

	tracerProvider, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		logger.Error(ctx, "failed to initialize tracer provider", err)
		os.Exit(1)
	}

	mongoClient, err := mongodb.Connect(ctx, cfg.MongoURI)
	if err != nil {
		logger.Error(ctx, "failed to connect to mongodb", err)
		os.Exit(1)
	}
	db := mongoClient.Database(cfg.MongoDBName)
	if err := mongodb.EnsureIndexes(ctx, db); err != nil {
		logger.Error(ctx, "failed to ensure indexes", err)
		os.Exit(1)
	}

	grantRepo := mongodb.NewGrantRepository(db)
	tokenRepo := mongodb.NewTokenRepository(db)
	appRepo := mongodb.NewApplicationRepository(db)

	var tokenStore cache.TokenStore
	if cfg.RedisAddr != "" {
		redisClient := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		tokenStore = redis.NewTokenStore(redisClient, cfg.RedisPrefix)
		logger.Info(ctx, "using redis token cache", map[string]interface{}{"addr": cfg.RedisAddr})
	} else {
		tokenStore = cache.NewMemoryTokenStore(time.Minute)
		logger.Info(ctx, "using in-memory token cache")
	}

	signerOpts := []services.TokenSignerOption{
		services.WithHMACSecret([]byte(cfg.HMACSecretKey)),
	}
	if cfg.RSAPrivateKeyPEM != "" {
		rsaOpt, err := services.WithRSAKeyPEM([]byte(cfg.RSAPrivateKeyPEM), cfg.RSAKeyID)
		if err != nil {
			logger.Error(ctx, "failed to parse RSA signing key", err)
			os.Exit(1)
		}
		signerOpts = append(signerOpts, rsaOpt)
	}
	signer := services.NewTokenSigner(signerOpts...)

	grantSvc := services.NewGrantService(grantRepo, tokenRepo,
		services.NewResourceEnforcer(), signer,
		services.GrantServiceConfig{
			Issuer:                  cfg.Issuer,
			GrantTTL:                cfg.GrantTTL(),
			AccessTokenTTL:          cfg.AccessTokenTTL(),
			RefreshTokenTTL:         cfg.RefreshTokenTTL(),
			IDTokenTTL:              cfg.IDTokenTTL(),
			RotateRefreshTokens:     cfg.RotateRefreshTokens,
			RevokeOldTokensOnReauth: cfg.RevokeOldTokensOnReauth,
		}, logger, services.WithRevocationCache(tokenStore))

	bearerOpts := []services.BearerServiceOption{services.WithTokenStore(tokenStore)}
	if !cfg.ResourceValidation {
		bearerOpts = append(bearerOpts, services.WithoutAudienceValidation())
		logger.Warn(ctx, "resource audience validation is disabled by configuration")
	}
	bearerSvc := services.NewBearerService(tokenRepo, logger, bearerOpts...)

	backchannelSvc := services.NewBackchannelService(tokenRepo, appRepo, signer,
		services.NewHTTPLogoutDeliverer(cfg.BackchannelTimeout()), cfg.Issuer, logger)

	api := echoapi.NewOAuth2API(grantSvc, services.NewClientService(appRepo),
		bearerSvc, backchannelSvc, nil, logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	api.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", func(c echo.Context) error {
		if err := mongodb.Ping(c.Request().Context(), mongoClient); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unhealthy"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	// Periodic cleanup of expired grants and tokens.
	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := grantRepo.DeleteExpiredGrants(cleanupCtx); err != nil {
					logger.Error(cleanupCtx, "expired grant cleanup failed", err)
				}
				if err := tokenRepo.DeleteExpiredTokens(cleanupCtx); err != nil {
					logger.Error(cleanupCtx, "expired token cleanup failed", err)
				}
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info(ctx, "HTTP server listening", map[string]interface{}{"port": cfg.HTTPPort})
		if err := e.Start(":" + cfg.HTTPPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "HTTP server failed", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info(ctx, "shutting down", map[string]interface{}{"signal": sig.String()})

	stopCleanup()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "HTTP server shutdown error", err)
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "tracer provider shutdown error", err)
	}
	if err := mongoClient.Disconnect(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "mongodb disconnect error", err)
	}

	logger.Info(shutdownCtx, "server stopped")
}
