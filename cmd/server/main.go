package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	redislib "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	echoapi "github.com/mchub-dev/mchub/api/echo"
	redisstore "github.com/mchub-dev/mchub/cache/redis"
	"github.com/mchub-dev/mchub/config"
	"github.com/mchub-dev/mchub/internal/authn"
	"github.com/mchub-dev/mchub/internal/linking"
	"github.com/mchub-dev/mchub/internal/metrics"
	"github.com/mchub-dev/mchub/internal/server"
	"github.com/mchub-dev/mchub/log"
	"github.com/mchub-dev/mchub/mongodb"
	"github.com/mchub-dev/mchub/tracing"
)

var (
	appLogger      log.Logger
	httpServer     *http.Server
	tracerProvider *sdktrace.TracerProvider
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger := zerolog.New(os.Stdout).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
	}
	appLogger = log.NewZerologAdapter(logLevel, cfg.LogPretty)
	appLogger.Info(context.Background(), "Starting mchub-linkd server...")
	appLogger.Info(context.Background(), "Configuration loaded", map[string]interface{}{
		"http_port":     cfg.HTTPPort,
		"mongo_uri":     cfg.MongoURI,
		"mongo_db_name": cfg.MongoDBName,
		"redis_addr":    cfg.RedisAddr,
		"log_level":     cfg.LogLevel,
		"otel_service":  cfg.OtelServiceName,
	})

	tp, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		appLogger.Fatal(context.Background(), "Failed to initialize TracerProvider", err)
	}
	tracerProvider = tp

	ctx := context.Background()

	mongoClient, db, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize MongoDB connection", err)
	}

	accountRepo, err := mongodb.NewAccountRepositoryMongo(ctx, db)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize AccountRepository", err)
	}

	redisClient := redislib.NewClient(&redislib.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		appLogger.Fatal(ctx, "Failed to connect to Redis", err)
	}
	sessionStore := redisstore.NewSessionStore(redisClient, cfg.RedisKeyPrefix)
	authenticator := authn.NewAuthenticator(sessionStore)

	xboxProvider := linking.NewXboxProvider(linking.XboxConfig{
		ClientID:     cfg.XboxClientID,
		ClientSecret: cfg.XboxClientSecret,
		RedirectURI:  cfg.XboxRedirectURI,
		HopTimeout:   cfg.HopTimeout,
	})
	javaProvider := linking.NewJavaProvider(linking.JavaConfig{
		ClientID:     cfg.JavaClientID,
		ClientSecret: cfg.JavaClientSecret,
		RedirectURI:  cfg.JavaRedirectURI,
		HopTimeout:   cfg.HopTimeout,
	})

	linkService := linking.NewService(authenticator, accountRepo, xboxProvider, javaProvider)
	linkAPI := echoapi.NewLinkAPI(linkService)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	httpServer = server.NewHTTPServer(cfg, appLogger, linkAPI, registry)

	go func() {
		appLogger.Info(ctx, "HTTP server listening", map[string]interface{}{"addr": httpServer.Addr})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal(ctx, "HTTP server failed", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info(ctx, "Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown failed", err)
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "TracerProvider shutdown failed", err)
	}
	if err := redisClient.Close(); err != nil {
		appLogger.Error(shutdownCtx, "Redis client close failed", err)
	}
	if err := mongoClient.Disconnect(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "MongoDB disconnect failed", err)
	}
	appLogger.Info(ctx, "Server stopped.")
}
