package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	c "github.com/fjod/go_cart/internal/cart/cache"
	"github.com/fjod/go_cart/internal/cart/consumer"
	cartrepo "github.com/fjod/go_cart/internal/cart/repository"
	cartservice "github.com/fjod/go_cart/internal/cart/service"
	"github.com/fjod/go_cart/internal/checkout/publisher"
	checkoutrepo "github.com/fjod/go_cart/internal/checkout/repository"
	checkoutservice "github.com/fjod/go_cart/internal/checkout/service"
	h "github.com/fjod/go_cart/internal/http"
	"github.com/fjod/go_cart/pkg/logger"
)

type Config struct {
	Env      string
	LogLevel string

	HTTPPort           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64

	MongoURI    string
	MongoDBName string
	RedisAddr   string
	RedisPass   string
	CartTTL     time.Duration

	// in-memory sessions idle this long are dropped; defaults to the cart cache TTL
	SessionIdleTimeout time.Duration

	Postgres checkoutrepo.Credentials

	KafkaBrokers []string
	InstanceID   string

	CollaboratorTimeout time.Duration
}

func loadConfig() *Config {
	return &Config{
		Env:                getEnv("APP_ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		RequestTimeout:     getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxRequestBodySize: 1 << 20, // 1MB
		MongoURI:           getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:        getEnv("MONGO_DB_NAME", "cartdb"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:          getEnv("REDIS_PASSWORD", ""),
		CartTTL:            getEnvDuration("CART_CACHE_TTL", 15*time.Minute),
		SessionIdleTimeout: getEnvDuration("SESSION_IDLE_TIMEOUT", getEnvDuration("CART_CACHE_TTL", 15*time.Minute)),
		Postgres: checkoutrepo.Credentials{
			Host:              getEnv("POSTGRES_HOST", "localhost"),
			Port:              getEnvInt("POSTGRES_PORT", 5432),
			User:              getEnv("POSTGRES_USER", "postgres"),
			Password:          getEnv("POSTGRES_PASSWORD", "postgres"),
			DBName:            getEnv("POSTGRES_DB", "checkout"),
			MigrationsDirPath: getEnv("MIGRATIONS_DIR", "internal/checkout/repository/migrations"),
		},
		KafkaBrokers:        strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		InstanceID:          getEnv("INSTANCE_ID", hostname()),
		CollaboratorTimeout: getEnvDuration("COLLABORATOR_TIMEOUT", 5*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func hostname() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "local"
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()
	cfg := loadConfig()

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Cart partition
	mongoDB, err := cartrepo.ConnectMongoDB(ctx, cartrepo.MongoConfig{URI: cfg.MongoURI, Database: cfg.MongoDBName})
	if err != nil {
		log.Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	defer func() { _ = mongoDB.Client().Disconnect(context.Background()) }()
	log.Info("connected to MongoDB", zap.String("database", cfg.MongoDBName))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}

	// Checkout partition, orders and outbox
	checkoutRepo, err := checkoutrepo.NewRepository(&cfg.Postgres)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer checkoutRepo.Close()
	if err := checkoutRepo.RunMigrations(&cfg.Postgres); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}
	log.Info("connected to postgres", zap.String("database", cfg.Postgres.DBName))

	carts := cartservice.NewCartService(
		cartrepo.NewMongoRepository(mongoDB),
		c.NewRedisCache(redisClient, cfg.CartTTL),
		log.Named("cart"),
		cartservice.WithIdleTimeout(cfg.SessionIdleTimeout))

	checkout := checkoutservice.NewCheckoutService(
		checkoutRepo,
		checkoutservice.NewCartHandler(carts, cfg.CollaboratorTimeout),
		checkoutservice.NewSubmitHandler(
			checkoutservice.NewRepositorySubmitter(checkoutRepo, log.Named("orders")),
			cfg.CollaboratorTimeout,
			log.Named("orders")),
		log.Named("checkout"),
		checkoutservice.WithIdleTimeout(cfg.SessionIdleTimeout))

	go carts.RunEviction(ctx, time.Minute)
	go checkout.RunEviction(ctx, time.Minute)

	poller := publisher.NewOutboxPoller(checkoutRepo, publisher.NewKafkaWriter(cfg.KafkaBrokers...), log)
	defer poller.Close()
	go poller.Run(ctx)

	// every instance drops its copy of a session once any instance placed its order
	orders := consumer.NewConsumer(
		consumer.NewKafkaReader("storefront-"+cfg.InstanceID, cfg.KafkaBrokers...),
		log, carts, checkout)
	defer orders.Close()
	go orders.Run(ctx)

	router := h.NewRouter(h.RouterConfig{
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
	},
		h.NewCartHandler(carts, cfg.RequestTimeout),
		h.NewCheckoutHandler(checkout, cfg.RequestTimeout),
		log.Named("http"))

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "storefront"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("storefront starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	<-ctx.Done()

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}
