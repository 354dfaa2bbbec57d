/**
 * @description
 * This is the main entry point for the ledger-service. It is responsible for
 * initializing all components of the service, including configuration,
 * database connection, Redis-backed key and revocation stores, the message
 * broker, repositories, the core application service, background jobs, and
 * the HTTP server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Redis client for keys, revocation, rate limits.
 * - internal/api, internal/app, internal/auth, internal/config, internal/jobs,
 *   internal/secure, internal/store: Internal packages for the service.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/vaultbank/ledger-service/internal/api"
	"github.com/vaultbank/ledger-service/internal/app"
	"github.com/vaultbank/ledger-service/internal/auth"
	"github.com/vaultbank/ledger-service/internal/config"
	"github.com/vaultbank/ledger-service/internal/jobs"
	"github.com/vaultbank/ledger-service/internal/secure"
	"github.com/vaultbank/ledger-service/internal/store"
	"github.com/vaultbank/ledger-service/pkg/rabbitmq"
)

func main() {
	// Load a local .env file if present, then the configuration.
	_ = godotenv.Load()
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting ledger-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Session keys, parked exchange keys, and token revocation live in Redis
	// so every replica sees the same state. Without Redis the service still
	// boots on in-memory stores, which only suit a single instance.
	keyTTL := time.Duration(cfg.KeyTTLMinutes) * time.Minute
	exchangeTTL := time.Duration(cfg.ExchangeTTLSeconds) * time.Second

	var (
		sessionKeys  secure.KeyStore
		pendingKeys  secure.KeyStore
		revocation   auth.RevocationStore
		limiter      app.RateLimiter
		memorySweeps []jobs.MemorySweeper
	)
	redisClient := connectRedis(cfg.RedisURL)
	if redisClient != nil {
		defer redisClient.Close()
		sessionKeys = secure.NewRedisKeyStore(redisClient, cfg.RedisKeyPrefix+":keys", keyTTL)
		pendingKeys = secure.NewRedisKeyStore(redisClient, cfg.RedisKeyPrefix+":exchange", exchangeTTL)
		revocation = auth.NewRedisRevocationStore(redisClient, cfg.RedisKeyPrefix+":revoked")
		limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisKeyPrefix+":rate_limit")
	} else {
		log.Println("level=warn component=bootstrap msg=\"redis unavailable; using in-memory stores, single instance only\"")
		memKeys := secure.NewMemoryKeyStore(keyTTL)
		memPending := secure.NewMemoryKeyStore(exchangeTTL)
		memRevoked := auth.NewMemoryRevocationStore()
		sessionKeys = memKeys
		pendingKeys = memPending
		revocation = memRevoked
		memorySweeps = append(memorySweeps, memKeys, memPending, memRevoked)
	}

	// Initialize the RabbitMQ producer to publish events.
	var producer rabbitmq.Publisher
	eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, cfg.EventExchange)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rabbitmq.EventProducerFallback{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the data access layer and the core application service.
	repository := store.NewPostgresRepository(dbpool)
	tokens := auth.NewTokenManager(
		[]byte(cfg.JWTSecret),
		time.Duration(cfg.JWTTTLMinutes)*time.Minute,
		revocation,
	)
	ledgerService := app.NewService(repository, tokens, producer, limiter, cfg.LoginRateLimitPerMinute)
	exchange := secure.NewExchange(sessionKeys, pendingKeys)

	// Background maintenance: flip stale Pending rows, prune memory stores.
	sweeper := jobs.NewSweeper(
		repository,
		time.Duration(cfg.PendingSweepMinutes)*time.Minute,
		time.Duration(cfg.PendingMaxAgeMinutes)*time.Minute,
		memorySweeps...,
	)
	if err := sweeper.Start(); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"sweeper start failed\" err=%v", err)
	}
	defer sweeper.Stop()

	// Initialize the API handlers and router.
	handlers := api.NewHandlers(ledgerService, exchange, sessionKeys, time.Duration(cfg.JWTTTLMinutes)*time.Minute)
	router := api.Routes(handlers, tokens, sessionKeys, cfg.AllowedOrigins())

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}

// connectRedis parses the URL and verifies connectivity with a short ping.
// Any failure returns nil so the caller can fall back to in-memory stores.
func connectRedis(redisURL string) *redis.Client {
	if strings.TrimSpace(redisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing\" env=REDIS_URL")
		return nil
	}
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis url parse failed\" err=%v", err)
		return nil
	}
	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis ping failed\" err=%v", err)
		client.Close()
		return nil
	}
	log.Println("level=info component=bootstrap msg=\"redis connected\"")
	return client
}
