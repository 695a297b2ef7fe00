package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/hotel-room-holds/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/hotel-room-holds/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/hotel-room-holds/internal/adapters/redis"
	"github.com/robertarktes/hotel-room-holds/internal/config"
	httphandler "github.com/robertarktes/hotel-room-holds/internal/http"
	"github.com/robertarktes/hotel-room-holds/internal/idempotency"
	"github.com/robertarktes/hotel-room-holds/internal/inventory"
	"github.com/robertarktes/hotel-room-holds/internal/observability"
	"github.com/robertarktes/hotel-room-holds/internal/rateLimit"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoPinger struct{ client *mongo.Client }

func (p mongoPinger) Ping(ctx context.Context) error { return p.client.Ping(ctx, nil) }

type redisPinger struct{ client *redisclient.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.client.Ping(ctx).Err() }

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg, "hotel-api")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	publicKey, err := httphandler.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("failed to parse JWT_PUBLIC_KEY: %v", err)
	}

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	crdbRepo := crdb.NewRepository(pool)
	if err := crdbRepo.Migrate(context.Background()); err != nil {
		log.Fatalf("failed to migrate crdb: %v", err)
	}

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoCatalog := mongoadapter.NewCatalogRepository(mongoClient.Database(cfg.MongoDB), logger)
	if err := mongoCatalog.EnsureIndexes(context.Background()); err != nil {
		logger.WithError(err).Warn("failed to ensure catalog indexes")
	}

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), 24*time.Hour)
	rl := rateLimit.NewRateLimiter(redisCache)

	svc := inventory.NewService(crdbRepo, redisCache, mongoCatalog, logger)

	audit := mongoadapter.NewAuditLogger(mongoClient.Database(cfg.MongoDB), logger)

	handlers := httphandler.NewHandlers(svc, logger, map[string]httphandler.Pinger{
		"crdb":  crdbRepo,
		"mongo": mongoPinger{mongoClient},
		"redis": redisPinger{redisClient},
	},
		httphandler.WithVouchers(mongoCatalog),
		httphandler.WithAuditTrail(audit),
	)

	r := httphandler.SetupRouter(handlers, logger, publicKey, rl, idemp)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
