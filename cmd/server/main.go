package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/coldpost/coldpost/internal/api"
	"github.com/coldpost/coldpost/internal/auth"
	"github.com/coldpost/coldpost/internal/config"
	"github.com/coldpost/coldpost/internal/crypto"
	"github.com/coldpost/coldpost/internal/pkg/logger"
	"github.com/coldpost/coldpost/internal/queue"
	"github.com/coldpost/coldpost/internal/service/account"
	"github.com/coldpost/coldpost/internal/service/campaign"
	"github.com/coldpost/coldpost/internal/service/template"
	"github.com/coldpost/coldpost/internal/service/user"
	"github.com/coldpost/coldpost/internal/smtppool"
	"github.com/coldpost/coldpost/internal/store"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.RedactPII != nil {
		logger.SetRedactPII(*cfg.Logging.RedactPII)
	}

	if cfg.JWT.Secret == "" {
		log.Fatal("JWT_SECRET is required")
	}
	cipher, err := crypto.New(cfg.Encryption.Key)
	if err != nil {
		log.Fatalf("encryption key: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Database.URL,
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns,
		time.Duration(cfg.Database.ConnMaxLifeMins)*time.Minute)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	rdb, err := openRedis(ctx, cfg.Redis.URL)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	q := queue.New(rdb, time.Duration(cfg.Sending.RetryBackoffMs)*time.Millisecond)
	pool := smtppool.New(cfg.SMTPPool)
	defer pool.ShutdownAll()

	tokens := auth.NewTokens(cfg.JWT)
	deps := api.Deps{
		Users:     user.NewService(st, tokens),
		Accounts:  account.NewService(st, pool, cipher, cfg.Sending.DefaultDailyLimit),
		Templates: template.NewService(st),
		Campaigns: campaign.NewService(st, campaign.QueueJobs{Q: q}),
		Pool:      pool,
		Tokens:    tokens,
	}

	server := api.NewServer(cfg.Server, deps)
	logger.Info("server starting", "host", cfg.Server.GetHost(), "port", cfg.Server.Port)
	if err := server.Start(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
	logger.Info("server stopped")
}

// openRedis parses the configured URL (falling back to treating it as a bare
// address) and verifies connectivity before handing the client out.
func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	var client *redis.Client
	opts, err := redis.ParseURL(url)
	if err != nil {
		client = redis.NewClient(&redis.Options{Addr: url})
	} else {
		client = redis.NewClient(opts)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
