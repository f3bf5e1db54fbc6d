package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/coldpost/coldpost/internal/config"
	"github.com/coldpost/coldpost/internal/crypto"
	"github.com/coldpost/coldpost/internal/pkg/distlock"
	"github.com/coldpost/coldpost/internal/pkg/logger"
	"github.com/coldpost/coldpost/internal/queue"
	"github.com/coldpost/coldpost/internal/render"
	"github.com/coldpost/coldpost/internal/scheduler"
	"github.com/coldpost/coldpost/internal/sender"
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

	rdb, err := openRedis(ctx, cfg.Redis.URL)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	q := queue.New(rdb, time.Duration(cfg.Sending.RetryBackoffMs)*time.Millisecond)
	pool := smtppool.New(cfg.SMTPPool)
	defer pool.ShutdownAll()

	sched := scheduler.New(st, q, cfg.Sending)
	snd := sender.New(st, pool, q, render.New(), cipher, cfg.Sending)

	// One sweep across all worker replicas at a time.
	lock := distlock.NewLock(rdb, st.DB(), "coldpost:sweep", 55*time.Second)
	cron, err := sched.StartSweep(ctx, cfg.Workers.SweepSpec, lock)
	if err != nil {
		log.Fatalf("sweep: %v", err)
	}

	logger.Info("worker starting",
		"tick_concurrency", cfg.Workers.TickConcurrency,
		"send_concurrency", cfg.Workers.SendConcurrency,
		"sweep", cfg.Workers.SweepSpec)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sched.Run(ctx, cfg.Workers.TickConcurrency)
	}()
	go func() {
		defer wg.Done()
		snd.Run(ctx, cfg.Workers.SendConcurrency)
	}()

	<-ctx.Done()
	logger.Info("worker shutting down")

	cronCtx := cron.Stop()
	wg.Wait()
	<-cronCtx.Done()
	logger.Info("worker stopped")
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
