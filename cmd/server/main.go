package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/suPer8Hu/helpdesk-relay/internal/ai"
	"github.com/suPer8Hu/helpdesk-relay/internal/chat"
	"github.com/suPer8Hu/helpdesk-relay/internal/config"
	"github.com/suPer8Hu/helpdesk-relay/internal/db"
	"github.com/suPer8Hu/helpdesk-relay/internal/httpapi"
	"github.com/suPer8Hu/helpdesk-relay/internal/httpapi/handlers"
	"github.com/suPer8Hu/helpdesk-relay/internal/jobs"
	"github.com/suPer8Hu/helpdesk-relay/internal/store/rabbitmq"
	"github.com/suPer8Hu/helpdesk-relay/internal/store/redisstore"
)

func main() {
	config.LoadEnvFile()
	cfg := config.Load()

	log.Printf("DEPLOY_MODE: %s", cfg.DeployMode)
	log.Printf("AI_PROVIDER: %s", cfg.AIProvider)
	if name := cfg.ActiveKeyName(); name != "" {
		log.Printf("%s: %s", name, config.MaskKey(cfg.ActiveKey()))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Provider registry (route by AI_PROVIDER, fall back by table)
	client := &http.Client{Timeout: cfg.UpstreamTimeout}
	reg := ai.NewRegistry()
	ai.RegisterDefaults(reg, cfg.Providers, client)

	var store chat.Store
	var memStore *chat.MemoryStore
	if cfg.Stateless() {
		store = chat.NewStatelessStore(cfg.SystemPrompt)
	} else {
		memStore = chat.NewMemoryStore(cfg.SystemPrompt, cfg.SessionMaxEntries)
		store = memStore
	}
	chatSvc := chat.NewService(store, reg, cfg.AIProvider)

	var jobSvc *jobs.Service
	var workerDone chan struct{}
	if cfg.AsyncEnabled {
		var cleanup func()
		jobSvc, workerDone, cleanup = startAsync(ctx, cfg, chatSvc)
		defer cleanup()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.NewRouter(handlers.NewHandler(chatSvc, jobSvc)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("listening at http://localhost:%s/", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if workerDone != nil {
		<-workerDone
	}
	if memStore != nil {
		log.Printf("sessions in memory at exit: %d", memStore.Len())
	}
}

// startAsync connects the job DB, queue and optional Redis and starts the
// in-process worker pool. The returned channel closes when the worker stops.
func startAsync(ctx context.Context, cfg config.Config, chatSvc *chat.Service) (*jobs.Service, chan struct{}, func()) {
	gdb, err := db.Open(cfg.DBDSN)
	if err != nil {
		log.Fatalf("async: %v", err)
	}
	repo := jobs.NewRepo(gdb)
	if err := repo.AutoMigrate(); err != nil {
		log.Fatalf("async: automigrate: %v", err)
	}

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatalf("rabbit publisher: %v", err)
	}

	var idem jobs.IdempotencyStore
	var rds *redisstore.Store
	if cfg.RedisAddr != "" {
		rds = redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rds.Ping(ctx); err != nil {
			log.Printf("redis unavailable, idempotency falls back to db: %v", err)
		}
		idem = rds
	}

	jobSvc := jobs.NewService(repo, pub, idem, cfg.IdempotencyTTL, chatSvc)

	conn, ch, err := rabbitmq.Dial(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatalf("rabbit consumer: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		w := jobs.NewWorker(jobSvc, ch, pub, cfg.RabbitQueue, cfg.WorkerConcurrency)
		if err := w.Run(ctx); err != nil {
			log.Printf("worker stopped: %v", err)
		}
	}()

	cleanup := func() {
		_ = ch.Close()
		_ = conn.Close()
		_ = pub.Close()
		if rds != nil {
			_ = rds.Close()
		}
	}
	return jobSvc, done, cleanup
}
