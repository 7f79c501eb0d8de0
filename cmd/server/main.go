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

	"github.com/suPer8Hu/kairos/internal/actions"
	"github.com/suPer8Hu/kairos/internal/chat"
	"github.com/suPer8Hu/kairos/internal/config"
	"github.com/suPer8Hu/kairos/internal/db"
	"github.com/suPer8Hu/kairos/internal/dispatch"
	"github.com/suPer8Hu/kairos/internal/httpapi"
	"github.com/suPer8Hu/kairos/internal/httpapi/handlers"
	"github.com/suPer8Hu/kairos/internal/quota"
	"github.com/suPer8Hu/kairos/internal/store/rabbitmq"
	"github.com/suPer8Hu/kairos/internal/store/redisstore"
)

func main() {
	cfg := config.Load()

	models := append([]any{&chat.Session{}, &chat.Message{}, &quota.Usage{}}, actions.Models()...)
	gdb := db.Connect(cfg.DBDSN, models...)

	deps := map[string]handlers.Pinger{
		"db": handlers.PingFunc(func(ctx context.Context) error { return db.Ping(ctx, gdb) }),
	}

	var counters quota.Store
	switch cfg.QuotaBackend {
	case "db":
		counters = quota.NewDBStore(gdb)
	case "redis":
		rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rds.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rds.Ping(pingCtx); err != nil {
			log.Fatalf("redis ping: %v", err)
		}
		cancel()
		counters = quota.NewRedisStore(rds, cfg.QuotaWindow)
		deps["redis"] = rds
	default:
		log.Fatalf("unsupported QUOTA_BACKEND=%q", cfg.QuotaBackend)
	}

	completers, err := newRegistry(cfg).Resolve(context.Background(), cfg.Modes)
	if err != nil {
		log.Fatalf("ai backends: %v", err)
	}
	router, err := dispatch.NewRouter(completers)
	if err != nil {
		log.Fatalf("dispatch: %v", err)
	}
	for mode, b := range cfg.Modes {
		log.Printf("mode=%s backend=%q model=%q configured=%v", mode, b.Backend, b.Model, router.Has(mode))
	}

	var pub actions.Publisher
	if rp, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue); err != nil {
		log.Printf("rabbit unavailable, action events disabled: %v", err)
	} else {
		defer rp.Close()
		pub = rp
	}

	repo := chat.NewRepo(gdb)
	quotas := quota.NewManager(counters, repo, cfg.QuotaLimits)
	svc := chat.NewService(repo, router, quotas, actions.NewRecorder(gdb, pub), cfg.ChatContextWindowSize)

	r := httpapi.NewRouter(handlers.NewHandler(svc, deps), cfg.JWTSecret)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
