package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	appcfg "github.com/NP5555/BlockChain-Chess-Arena/internal/config"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/connmgr"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/history"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/matchmaker"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/msgcat"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/obslog"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/relay"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/rules"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/session"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/transport/arenaws"
	"go.uber.org/zap"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("log init error: %v", err)
	}

	cat, err := msgcat.New(cfg.MessageOverrideDir)
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}

	// snapshot store is optional; without Redis the registry is purely
	// in-memory and sessions do not survive a restart
	var store session.Store
	var redisStore *session.RedisStore
	if cfg.RedisURL != "" {
		redisStore, err = session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis store error: %v", err)
		}
		store = redisStore
	}

	registry := session.NewRegistry(store, session.Config{
		ReapInterval:   cfg.ReapInterval,
		WaitingMaxAge:  cfg.WaitingMaxAge,
		FinishedMaxAge: cfg.FinishedMaxAge,
		MaxSessions:    cfg.MaxConcurrentSessions,
	})
	if store != nil {
		rctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := registry.Recover(rctx); err != nil {
			obslog.L().Warn("session_recover_error", zap.Error(err))
		}
		cancel()
	}

	match := matchmaker.New(registry)
	rel := relay.New(registry, rules.NewEngine())

	var repo *history.Repository
	if cfg.DatabaseURL != "" {
		repo, err = history.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("history repo error: %v", err)
		}
		rel.AttachRecorder(repo)
	} else {
		rel.AttachRecorder(history.NewMemRecorder())
	}

	srv := arenaws.NewServer(cfg.ListenAddr, registry, match, rel, cat)
	conns := connmgr.New(registry, srv, cfg.GracePeriod)
	conns.AttachAbandoner(rel)
	conns.AttachCatalog(cat)
	rel.AttachResolver(conns)
	srv.AttachConnManager(conns)
	rel.AttachBroadcaster(srv)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		obslog.L().Info("shutdown_signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			obslog.L().Error("server_error", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	registry.Stop()
	if redisStore != nil {
		_ = redisStore.Close()
	}
	if repo != nil {
		_ = repo.Close()
	}
}
