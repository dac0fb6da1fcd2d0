package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mama165/sdk-go/logs"

	"github.com/puoklam/groupchat/api/group"
	"github.com/puoklam/groupchat/api/membership"
	"github.com/puoklam/groupchat/api/socket"
	"github.com/puoklam/groupchat/api/user"
	"github.com/puoklam/groupchat/conversation"
	"github.com/puoklam/groupchat/db"
	"github.com/puoklam/groupchat/env"
	"github.com/puoklam/groupchat/kv"
	"github.com/puoklam/groupchat/middleware"
	"github.com/puoklam/groupchat/mq"
	"github.com/puoklam/groupchat/notify"
	"github.com/puoklam/groupchat/push"
	"github.com/puoklam/groupchat/redis"
	"github.com/puoklam/groupchat/server"
	"github.com/puoklam/groupchat/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

type store interface {
	conversation.Store
	Ping(ctx context.Context) error
}

func run() error {
	cfg, err := env.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	logger := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Records
	var st store
	switch cfg.StoreDriver {
	case env.StorePostgres:
		gdb, err := db.Open(cfg.DBConn)
		if err != nil {
			return err
		}
		pg := db.NewStore(gdb)
		defer pg.Close()
		st = pg
	default:
		bdb, err := kv.Open(cfg.BadgerPath)
		if err != nil {
			return err
		}
		defer func() {
			logger.Info("Closing BadgerDB...")
			_ = bdb.Close()
		}()
		st = kv.NewStore(logger, bdb)
	}

	// Locks
	var locker conversation.Locker = conversation.NewKeyedMutex()
	if cfg.LockDriver == env.LockRedis {
		rc := redis.NewClient(cfg.RedisAddr, cfg.RedisPassword)
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		locker = redis.NewLock(logger, rc, cfg.LockTTL)
	}

	// Live delivery
	hub := ws.NewHub()
	go hub.Run(ctx)
	var (
		live       notify.LiveChannel = hub
		subscriber ws.Subscriber
	)
	switch cfg.LiveDriver {
	case env.LiveNSQ:
		p, err := mq.NewProducer(logger, cfg.NSQDTCPAddr)
		if err != nil {
			return err
		}
		defer p.Stop()
		live, subscriber = p, mq.NewSubscriber(logger, cfg.NSQDTCPAddr, cfg.NSQLookupdAddr)
	case env.LiveNATS:
		n, err := mq.ConnectNATS(logger, cfg.NATSURL)
		if err != nil {
			return err
		}
		defer n.Close()
		live, subscriber = n, n
	}

	fanout := notify.NewFanout(logger, live, push.NewExpo(logger, cfg.ExpoAccessToken, cfg.NotifyTimeout),
		notify.WithTimeout(cfg.NotifyTimeout),
		notify.WithParallelism(cfg.NotifyParallelism),
		notify.WithSystemContact(cfg.SystemContact),
	)

	reaper := conversation.NewReaper(logger, st, locker)
	coordinator := conversation.NewCoordinator(logger, st, locker, fanout,
		conversation.NewQuotaGuard(cfg.GroupQuota, cfg.GroupQuotaWindow), reaper,
		conversation.WithHashCost(cfg.PasswordHashCost),
	)
	directory := conversation.NewDirectory(st)
	go reaper.Run(ctx, cfg.ReaperInterval)

	// HTTP
	r := chi.NewRouter()
	server.SetupMiddlewares(r)
	server.SetupHealth(r, st.Ping)

	auth := middleware.Authenticator(logger, []byte(cfg.HS256Secret), directory)
	grpHandlers := group.NewHandlers(logger, coordinator)
	memberHandlers := membership.NewHandlers(logger, coordinator)
	userHandlers := user.NewHandlers(logger, directory)
	wsHandlers := socket.NewHandlers(logger, ws.NewServer(logger, hub, directory, coordinator, subscriber))

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Route("/groups", func(r chi.Router) {
			grpHandlers.SetupRoutes(r)
			memberHandlers.SetupRoutes(r)
		})
		r.Route("/users", userHandlers.SetupRoutes)
		wsHandlers.SetupRoutes(r)
	})

	srv := server.New(":"+cfg.AppPort, r)
	errc := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "addr", srv.Addr, "store", cfg.StoreDriver, "lock", cfg.LockDriver, "live", cfg.LiveDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	// Sockets are hijacked, so Shutdown leaves them to the hub.
	select {
	case <-hub.Done():
	case <-shutdownCtx.Done():
	}
	if err := fanout.Close(shutdownCtx); err != nil {
		logger.Warn("Pending notifications dropped", "error", err)
	}
	return nil
}
