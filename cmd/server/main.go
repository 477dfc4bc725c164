// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/partyhost/internal/auth"
	"github.com/jason-s-yu/partyhost/internal/cache"
	"github.com/jason-s-yu/partyhost/internal/config"
	"github.com/jason-s-yu/partyhost/internal/database"
	"github.com/jason-s-yu/partyhost/internal/handlers"
	"github.com/jason-s-yu/partyhost/internal/logging"
	"github.com/jason-s-yu/partyhost/internal/middleware"
	"github.com/jason-s-yu/partyhost/internal/party"
	"github.com/jason-s-yu/partyhost/internal/pool"
	"github.com/jason-s-yu/partyhost/internal/session"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON, Dir: cfg.LogDir, Name: "partyhost"})
	if err != nil {
		logrus.Fatalf("logging: %v", err)
	}
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("server exited")
	}
}

func run(cfg config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	base := logrus.NewEntry(logger)

	if cfg.PrivateKeyPath != "" {
		if err := auth.InitFromPath(cfg.PrivateKeyPath, cfg.PublicKeyPath, cfg.TokenExpire); err != nil {
			return err
		}
	} else {
		logger.Warn("no signing keys configured, generating ephemeral keys")
		if err := auth.Init(cfg.TokenExpire); err != nil {
			return err
		}
	}

	var events pool.EventSink
	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		events = cache.NewEventPublisher(rdb, cfg.EventsQueue, base.WithField("component", "events"))
	} else {
		logger.Info("REDIS_ADDR not set, server events are not recorded")
	}

	hub := handlers.NewPartyHub(base.WithField("component", "party_hub"))
	var observer party.Observer
	var querier party.Querier
	var store *party.Store
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		repo := database.NewPartyRepository(db, base.WithField("component", "party_repository"))
		observer, querier = repo, repo
		store = party.NewStore(hub, observer, base.WithField("component", "party"))
	} else {
		store = party.NewStore(hub, nil, base.WithField("component", "party"))
		querier = store
	}

	poolsFile, err := config.LoadPools(cfg.PoolsFile)
	if err != nil {
		return err
	}
	serverTokens := auth.ServerTokens{TTL: cfg.ServerTokenTTL}
	agentClient := pool.NewAgentClient(cfg.AgentTimeout)
	topo, err := pool.Build(ctx, poolsFile, pool.Deps{
		Events:      events,
		Tokens:      serverTokens,
		AgentClient: agentClient,
		CallbackURL: cfg.AgentCallbackURL,
		Logger:      base.WithField("component", "pool"),
	})
	if err != nil {
		return err
	}
	sessions := session.NewService(topo.Root, base.WithField("component", "session"))

	// session metrics register themselves on the default registry
	prometheus.MustRegister(pool.NewCollector(topo.Registry))

	logged := middleware.LogMiddleware(logger)
	admin := middleware.RequireBearer(cfg.AdminToken)
	mux := http.NewServeMux()

	// party endpoints
	mux.Handle("POST /party/create", logged(handlers.CreatePartyHandler(logger, store)))
	mux.Handle("GET /party/ws/{id}", logged(handlers.PartyWSHandler(logger, store, hub)))

	// game sessions
	mux.Handle("POST /session/start", logged(handlers.StartSessionHandler(logger, store, sessions)))
	mux.Handle("POST /session/end", logged(handlers.EndSessionHandler(logger, store, sessions)))

	// dedicated servers and their agents
	mux.Handle("POST /server/auth", logged(handlers.ServerAuthHandler(logger, serverTokens)))
	mux.Handle("POST /agent/ready", logged(handlers.AgentReadyHandler(logger, topo.Registry, topo.Agents)))
	mux.Handle("POST /agent/shutdown", logged(handlers.AgentShutdownHandler(logger, topo.Registry, topo.Agents)))

	// operations
	mux.Handle("GET /admin/parties", logged(admin(handlers.AdminPartiesHandler(logger, querier))))
	mux.Handle("GET /admin/pools", logged(admin(handlers.AdminPoolsHandler(topo.Registry))))
	mux.Handle("GET /admin/agents", logged(admin(handlers.AdminAgentsHandler(topo.Agents))))
	mux.Handle("GET /admin/agents/{id}/containers", logged(admin(handlers.AdminAgentContainersHandler(logger, topo.Agents, agentClient))))
	mux.Handle("GET /admin/agents/{id}/containers/{cid}/logs", logged(admin(handlers.AdminContainerLogsHandler(logger, topo.Agents, agentClient))))
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{Addr: cfg.Addr(), Handler: mux}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Running on %s", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		return errors.Join(err, topo.Registry.Dispose(shutdownCtx))
	})
	return g.Wait()
}
