// authsvc es el servicio de autenticación de Veloway: login federado
// (Google, Apple), login por password y emisión de sesiones JWT.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	rdb "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/veloway-app/authsvc/internal/cache"
	"github.com/veloway-app/authsvc/internal/config"
	authctrl "github.com/veloway-app/authsvc/internal/http/controllers/auth"
	"github.com/veloway-app/authsvc/internal/http/router"
	authsvc "github.com/veloway-app/authsvc/internal/http/services/auth"
	"github.com/veloway-app/authsvc/internal/metrics"
	"github.com/veloway-app/authsvc/internal/oauth"
	"github.com/veloway-app/authsvc/internal/oauth/apple"
	"github.com/veloway-app/authsvc/internal/oauth/google"
	"github.com/veloway-app/authsvc/internal/oauth/retry"
	"github.com/veloway-app/authsvc/internal/observability/logger"
	"github.com/veloway-app/authsvc/internal/rate"
	"github.com/veloway-app/authsvc/internal/store/core"
	"github.com/veloway-app/authsvc/internal/store/memory"
	"github.com/veloway-app/authsvc/internal/store/pg"
	"github.com/veloway-app/authsvc/internal/token"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to YAML config")
	flag.Parse()

	// .env es opcional; en prod las vars vienen del entorno
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// logger todavía no inicializado
		panic("config: " + err.Error())
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		ServiceName: "veloway-authsvc",
	})
	defer logger.Sync()
	log := logger.L().With(logger.Component("main"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─── Store ───
	var repo core.Repository
	switch cfg.Storage.Driver {
	case "postgres":
		lifetime, _ := time.ParseDuration(cfg.Storage.Postgres.ConnMaxLifetime)
		pgRepo, err := pg.New(ctx, cfg.Storage.DSN, pg.Options{
			MaxConns:        cfg.Storage.Postgres.MaxConns,
			ConnMaxLifetime: lifetime,
		})
		if err != nil {
			log.Fatal("postgres connect", logger.Err(err))
		}
		defer pgRepo.Close()
		repo = pgRepo
	default:
		log.Warn("using in-memory store; data is not persisted")
		repo = memory.New()
	}

	// ─── Cache (blacklist de tokens) ───
	cacheClient, err := cache.New(cache.Config{
		Kind:     cfg.Cache.Kind,
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Redis.Prefix,
	})
	if err != nil {
		log.Fatal("cache connect", logger.Err(err))
	}
	defer cacheClient.Close()

	// ─── Providers ───
	var providers []oauth.Provider
	if cfg.Providers.Google.Enabled {
		providers = append(providers, google.New(google.Config{
			ClientID:     cfg.Providers.Google.ClientID,
			ClientSecret: cfg.Providers.Google.ClientSecret,
		}))
	}
	if cfg.Providers.Apple.Enabled {
		ap, err := apple.New(apple.Config{
			ClientID:      cfg.Providers.Apple.ClientID,
			TeamID:        cfg.Providers.Apple.TeamID,
			KeyID:         cfg.Providers.Apple.KeyID,
			PrivateKeyPEM: cfg.Providers.Apple.PrivateKeyPEM,
		})
		if err != nil {
			log.Fatal("apple provider", logger.Err(err))
		}
		providers = append(providers, ap)
	}
	registry := oauth.NewRegistry(providers...)
	log.Info("providers enabled", logger.String("providers", strings.Join(registry.Names(), ",")))

	// ─── Tokens ───
	tokens := token.NewService(token.Config{
		Issuer:     cfg.JWT.Issuer,
		Secret:     []byte(cfg.JWT.Secret),
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
	}, token.NewBlacklist(cacheClient))

	// ─── Metrics ───
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(reg); err != nil {
		log.Fatal("metrics register", logger.Err(err))
	}

	// ─── Auth service ───
	service := authsvc.NewService(authsvc.Deps{
		Providers: registry,
		Repo:      repo,
		Tokens:    tokens,
		Metrics:   metrics.PromRecorder{},
		RetryPolicy: retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Backoff:     cfg.Retry.Backoff,
		},
	})

	// ─── Rate limiter de login ───
	var limiter rate.Limiter
	if cfg.Rate.Enabled {
		if cfg.Cache.Kind == "redis" {
			client := rdb.NewClient(&rdb.Options{
				Addr:     cfg.Cache.Redis.Addr,
				Password: cfg.Cache.Redis.Password,
				DB:       cfg.Cache.Redis.DB,
			})
			limiter = rate.NewRedisLimiter(client, cfg.Cache.Redis.Prefix+"rl:", cfg.Rate.Login.Limit, cfg.Rate.Login.Window)
		} else {
			limiter = rate.NewMemoryLimiter(cfg.Rate.Login.Limit, cfg.Rate.Login.Window)
		}
	}

	handler := router.New(router.Deps{
		Social:       authctrl.NewSocialController(service),
		Session:      authctrl.NewSessionController(service),
		Repo:         repo,
		Cache:        cacheClient,
		LoginLimiter: limiter,
		Metrics:      reg,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", logger.Err(err))
		os.Exit(1)
	}
}
