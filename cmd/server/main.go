package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/olyamironova/eos-exchange/internal/adapter/cache"
	"github.com/olyamironova/eos-exchange/internal/adapter/in_memory"
	"github.com/olyamironova/eos-exchange/internal/adapter/kafka"
	"github.com/olyamironova/eos-exchange/internal/adapter/pebblestore"
	"github.com/olyamironova/eos-exchange/internal/adapter/pg"
	httpapi "github.com/olyamironova/eos-exchange/internal/api/http"
	"github.com/olyamironova/eos-exchange/internal/api/ws"
	"github.com/olyamironova/eos-exchange/internal/config"
	"github.com/olyamironova/eos-exchange/internal/core"
	"github.com/olyamironova/eos-exchange/internal/logger"
	"github.com/olyamironova/eos-exchange/internal/port"
)

type gateway interface {
	port.Gateway
	httpapi.Ledger
}

func main() {
	envPath := flag.String("env", "", "path to .env file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*envPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logger.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if err := run(cfg, lg); err != nil {
		lg.Fatal("server_failed", zap.Error(err))
	}
}

func run(cfg config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pgRepo *pg.PgRepo
	if cfg.Store.Backend == "postgres" || cfg.Ledger.Backend == "postgres" {
		repo, err := pg.NewPgRepo(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return err
		}
		defer repo.Close(ctx)
		if err := repo.Migrate(ctx); err != nil {
			return err
		}
		pgRepo = repo
	}

	var repo port.Repository
	switch cfg.Store.Backend {
	case "memory":
		repo = in_memory.NewMemoryRepo()
	case "pebble":
		store, err := pebblestore.NewStore(cfg.Store.PebblePath)
		if err != nil {
			return err
		}
		defer store.Close()
		repo = store
	case "postgres":
		repo = pgRepo
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	var ledger gateway
	switch cfg.Ledger.Backend {
	case "memory":
		ledger = in_memory.NewLedger()
	case "postgres":
		ledger = pg.NewLedger(pgRepo.Pool())
	default:
		return fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}

	opts := []core.Option{core.WithLogger(lg.Named("engine"))}
	if cfg.Store.Backend == "postgres" && cfg.Ledger.Backend == "postgres" {
		opts = append(opts, core.WithUnitOfWork(pg.NewUnitOfWork(pgRepo.Pool())))
	}
	if cfg.Cache.RedisAddr != "" {
		rc := cache.NewRedisCache(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, cfg.Cache.TTL)
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			lg.Warn("redis_unavailable", zap.String("addr", cfg.Cache.RedisAddr), zap.Error(err))
		}
		opts = append(opts, core.WithCache(rc))
	} else {
		opts = append(opts, core.WithCache(in_memory.NewCache()))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, lg.Named("kafka"))
		defer producer.Close()
		opts = append(opts, core.WithPublisher(producer))
	}

	var stream *ws.Hub
	if cfg.HTTP.Stream {
		stream = ws.NewHub(lg.Named("ws"), cfg.HTTP.CORSOrigins)
		go stream.Run(ctx)
		opts = append(opts, core.WithPublisher(stream))
	}

	engine := core.NewEngine(repo, ledger, core.Market{
		Symbol:    cfg.Market.Symbol,
		Reference: cfg.Market.Reference,
		Custody:   cfg.Market.Custody,
	}, opts...)

	httpOpts := httpapi.Options{
		Tokens:       cfg.HTTP.Tokens,
		RateLimit:    cfg.HTTP.RateLimit,
		AllowDeposit: cfg.Ledger.AllowDeposit,
	}
	if stream != nil {
		httpOpts.Stream = stream.Handle
	}
	server := httpapi.NewHTTPServer(engine, ledger, lg.Named("http"), httpOpts)
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.HTTP.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Client-ID"},
		AllowCredentials: true,
	})
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           c.Handler(server.Router()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("http_listening",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("market", cfg.Market.Symbol+"/"+cfg.Market.Reference),
			zap.String("store", cfg.Store.Backend),
			zap.String("ledger", cfg.Ledger.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	lg.Info("shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
