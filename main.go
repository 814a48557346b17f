package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/icodeforyou/meterit-go/cache"
	"github.com/icodeforyou/meterit-go/config"
	"github.com/icodeforyou/meterit-go/database"
	"github.com/icodeforyou/meterit-go/esios"
	"github.com/icodeforyou/meterit-go/logging"
	"github.com/icodeforyou/meterit-go/metrics"
	"github.com/icodeforyou/meterit-go/period"
	"github.com/icodeforyou/meterit-go/redisutil"
	"github.com/icodeforyou/meterit-go/task"
	"github.com/icodeforyou/meterit-go/www"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var Version = "?.?.?"

func main() {
	defer func() {
		if err := recover(); err != nil {
			exitWithError(slog.Default(), fmt.Errorf("application panicked: %v", err))
		} else {
			slog.Default().Info("application is shutting down...")
		}
	}()

	configPath := flag.String("config", "", "path to config file")
	envPath := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	// A missing .env is normal outside development.
	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		panic(fmt.Sprintf("failed to load %s: %v", *envPath, err))
	}

	loader := config.NewLoader(*configPath)
	cnfg, err := loader.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if err := period.SetTimezone(cnfg.EnergyPrice.GetTimezone()); err != nil {
		panic(fmt.Sprintf("failed to set price timezone: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consoleLevel := new(slog.LevelVar)
	consoleLevel.Set(cnfg.Logging.GetConsoleLevel())
	consoleHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      consoleLevel,
		TimeFormat: time.RFC3339,
	})
	slog.SetDefault(slog.New(consoleHandler))
	slog.Default().Debug("meterit is starting...", slog.String("version", Version))

	db, err := openDatabase(ctx, cnfg.Database)
	if err != nil {
		panic(fmt.Sprintf("failed to connect to database: %v", err))
	}
	defer db.Close()
	slog.Default().Info("database opened", slog.String("driver", string(db.Driver())))

	logger := slog.New(logging.NewMultiHandler(
		consoleHandler,
		logging.NewDBHandler(db, cnfg.Logging.GetDbLevel(), cnfg.Logging.GetDbAttrsFormat())))
	slog.SetDefault(logger)

	// Now we can use the logger to log database operations into the database itself
	db.SetLogger(logger.With("module", "database"))

	loader.Watch(func(c *config.AppConfig) {
		consoleLevel.Set(c.Logging.GetConsoleLevel())
		logger.Info("config reloaded", slog.String("consoleLevel", c.Logging.GetConsoleLevel().String()))
	}, func(err error) {
		logger.Warn("ignoring invalid config change", slog.Any("error", err))
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var store cache.Store = cache.NewMemoryStore()
	fetcher := task.NewPriceFetcher(
		logger.With(slog.String("module", "fetcher")),
		db,
		esios.New(cnfg.Esios),
		m)

	if cnfg.Redis.Enabled() {
		rdb, err := redisutil.NewClient(cnfg.Redis)
		if err != nil {
			panic(fmt.Sprintf("failed to connect to redis: %v", err))
		}
		defer rdb.Close()

		prefix := cnfg.Redis.GetKeyPrefix()
		store = cache.NewRedisStore(rdb, prefix)
		fetcher.SetLocker(redisutil.NewLocker(rdb), prefix+":fetch_lock")
		logger.Info("using redis for the price cache and fetch lock", slog.String("addr", cnfg.Redis.Addr))
	}

	prices := cache.NewPriceCache(db, store, cnfg.EnergyPrice.GetCacheTTL(), m)

	tasks := task.NewTasks(db, db, fetcher, cnfg)
	tasks.Run()
	defer tasks.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-ctx.Done():
		case sig := <-sigCh:
			logger.Info("received signal", slog.Any("signal", sig))
			cancel()
		}
	}()

	server := www.NewServer(db, prices, fetcher, m, registry, cnfg.Api)
	if err := server.Run(ctx); err != nil {
		panic(err.Error())
	}
}

func openDatabase(ctx context.Context, cnfg config.AppConfigDatabase) (*database.Database, error) {
	driver := database.Driver(cnfg.GetDriver())
	if driver == database.DriverPostgres {
		return database.New(ctx, driver, cnfg.DSN)
	}

	if cnfg.Path == "" {
		return nil, errors.New("database.path is required for sqlite")
	}
	if err := os.MkdirAll(filepath.Dir(cnfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	return database.New(ctx, driver, cnfg.Path)
}

func exitWithError(logger *slog.Logger, err error) {
	if err != nil {
		logger.Error("application shutting down with error", slog.Any("error", err))
	}
	if syncer, ok := logger.Handler().(interface{ Sync() error }); ok {
		if syncErr := syncer.Sync(); syncErr != nil {
			logger.Error("failed to flush logger", slog.Any("error", syncErr))
		}
	}

	time.Sleep(2 * time.Second)
	os.Exit(1)
}
