package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strangerchat/backend/internal/api/handler"
	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/config"
	"strangerchat/backend/internal/localization"
	"strangerchat/backend/internal/logger"
	"strangerchat/backend/internal/metrics"
	"strangerchat/backend/internal/storage"
	"strangerchat/backend/internal/telegram"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// setupStorage opens whichever backends are configured. It returns nil when
// neither PostgreSQL nor Redis is set, which disables the session audit.
func setupStorage(ctx context.Context, cfg config.Config, log *zap.Logger) (*storage.Service, error) {
	var (
		db  *gorm.DB
		rdb *redis.Client
	)

	// 1. PostgreSQL
	if cfg.DatabaseDSN != "" {
		var err error
		db, err = gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
	}

	// 2. Redis
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}

	if db == nil && rdb == nil {
		log.Info("no storage configured, session audit disabled")
		return nil, nil
	}

	s := storage.NewStorageService(db, rdb)

	// 3. Міграції та закриття сесій, що пережили рестарт
	if db != nil {
		if err := s.Migrate(); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		n, err := s.CloseStaleRooms(ctx, time.Now())
		if err != nil {
			return nil, fmt.Errorf("close stale rooms: %w", err)
		}
		if n > 0 {
			log.Info("closed sessions left over from previous run", zap.Int64("count", n))
		}
	}

	log.Info("storage ready", zap.Bool("postgres", db != nil), zap.Bool("redis", rdb != nil))
	return s, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	gin.SetMode(cfg.GinMode)

	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zl.Sync()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("strangerchat stopped with error", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	log.Info("starting StrangerChat backend", zap.String("addr", cfg.ListenAddr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// 1. Ініціалізація залежностей
	store, err := setupStorage(ctx, cfg, log)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	opts := chathub.Options{
		Clock:         clock.New(),
		SearchTimeout: cfg.SearchTimeout,
		Metrics:       m,
		Logger:        log.Named("hub"),
	}
	if store != nil {
		recorder := storage.NewRecorder(store, storage.DefaultRecorderBuffer, log)
		opts.Observer = recorder
		g.Go(func() error { return recorder.Run(gctx) })
	}

	// 2. Ініціалізація Chat Hub
	hub := chathub.NewManagerService(opts)
	g.Go(func() error { return hub.Run(gctx) })

	// 3. Telegram-бот (необов'язковий)
	if cfg.TelegramBotToken != "" {
		loc, err := localization.Default()
		if err != nil {
			return fmt.Errorf("localizer: %w", err)
		}
		bot, err := telegram.NewBotService(cfg.TelegramBotToken, hub, loc, cfg.ClientSendBuffer, log)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		g.Go(func() error { return bot.Run(gctx) })
	}

	// 4. Налаштування Gin та роутингу
	tokens := handler.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	h := handler.NewHandler(hub, tokens, cfg, log.Named("http"))

	server := &http.Server{
		Addr:           cfg.ListenAddr,
		Handler:        h.Router(reg),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
