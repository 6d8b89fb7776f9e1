// main.go — точка входа бота медиа-поиска.
// config → logger → MongoDB → репозитории → сервисы → цикл обновлений
// Telegram + keep-alive HTTP-сервер; остановка по SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/viizet/Inline10/internal/api/handlers"
	"github.com/viizet/Inline10/internal/api/middleware"
	"github.com/viizet/Inline10/internal/batch"
	"github.com/viizet/Inline10/internal/bot"
	"github.com/viizet/Inline10/internal/config"
	"github.com/viizet/Inline10/internal/ingest"
	"github.com/viizet/Inline10/internal/logfile"
	"github.com/viizet/Inline10/internal/moderation"
	"github.com/viizet/Inline10/internal/repository"
	"github.com/viizet/Inline10/internal/server"
	"github.com/viizet/Inline10/internal/service"
	"github.com/viizet/Inline10/internal/sysinfo"
	"github.com/viizet/Inline10/internal/telegram"
)

// updateTimeout — long polling timeout getUpdates (секунды).
const updateTimeout = 60

func main() {
	// 1. .env для локального запуска (отсутствие файла не ошибка)
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Не удалось прочитать .env", slog.String("error", err.Error()))
	}

	// 2. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 3. Логирование: stdout и файл для /logger
	var logger *slog.Logger
	logFile, err := logfile.Open(cfg.LogFile)
	if err != nil {
		logger = config.SetupLogger(cfg)
		logger.Warn("Файл лога недоступен, /logger работать не будет", slog.String("error", err.Error()))
	} else {
		defer logFile.Close()
		logger = config.SetupLogger(cfg, logFile)
	}
	logger.Info("Бот медиа-поиска запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.Int("channels", len(cfg.Channels)),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Бот завершился с ошибкой", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Бот остановлен")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. MongoDB
	client, err := repository.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := client.Disconnect(disconnectCtx); err != nil {
			logger.Warn("Ошибка отключения от MongoDB", slog.String("error", err.Error()))
		}
	}()

	db := client.Database(cfg.DatabaseName)
	if err := repository.EnsureIndexes(ctx, db, cfg.CollectionName, logger); err != nil {
		return err
	}

	// 5. Репозитории
	mediaRepo := repository.NewMediaRepository(db, cfg.CollectionName)
	userRepo := repository.NewUserRepository(db)
	banRepo := repository.NewBanRepository(db)
	eventRepo := repository.NewEventRepository(db)

	// 6. Сервисы
	cache := service.NewCacheService(cfg.SearchCacheSize, time.Duration(max(cfg.CacheTime, 1))*time.Second)
	searchSvc := service.NewSearchService(mediaRepo, cache, service.SearchOptions{
		MaxResults:    cfg.MaxResults,
		BrowseLimit:   cfg.BrowseLimit,
		CaptionSearch: cfg.UseCaptionFilter,
	}, logger)
	activitySvc := service.NewActivityService(userRepo, eventRepo, logger)

	runner := batch.NewRunner(cfg.BatchItemDelay, cfg.BatchMaxConsecutiveFailures, logger)
	indexer := ingest.NewIndexer(mediaRepo, searchSvc, runner, cfg.IndexMaxLimit, logger)
	moderationSvc := moderation.NewService(mediaRepo, searchSvc, searchSvc, activitySvc,
		moderation.NewSessionStore(cfg.PendingTTL), runner, logger)

	// 7. Telegram Bot API
	_ = tgbotapi.SetLogger(slog.NewLogLogger(logger.With(slog.String("component", "tgbotapi")).Handler(), slog.LevelWarn))
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.BotToken, cfg.TelegramAPIURL+"/bot%s/%s")
	if err != nil {
		return err
	}
	logger.Info("Авторизация в Bot API выполнена", slog.String("username", api.Self.UserName))

	heads := telegram.NewHeadTracker()
	history := telegram.NewHistory(api, cfg.IndexDumpChat, heads, mediaRepo, logger)

	b := bot.New(bot.Deps{
		API:        api,
		Config:     cfg,
		Search:     searchSvc,
		Activity:   activitySvc,
		Media:      mediaRepo,
		Cache:      searchSvc,
		Bans:       banRepo,
		Indexer:    indexer,
		History:    history,
		Heads:      heads,
		Moderation: moderationSvc,
		SysInfo:    sysinfo.Collect,
		Username:   api.Self.UserName,
		Logger:     logger,
	})

	// 8. topologymetrics — мониторинг Bot API и MongoDB
	var depHealth handlers.DependencyHealth
	if cfg.DephealthEnabled {
		dephealthSvc, err := service.NewDephealthService("inline-bot", cfg.DephealthGroup,
			cfg.TelegramAPIURL, cfg.DatabaseURI, cfg.DephealthCheckInterval, logger)
		if err != nil {
			logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
				slog.String("error", err.Error()),
			)
		} else if err := dephealthSvc.Start(ctx); err != nil {
			logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
		} else {
			defer dephealthSvc.Stop()
			depHealth = dephealthSvc.Health
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 9. Keep-alive HTTP-сервер
	health := handlers.NewHealthHandler(repository.NewReadinessChecker(client), depHealth)
	srv := server.New(cfg, logger, health,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)

	// 10. Цикл обновлений
	u := tgbotapi.NewUpdate(0)
	u.Timeout = updateTimeout
	u.AllowedUpdates = []string{
		"message", "edited_message", "channel_post", "edited_channel_post",
		"inline_query", "callback_query",
	}
	updates := api.GetUpdatesChan(u)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		defer api.StopReceivingUpdates()
		return b.Run(gctx, updates)
	})

	err = g.Wait()
	logger.Info("Останавливаем фоновые задачи...")
	return err
}
