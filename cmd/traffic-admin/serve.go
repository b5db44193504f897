// serve.go — запуск BFF: PostgreSQL (опционально), миграции, сервисы,
// мониторинг зависимостей и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/bigkaa/trafficadmin/internal/api/auth"
	"github.com/bigkaa/trafficadmin/internal/api/handlers"
	"github.com/bigkaa/trafficadmin/internal/api/middleware"
	"github.com/bigkaa/trafficadmin/internal/apiclient"
	"github.com/bigkaa/trafficadmin/internal/config"
	"github.com/bigkaa/trafficadmin/internal/database"
	"github.com/bigkaa/trafficadmin/internal/entity"
	"github.com/bigkaa/trafficadmin/internal/guard"
	"github.com/bigkaa/trafficadmin/internal/i18n"
	"github.com/bigkaa/trafficadmin/internal/repository"
	"github.com/bigkaa/trafficadmin/internal/server"
	"github.com/bigkaa/trafficadmin/internal/service"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Запустить BFF-сервер для браузерного клиента",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Usage: "порт HTTP-сервера (вместо TA_PORT)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.IsSet("port") {
				cfg.Port = int(c.Int("port"))
			}
			return runServe(ctx, cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := config.SetupLogger(cfg)
	logger.Info("Traffic Admin запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("backend", cfg.BackendURL),
	)

	// Предупреждения о дефолтных значениях
	if cfg.SessionSecret == "" {
		logger.Warn("TA_SESSION_SECRET не задан, сессии не переживут перезапуск")
	}
	if os.Getenv("TA_DEPHEALTH_GROUP") == "" {
		logger.Warn("TA_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 1. PostgreSQL для пользовательских настроек (опционально)
	var (
		prefsRepo repository.PreferencesRepository
		runner    *repository.TxRunner
		pgDB      *sql.DB
		checkers  []handlers.ReadinessChecker
	)
	if cfg.DatabaseEnabled() {
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			return err
		}
		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer pool.Close()

		// Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
		pgDB = database.OpenDB(pool)
		defer pgDB.Close()

		prefsRepo = repository.NewPreferencesRepository(pool)
		runner = repository.NewTxRunner(pool)
		checkers = append(checkers, database.NewReadinessChecker(pool))
	} else {
		logger.Info("PostgreSQL не настроена, настройки хранятся только в cookie")
	}

	// 2. Клиент backend и разбор токенов
	client, err := apiclient.New(cfg.BackendURL, cfg.RequestTimeout, cfg.BackendCACert, logger)
	if err != nil {
		return err
	}
	decoder, err := newDecoder(cfg, logger)
	if err != nil {
		return err
	}
	if decoder.Verifying() {
		logger.Info("Подпись токенов проверяется по JWKS", slog.String("url", cfg.JWKSURL))
	}

	cookies, err := auth.NewCookieStore(cfg.SessionSecret, cfg.SecureCookie)
	if err != nil {
		return err
	}
	bundle, err := i18n.Load(cfg.DefaultLang, logger)
	if err != nil {
		return err
	}

	// 3. Мониторинг зависимостей (topologymetrics)
	depSvc, err := service.NewDephealthService(service.DephealthConfig{
		ServiceID:         "traffic-admin",
		Group:             cfg.DephealthGroup,
		BackendURL:        cfg.BackendURL,
		BackendHealthPath: cfg.BackendHealthPath,
		DB:                pgDB,
		DBURL:             cfg.DatabaseURL(),
		CheckInterval:     cfg.DephealthCheckInterval,
	}, logger)
	if err != nil {
		logger.Warn("Мониторинг зависимостей отключён", slog.String("error", err.Error()))
	} else {
		if err := depSvc.Start(ctx); err != nil {
			logger.Warn("Ошибка запуска мониторинга зависимостей", slog.String("error", err.Error()))
		}
		defer depSvc.Stop()
		checkers = append(checkers, depSvc)
	}

	// 4. Сервисный слой
	registry := entity.DefaultRegistry()
	chatSvc := service.NewChatService(cfg.ChatPath, logger)
	defer chatSvc.Close()

	handler := handlers.NewAPIHandler(
		handlers.NewHealthHandler(checkers...),
		client,
		service.NewEntityService(registry, cfg.FanoutLimit, logger),
		guard.NewTable(registry),
		chatSvc,
		service.NewSystemLogService(service.DefaultRecentLogsLimit, logger),
		service.NewPreferencesService(prefsRepo, runner, logger),
		bundle,
		logger,
	)

	// 5. HTTP-сервер
	srv := server.New(cfg, logger, handler, middleware.NewSessionMiddleware(cookies, decoder, logger), bundle)
	return srv.Run(ctx)
}
