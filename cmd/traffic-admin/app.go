package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v3"

	"github.com/bigkaa/trafficadmin/internal/apiclient"
	"github.com/bigkaa/trafficadmin/internal/config"
	"github.com/bigkaa/trafficadmin/internal/database"
	"github.com/bigkaa/trafficadmin/internal/entity"
	"github.com/bigkaa/trafficadmin/internal/i18n"
	"github.com/bigkaa/trafficadmin/internal/repository"
	"github.com/bigkaa/trafficadmin/internal/service"
	"github.com/bigkaa/trafficadmin/internal/session"
	"github.com/bigkaa/trafficadmin/internal/storage"
)

// jwksRefresh — интервал обновления JWKS.
const jwksRefresh = 15 * time.Minute

// cliChatOwner — владелец потока чата в CLI: процесс обслуживает одного пользователя.
const cliChatOwner = "cli"

// app — зависимости команд CLI. Сессия хранится в файле и восстанавливается
// при каждом запуске.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	bundle *i18n.Bundle
	lang   string

	storage  *storage.File
	store    *session.Store
	client   *apiclient.Client
	entities *service.EntityService
	prefs    *service.PreferencesService

	pool *pgxpool.Pool
}

// loadConfig читает конфигурацию и применяет глобальные флаги.
func loadConfig(c *cli.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if c.IsSet("backend") {
		cfg.BackendURL = strings.TrimRight(c.String("backend"), "/")
	}
	if c.IsSet("storage") {
		cfg.StoragePath = c.String("storage")
	}
	return cfg, nil
}

// newDecoder создаёт декодер ролей; при заданном TA_JWKS_URL подпись проверяется.
func newDecoder(cfg *config.Config, logger *slog.Logger) (*session.Decoder, error) {
	if cfg.JWKSURL == "" {
		return session.NewDecoder(cfg.ClaimsCacheSize, cfg.ClaimsCacheTTL, nil, logger), nil
	}
	kf, err := session.NewJWKSKeyfunc(cfg.JWKSURL, &http.Client{Timeout: cfg.RequestTimeout}, jwksRefresh, logger)
	if err != nil {
		return nil, err
	}
	return session.NewDecoder(cfg.ClaimsCacheSize, cfg.ClaimsCacheTTL, kf, logger), nil
}

// openApp собирает зависимости команды CLI.
// PostgreSQL подключается, только если настроен; без неё настройки живут в файле.
func openApp(ctx context.Context, c *cli.Command) (*app, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	logCfg := *cfg
	if !c.Bool("verbose") {
		logCfg.LogLevel = slog.LevelWarn
	}
	logger := config.NewLogger(&logCfg, os.Stderr)

	bundle, err := i18n.Load(cfg.DefaultLang, logger)
	if err != nil {
		return nil, err
	}

	st, err := storage.OpenFile(cfg.StoragePath)
	if err != nil {
		return nil, err
	}
	decoder, err := newDecoder(cfg, logger)
	if err != nil {
		return nil, err
	}
	store := session.NewStore(st, decoder, logger)
	store.Restore(ctx)

	client, err := apiclient.New(cfg.BackendURL, cfg.RequestTimeout, cfg.BackendCACert, logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		bundle:   bundle,
		storage:  st,
		store:    store,
		client:   client.WithCredentials(store),
		entities: service.NewEntityService(entity.DefaultRegistry(), cfg.FanoutLimit, logger),
	}

	var (
		repo   repository.PreferencesRepository
		runner *repository.TxRunner
	)
	if cfg.DatabaseEnabled() {
		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			// Настройки не критичны: команда продолжает работу без базы
			logger.Warn("PostgreSQL недоступна, настройки только локальные",
				slog.String("error", err.Error()),
			)
		} else {
			a.pool = pool
			repo = repository.NewPreferencesRepository(pool)
			runner = repository.NewTxRunner(pool)
		}
	}
	a.prefs = service.NewPreferencesService(repo, runner, logger)

	a.lang = a.resolveLang(ctx, c)
	return a, nil
}

// resolveLang: --lang, затем язык из настроек пользователя, затем TA_DEFAULT_LANG.
func (a *app) resolveLang(ctx context.Context, c *cli.Command) string {
	if lang := strings.ToLower(c.String("lang")); i18n.IsSupported(lang) {
		return lang
	}
	if lang, ok := a.prefs.Language(ctx, a.store.Current()); ok {
		return lang
	}
	return a.cfg.DefaultLang
}

// Close освобождает ресурсы команды.
func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// session возвращает активную сессию или ErrNoSession.
func (a *app) session() (*session.Session, error) {
	sess := a.store.Current()
	if !sess.Authenticated() {
		return nil, service.ErrNoSession
	}
	return sess, nil
}

// translate переводит ключ каталога на язык команды.
func (a *app) translate(key string, args ...any) string {
	if len(args) == 0 {
		return a.bundle.Translate(a.lang, key)
	}
	return a.bundle.Translatef(a.lang, key, args...)
}

// withApp оборачивает действие команды: открывает и закрывает app.
func withApp(action func(ctx context.Context, c *cli.Command, a *app) error) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		a, err := openApp(ctx, c)
		if err != nil {
			return fmt.Errorf("инициализация: %w", err)
		}
		defer a.Close()
		return action(ctx, c, a)
	}
}
