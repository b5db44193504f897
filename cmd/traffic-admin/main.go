// Точка входа Traffic Admin — консоль системы учёта нарушений ПДД.
// serve запускает BFF для браузерного клиента, остальные команды работают
// с backend напрямую и хранят сессию в файле.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/bigkaa/trafficadmin/internal/apperr"
	"github.com/bigkaa/trafficadmin/internal/config"
	"github.com/bigkaa/trafficadmin/internal/i18n"
	"github.com/bigkaa/trafficadmin/internal/service"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:    "traffic-admin",
		Usage:   "Консоль системы учёта нарушений ПДД: BFF-сервер и CLI",
		Version: config.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "backend", Usage: "адрес backend REST API (вместо TA_BACKEND_URL)"},
			&cli.StringFlag{Name: "storage", Usage: "файл хранилища сессии (вместо TA_STORAGE_PATH)"},
			&cli.StringFlag{Name: "lang", Usage: "язык сообщений: en, ru, zh"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "подробные логи в stderr"},
		},
		Commands: []*cli.Command{
			serveCommand(),
			loginCommand(),
			logoutCommand(),
			registerCommand(),
			whoamiCommand(),
			entitiesCommand(),
			appealsCommand(),
			chatCommand(),
			logsCommand(),
			themeCommand(),
			prefsCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := root.Run(ctx, args)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, describeError(err, errorLang(args)))
		os.Exit(1)
	}
}

// describeError переводит ошибки консоли в сообщение для пользователя,
// остальные ошибки печатаются как есть.
func describeError(err error, lang string) string {
	if apperr.KindOf(err) == "" &&
		!errors.Is(err, service.ErrNoSession) &&
		!errors.Is(err, service.ErrNotFound) &&
		!errors.Is(err, service.ErrUnknownEntity) &&
		!errors.Is(err, service.ErrValidation) {
		return err.Error()
	}
	return service.InlineMessage(i18n.MustLoad(i18n.LangEnglish), err, lang)
}

// errorLang выбирает язык сообщения об ошибке: --lang, затем TA_DEFAULT_LANG.
func errorLang(args []string) string {
	for i, a := range args {
		if a == "--lang" && i+1 < len(args) && i18n.IsSupported(args[i+1]) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(a, "--lang="); ok && i18n.IsSupported(v) {
			return v
		}
	}
	if lang := os.Getenv("TA_DEFAULT_LANG"); i18n.IsSupported(lang) {
		return lang
	}
	return i18n.LangEnglish
}
