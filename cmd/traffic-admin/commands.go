// commands.go — команды CLI консоли.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/bigkaa/trafficadmin/internal/apperr"
	"github.com/bigkaa/trafficadmin/internal/chat"
	"github.com/bigkaa/trafficadmin/internal/entity"
	"github.com/bigkaa/trafficadmin/internal/service"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Войти и сохранить сессию",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "пароль (по умолчанию читается из stdin)"},
		},
		Action: withApp(func(ctx context.Context, c *cli.Command, a *app) error {
			password := c.String("password")
			if !c.IsSet("password") {
				var err error
				if password, err = readLine(os.Stdin, os.Stderr, "Password: "); err != nil {
					return err
				}
			}

			sess, err := service.NewAuthService(a.client, a.store, a.logger).Login(ctx, c.String("username"), password)
			if err != nil {
				return err
			}
			fmt.Printf("%s (%s)\n", sess.UserName, sess.PrimaryRole)
			return nil
		}),
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Очистить сохранённую сессию (тема оформления сохраняется)",
		Action: withApp(func(_ context.Context, _ *cli.Command, a *app) error {
			service.NewAuthService(a.client, a.store, a.logger).Logout()
			fmt.Println(a.translate("logout.success"))
			return nil
		}),
	}
}

func registerCommand() *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "Зарегистрировать пользователя",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Required: true},
			&cli.StringFlag{Name: "confirm", Required: true, Usage: "повтор пароля"},
			&cli.StringFlag{Name: "role", Value: "USER"},
		},
		Action: withApp(func(ctx context.Context, c *cli.Command, a *app) error {
			err := service.NewAuthService(a.client, a.store, a.logger).Register(ctx, service.RegisterInput{
				Username: c.String("username"),
				Password: c.String("password"),
				Confirm:  c.String("confirm"),
				Role:     c.String("role"),
			})
			if err != nil {
				return err
			}
			fmt.Println(a.translate("register.success"))
			return nil
		}),
	}
}

func whoamiCommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Показать текущую сессию",
		Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "вывод в JSON"}},
		Action: withApp(func(_ context.Context, c *cli.Command, a *app) error {
			sess, err := a.session()
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(sess)
			}
			printKV([][2]string{
				{"user", sess.UserName},
				{"email", sess.UserEmail},
				{"user_id", dash(sess.UserID)},
				{"display_name", dash(sess.DisplayName)},
				{"role", sess.PrimaryRole.String()},
				{"roles", dash(strings.Join(sess.EffectiveRoles().Strings(), ","))},
				{"storage", a.storage.Path()},
			})
			return nil
		}),
	}
}

func entitiesCommand() *cli.Command {
	jsonFlag := &cli.BoolFlag{Name: "json", Usage: "вывод в JSON"}
	setFlag := &cli.StringSliceFlag{Name: "set", Aliases: []string{"s"}, Usage: "значение поля: field=value (можно повторять)"}

	return &cli.Command{
		Name:  "entities",
		Usage: "Экраны сущностей: просмотр и изменение записей",
		Commands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "Без аргумента — доступные сущности, с ключом — записи сущности",
				ArgsUsage: "[KEY]",
				Flags:     []cli.Flag{&cli.StringFlag{Name: "q", Usage: "строка поиска"}, jsonFlag},
				Action: withApp(func(ctx context.Context, c *cli.Command, a *app) error {
					if c.Args().Len() == 0 {
						return listEntities(c, a)
					}
					screen, err := a.screen(c.Args().First())
					if err != nil {
						return err
					}
					rows, err := screen.List(ctx, c.String("q"))
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(rows)
					}
					printEntityTable(screen.Table())
					return nil
				}),
			},
			{
				Name:      "show",
				Usage:     "Показать запись в виде формы",
				ArgsUsage: "KEY ID",
				Flags:     []cli.Flag{jsonFlag},
				Action: withApp(func(ctx context.Context, c *cli.Command, a *app) error {
					key, id, err := keyAndID(c)
					if err != nil {
						return err
					}
					screen, err := a.screen(key)
					if err != nil {
						return err
					}
					if _, err := screen.List(ctx, ""); err != nil {
						return err
					}
					rec, err := screen.Find(id)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(rec)
					}
					printForm(screen.Form(rec))
					return nil
				}),
			},
			{
				Name:      "create",
				Usage:     "Создать запись",
				ArgsUsage: "KEY",
				Flags:     []cli.Flag{setFlag},
				Action: withApp(func(ctx context.Context, c *cli.Command, a *app) error {
					if c.Args().Len() != 1 {
						return apperr.Validation("usage: entities create KEY --set field=value")
					}
					form, err := parseAssignments(c.StringSlice("set"))
					if err != nil {
						return err
					}
					screen, err := a.screen(c.Args().First())
					if err != nil {
						return err
					}
					if _, err := screen.Create(ctx, form); err != nil {
						return err
					}
					printEntityTable(screen.Table())
					return nil
				}),
			},
			{
				Name:      "update",
				Usage:     "Изменить запись",
				ArgsUsage: "KEY ID",
				Flags:     []cli.Flag{setFlag},
				Action: withApp(func(ctx context.Context, c *cli.Command, a *app) error {
					key, id, err := keyAndID(c)
					if err != nil {
						return err
					}
					form, err := parseAssignments(c.StringSlice("set"))
					if err != nil {
						return err
					}
					screen, err := a.screen(key)
					if err != nil {
						return err
					}
					if _, err := screen.List(ctx, ""); err != nil {
						return err
					}
					rec, err := screen.Find(id)
					if err != nil {
						return err
					}
					if _, err := screen.Update(ctx, rec, form); err != nil {
						return err
					}
					printEntityTable(screen.Table())
					return nil
				}),
			},
			{
				Name:      "delete",
				Usage:     "Удалить запись после подтверждения",
				ArgsUsage: "KEY ID",
				Flags:     []cli.Flag{&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "не спрашивать подтверждение"}},
				Action: withApp(func(ctx context.Context, c *cli.Command, a *app) error {
					key, id, err := keyAndID(c)
					if err != nil {
						return err
					}
					screen, err := a.screen(key)
					if err != nil {
						return err
					}
					if _, err := screen.List(ctx, ""); err != nil {
						return err
					}
					rec, err := screen.Find(id)
					if err != nil {
						return err
					}

					var confirm service.Confirmer = stdinConfirmer(a, os.Stdin, os.Stderr)
					if c.Bool("yes") {
						confirm = service.ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })
					}
					deleted, _, err := screen.Delete(ctx, rec, confirm)
					if err != nil {
						return err
					}
					if deleted {
						printEntityTable(screen.Table())
					}
					return nil
				}),
			},
		},
	}
}

func appealsCommand() *cli.Command {
	review := func(approve bool) cli.ActionFunc {
		return withApp(func(ctx context.Context, c *cli.Command, a *app) error {
			if c.Args().Len() != 1 {
				return apperr.Validation("usage: appeals approve|reject ID --result TEXT")
			}
			screen, err := a.screen("appeals")
			if err != nil {
				return err
			}
			if _, err := screen.List(ctx, ""); err != nil {
				return err
			}
			appeal, err := screen.Find(c.Args().First())
			if err != nil {
				return err
			}

			appeals := service.NewAppealService(screen, a.logger)
			if approve {
				_, err = appeals.Approve(ctx, appeal, c.String("result"))
			} else {
				_, err = appeals.Reject(ctx, appeal, c.String("result"))
			}
			if err != nil {
				return err
			}
			printEntityTable(screen.Table())
			return nil
		})
	}
	resultFlag := &cli.StringFlag{Name: "result", Aliases: []string{"r"}, Usage: "результат рассмотрения"}

	return &cli.Command{
		Name:  "appeals",
		Usage: "Рассмотрение жалоб",
		Commands: []*cli.Command{
			{Name: "approve", Usage: "Принять жалобу", ArgsUsage: "ID", Flags: []cli.Flag{resultFlag}, Action: review(true)},
			{Name: "reject", Usage: "Отклонить жалобу", ArgsUsage: "ID", Flags: []cli.Flag{resultFlag}, Action: review(false)},
		},
	}
}

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:      "chat",
		Usage:     "Задать вопрос ассистенту; ответ печатается по мере получения",
		ArgsUsage: "MESSAGE",
		Flags:     []cli.Flag{&cli.BoolFlag{Name: "web-search", Usage: "разрешить поиск в интернете"}},
		Action: withApp(func(ctx context.Context, c *cli.Command, a *app) error {
			if _, err := a.session(); err != nil {
				return err
			}
			chats := service.NewChatService(a.cfg.ChatPath, a.logger)
			defer chats.Close()

			sub, err := chats.Send(ctx, cliChatOwner, a.client, chat.Request{
				Message:   strings.Join(c.Args().Slice(), " "),
				WebSearch: c.Bool("web-search"),
			})
			if err != nil {
				return err
			}
			for u := range sub.Updates() {
				fmt.Print(u.Chunk)
			}
			fmt.Println()
			return sub.Err()
		}),
	}
}

func logsCommand() *cli.Command {
	return &cli.Command{
		Name:  "logs",
		Usage: "Обзор системных журналов",
		Flags: []cli.Flag{&cli.IntFlag{Name: "limit", Value: service.DefaultRecentLogsLimit, Usage: "число последних записей"}},
		Action: withApp(func(ctx context.Context, c *cli.Command, a *app) error {
			if _, err := a.session(); err != nil {
				return err
			}
			overview := service.NewSystemLogService(int(c.Int("limit")), a.logger).Overview(ctx, a.client)

			printKV([][2]string{
				{"login_logs", formatCount(overview.Counts.LoginLogCount)},
				{"operation_logs", formatCount(overview.Counts.OperationLogCount)},
				{"request_history", formatCount(overview.Counts.RequestHistoryCount)},
			})
			registry := a.entities.Registry()
			if cfg, ok := registry.Get("loginLogs"); ok {
				fmt.Println()
				printEntityTable(entity.RenderTable(cfg, overview.RecentLogins))
			}
			if cfg, ok := registry.Get("operationLogs"); ok {
				fmt.Println()
				printEntityTable(entity.RenderTable(cfg, overview.RecentOperations))
			}
			for panel, err := range overview.Errors {
				fmt.Fprintf(os.Stderr, "%s: %s\n", panel, service.InlineMessage(a.bundle, err, a.lang))
			}
			return nil
		}),
	}
}

func themeCommand() *cli.Command {
	return &cli.Command{
		Name:      "theme",
		Usage:     "Показать или сменить тему оформления: light, dark, system",
		ArgsUsage: "[THEME]",
		Action: withApp(func(ctx context.Context, c *cli.Command, a *app) error {
			sess := a.store.Current()
			if c.Args().Len() == 0 {
				fmt.Println(a.prefs.Theme(ctx, a.storage, sess))
				return nil
			}
			theme, err := a.prefs.SetTheme(ctx, a.storage, sess, c.Args().First())
			if err != nil {
				return err
			}
			fmt.Println(theme)
			return nil
		}),
	}
}

func prefsCommand() *cli.Command {
	return &cli.Command{
		Name:  "prefs",
		Usage: "Настройки пользователя в PostgreSQL",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Показать сохранённые настройки",
				Action: withApp(func(ctx context.Context, _ *cli.Command, a *app) error {
					sess, err := a.session()
					if err != nil {
						return err
					}
					values, err := a.prefs.All(ctx, sess)
					if err != nil {
						return err
					}
					printKV(sortedPairs(values))
					return nil
				}),
			},
			{
				Name:      "language",
				Usage:     "Сохранить язык интерфейса: en, ru, zh",
				ArgsUsage: "LANG",
				Action: withApp(func(ctx context.Context, c *cli.Command, a *app) error {
					return a.prefs.SetLanguage(ctx, a.store.Current(), c.Args().First())
				}),
			},
			{
				Name:      "import",
				Usage:     "Сохранить настройки целиком: все или ни одной",
				ArgsUsage: "key=value...",
				Action: withApp(func(ctx context.Context, c *cli.Command, a *app) error {
					sess, err := a.session()
					if err != nil {
						return err
					}
					form, err := parseAssignments(c.Args().Slice())
					if err != nil {
						return err
					}
					values := make(map[string]string, len(form))
					for k, v := range form {
						values[k] = fmt.Sprint(v)
					}
					if !a.prefs.Persistent() {
						fmt.Fprintln(os.Stderr, "PostgreSQL не настроена, настройки не сохранены")
						return nil
					}
					return a.prefs.Import(ctx, sess, values)
				}),
			},
		},
	}
}

// screen открывает экран сущности для текущей сессии.
func (a *app) screen(key string) (*service.CrudScreen, error) {
	sess, err := a.session()
	if err != nil {
		return nil, err
	}
	return a.entities.Screen(key, sess, a.client)
}

func listEntities(c *cli.Command, a *app) error {
	sess, err := a.session()
	if err != nil {
		return err
	}
	available := a.entities.Available(sess)
	if c.Bool("json") {
		return printJSON(available)
	}
	rows := make([][]string, 0, len(available))
	for _, cfg := range available {
		rows = append(rows, []string{cfg.Key, cfg.Label, cfg.Route})
	}
	printTable([]string{"KEY", "LABEL", "ROUTE"}, rows)
	return nil
}

// keyAndID читает аргументы KEY ID.
func keyAndID(c *cli.Command) (key, id string, err error) {
	if c.Args().Len() != 2 {
		return "", "", apperr.Validation("usage: " + c.FullName() + " KEY ID")
	}
	return c.Args().Get(0), c.Args().Get(1), nil
}

// parseAssignments разбирает пары field=value. Значение может быть пустым.
func parseAssignments(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, apperr.Validation(fmt.Sprintf("ожидалось field=value, получено %q", p))
		}
		out[key] = value
	}
	return out, nil
}

// stdinConfirmer спрашивает подтверждение удаления в терминале.
func stdinConfirmer(a *app, in io.Reader, out io.Writer) service.Confirmer {
	return service.ConfirmFunc(func(_ context.Context, prompt string) (bool, error) {
		answer, err := readLine(in, out, fmt.Sprintf("%s\n%s [y/N]: ", prompt, a.translate("confirm.delete")))
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "y", "yes", "д", "да":
			return true, nil
		}
		return false, nil
	})
}

// readLine печатает prompt и читает строку без перевода строки.
func readLine(in io.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("чтение ввода: %w", err)
	}
	return strings.TrimSpace(line), nil
}
