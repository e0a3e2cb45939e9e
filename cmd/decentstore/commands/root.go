package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/decentstore/internal/app"
	"github.com/florianilch/decentstore/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	return rootCommand(os.Stdout, os.Environ).Run(ctx, args)
}

func rootCommand(out io.Writer, environ func() []string) *cli.Command {
	r := &runner{out: out, environ: environ}

	return &cli.Command{
		Name:   "decentstore",
		Usage:  "Key-value storage synced through your own storage provider",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json|otel)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "prefix",
				Usage: "root namespace of stored keys",
				Value: app.DefaultConfigPrefix,
			},
			&cli.StringFlag{
				Name:  "store--backend",
				Usage: "data store backend (file|sqlite|keyring|memory)",
				Value: string(app.DefaultConfigStoreBackend),
			},
			&cli.StringFlag{
				Name:  "auth-store--backend",
				Usage: "token store backend (file|sqlite|keyring|memory)",
				Value: string(app.DefaultConfigAuthBackend),
			},
			&cli.StringFlag{
				Name:  "provider--type",
				Usage: "storage provider (dropbox|google_drive|file_system)",
			},
			&cli.StringSliceFlag{
				Name:    flagOption,
				Aliases: []string{"o"},
				Usage:   "provider option as key=value, repeatable",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "authorize the configured provider",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "callback--host",
						Usage: "callback server host",
						Value: app.DefaultConfigCallbackHost,
					},
					&cli.IntFlag{
						Name:  "callback--port",
						Usage: "callback server port",
						Value: app.DefaultConfigCallbackPort,
					},
					&cli.DurationFlag{
						Name:  "callback--login-timeout",
						Usage: "how long to wait for the authorization redirect",
						Value: app.DefaultConfigLoginTimeout,
					},
				},
				Action: r.action(loginAction),
			},
			{
				Name:   "status",
				Usage:  "show provider and authorization status",
				Action: r.action(statusAction),
			},
			{
				Name:      "get",
				Usage:     "print the value of a key",
				ArgsUsage: "<key>",
				Action:    r.action(getAction),
			},
			{
				Name:      "set",
				Usage:     "store a value",
				ArgsUsage: "<key> <value>",
				Action:    r.action(setAction),
			},
			{
				Name:      "rm",
				Usage:     "remove a key",
				ArgsUsage: "<key>",
				Action:    r.action(removeAction),
			},
			{
				Name:   "keys",
				Usage:  "list stored keys",
				Action: r.action(keysAction),
			},
			{
				Name:   "clear",
				Usage:  "remove every key under the prefix, tokens included",
				Action: r.action(clearAction),
			},
		},
	}
}

// runner carries what every action needs besides the parsed command.
type runner struct {
	out     io.Writer
	environ func() []string
}

type actionFunc func(ctx context.Context, cmd *cli.Command, a *app.App, out io.Writer) error

// action loads config, sets up logging, and builds the App around fn.
func (r *runner) action(fn actionFunc) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) (err error) {
		cfg, err := loadConfig(cmd.String(flagConfig), cmd, r.environ)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Set up observability before creating app
		shutdown, err := observability.Instrument(ctx, cfg.LogLevel, string(cfg.LogFormat))
		if err != nil {
			return fmt.Errorf("failed to set up observability layer: %w", err)
		}
		defer func() {
			if serr := shutdown(context.Background()); serr != nil {
				err = errors.Join(err, serr)
			}
		}()

		application, err := app.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to create app: %w", err)
		}
		defer func() {
			err = errors.Join(err, application.Close())
		}()

		return fn(ctx, cmd, application, r.out)
	}
}

func loginAction(ctx context.Context, _ *cli.Command, a *app.App, out io.Writer) error {
	if err := a.Login(ctx); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	_, err := fmt.Fprintf(out, "Authorized %s.\n", a.Provider())
	return err
}

func statusAction(ctx context.Context, _ *cli.Command, a *app.App, out io.Writer) error {
	if a.Provider() == "" {
		_, err := fmt.Fprintln(out, "provider: none (local only)")
		return err
	}

	if err := a.Resume(ctx); err != nil {
		slog.WarnContext(ctx, "could not resume session", "provider", a.Provider(), "error", err)
	}

	_, err := fmt.Fprintf(out, "provider: %s\nauthenticated: %t\n", a.Provider(), a.Storage().Authenticated())
	return err
}

func getAction(ctx context.Context, cmd *cli.Command, a *app.App, out io.Writer) error {
	key, err := args(cmd, 1)
	if err != nil {
		return err
	}
	value, ok, err := a.Storage().Get(ctx, key[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("key %q not found", key[0])
	}
	_, err = fmt.Fprintln(out, value)
	return err
}

func setAction(ctx context.Context, cmd *cli.Command, a *app.App, _ io.Writer) error {
	kv, err := args(cmd, 2)
	if err != nil {
		return err
	}
	return a.Storage().Set(ctx, kv[0], kv[1])
}

func removeAction(ctx context.Context, cmd *cli.Command, a *app.App, _ io.Writer) error {
	key, err := args(cmd, 1)
	if err != nil {
		return err
	}
	return a.Storage().Remove(ctx, key[0])
}

func keysAction(ctx context.Context, _ *cli.Command, a *app.App, out io.Writer) error {
	keys, err := a.Storage().Keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if _, err := fmt.Fprintln(out, k); err != nil {
			return err
		}
	}
	return nil
}

func clearAction(ctx context.Context, _ *cli.Command, a *app.App, _ io.Writer) error {
	return a.Storage().Clear(ctx)
}

func args(cmd *cli.Command, n int) ([]string, error) {
	if cmd.NArg() != n {
		return nil, fmt.Errorf("%s: expected %d argument(s), got %d", cmd.Name, n, cmd.NArg())
	}
	return cmd.Args().Slice(), nil
}
