// Command newsletterctl is the operator CLI: list campaigns, send or test
// one, and inspect its results.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/ignite/newsletter/internal/app"
	"github.com/ignite/newsletter/internal/config"
	"github.com/ignite/newsletter/internal/pkg/logger"
)

// Flags carries global flag values and the services built from them.
type Flags struct {
	ConfigPath string
	LogLevel   string
	App        *app.App
}

func main() {
	flags := &Flags{}

	root := &cli.Command{
		Name:      "newsletterctl",
		Usage:     "Manage newsletter campaigns",
		UsageText: "newsletterctl [global options] command [command options]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("CONFIG_PATH"),
				Value:       "config/config.yaml",
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Sources:     cli.EnvVars("LOG_LEVEL"),
				Value:       "warn",
				Destination: &flags.LogLevel,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			if err := logger.Setup(flags.LogLevel, "console"); err != nil {
				return ctx, err
			}
			cfg, err := config.LoadFromEnv(flags.ConfigPath)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			if err := cfg.RequireDatabase(); err != nil {
				return ctx, err
			}
			a, err := app.New(ctx, cfg)
			if err != nil {
				return ctx, err
			}
			flags.App = a
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if flags.App != nil {
				flags.App.Close()
			}
			return nil
		},
	}

	for _, r := range []registrar{
		&listCmd{flags: flags},
		&sendCmd{flags: flags},
		&statsCmd{flags: flags},
		&cancelCmd{flags: flags},
		&reconcileCmd{flags: flags},
		&archiveCmd{flags: flags},
		&digestCmd{flags: flags},
	} {
		root = r.Register(root)
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type registrar interface {
	Register(app *cli.Command) *cli.Command
}
