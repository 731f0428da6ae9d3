package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/autolink/internal"
	pkgconfig "github.com/starford/autolink/pkg/config"
)

var version = "dev"

type entryFunc func(ctx context.Context, opts ...internal.Option) error

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadIfExists(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cmd.IsSet("vault") {
		cfg.Vault.Path = cmd.String("vault")
	}
	if cmd.IsSet("case-insensitive") {
		cfg.Linker.CaseInsensitive = cmd.Bool("case-insensitive")
	}
	if cmd.IsSet("link-to-self") {
		cfg.Linker.LinkToSelf = cmd.Bool("link-to-self")
	}
	return cfg, nil
}

// action wraps an entry point so every command loads the config the same way.
func action(entry entryFunc, extra func(cmd *cli.Command) []internal.Option) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		opts := []internal.Option{
			internal.WithConfig(cfg),
			internal.WithVersion(version),
		}
		if extra != nil {
			opts = append(opts, extra(cmd)...)
		}

		if err := entry(ctx, opts...); err != nil {
			return fmt.Errorf("app run error: %w", err)
		}
		return nil
	}
}

func main() {
	serve := action(internal.Run, nil)

	cmd := &cli.Command{
		Name:    "autolink",
		Usage:   "Find mentions of note titles and aliases in a Markdown vault and turn them into wiki links",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "vault",
				Usage:   "Vault directory, overrides the config file",
				Sources: cli.EnvVars("AUTOLINK_VAULT"),
			},
			&cli.BoolFlag{
				Name:  "case-insensitive",
				Usage: "Match titles and aliases regardless of case",
			},
			&cli.BoolFlag{
				Name:  "link-to-self",
				Usage: "Keep references from a note to itself",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API and watch the vault",
				Action: serve,
			},
			{
				Name:  "scan",
				Usage: "Resolve the vault once and print the references",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Print the result as JSON"},
					&cli.BoolFlag{Name: "save", Usage: "Store the run in the index"},
				},
				Action: action(internal.Scan, func(cmd *cli.Command) []internal.Option {
					return []internal.Option{
						internal.WithJSON(cmd.Bool("json")),
						internal.WithSave(cmd.Bool("save")),
					}
				}),
			},
			{
				Name:      "apply",
				Usage:     "Insert wiki links for the references found in one note or the whole vault",
				ArgsUsage: "[note path]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "dry-run", Usage: "Report the links without writing any note"},
				},
				Action: action(internal.Apply, func(cmd *cli.Command) []internal.Option {
					return []internal.Option{
						internal.WithDryRun(cmd.Bool("dry-run")),
						internal.WithNotePath(cmd.Args().First()),
					}
				}),
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools over stdio",
				Action: action(internal.ServeMCP, nil),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
