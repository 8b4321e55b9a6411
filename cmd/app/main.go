package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/tenantdesk/internal"
	"github.com/starford/tenantdesk/internal/spreadsheet"
	"github.com/starford/tenantdesk/internal/storage"
	pkgconfig "github.com/starford/tenantdesk/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

func parseExcel(_ context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("usage: parse-excel <file.xlsx>")
	}
	res, err := spreadsheet.ParseFile(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func seed(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("usage: seed <fixture.yaml>")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fixture, err := storage.LoadFixture(path)
	if err != nil {
		return err
	}
	stats, err := internal.Seed(ctx, cfg, fixture, slog.Default())
	if err != nil {
		return err
	}
	slog.Info("Seed complete",
		slog.String("sqlite_path", cfg.Store.SQLite.Path),
		slog.Int("tenants", stats.Tenants),
		slog.Int("objects", stats.Objects),
		slog.Int("records", stats.Records))
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "tenantdesk",
		Usage:  "Multi-tenant records service with draft approval propagation, Excel import and PDF generation",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP server",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: serveMCP,
			},
			{
				Name:      "parse-excel",
				Usage:     "Parse the first sheet of a workbook and print it as JSON",
				ArgsUsage: "<file.xlsx>",
				Action:    parseExcel,
			},
			{
				Name:      "seed",
				Usage:     "Load tenants, objects and records from a YAML fixture into the SQLite store",
				ArgsUsage: "<fixture.yaml>",
				Action:    seed,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
