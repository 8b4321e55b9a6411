package internal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/tenantdesk/internal/mcpserver"
)

// RunMCP serves the MCP tools over stdio until the client disconnects.
// Logs must not go to stdout; pass WithLogOutput(os.Stderr).
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.newLogger()

	c, err := app.build(ctx, logger, nil)
	if err != nil {
		return err
	}
	defer c.close()

	logger.Info("MCP server starting on stdio", slog.String("store_driver", app.config.Store.Driver))
	if err := mcpserver.New(c.svc, c.prop, c.logos, nil).ServeStdio(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
