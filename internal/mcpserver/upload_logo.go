package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/tenantdesk/internal/apperr"
)

func (s *Server) uploadLogo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.logos == nil {
		return mcp.NewToolResultError("logo library is not configured"), nil
	}
	source, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	download, err := s.fetch.Fetch(ctx, source)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	entry, err := s.logos.Import(req.GetString("filename", ""), download)
	switch {
	case errors.Is(err, apperr.ErrAlreadyExists):
		return mcp.NewToolResultError(fmt.Sprintf("logo already exists: %v", err)), nil
	case err != nil:
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(entry), nil
}
