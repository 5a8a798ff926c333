package server

import (
	"github.com/rs/zerolog"

	"mermaid-checker-mcp/internal/greeting"
	"mermaid-checker-mcp/internal/mermaid"
	"mermaid-checker-mcp/internal/tools"
	"mermaid-checker-mcp/internal/tools/diagram"
	"mermaid-checker-mcp/internal/tools/hello"
	"mermaid-checker-mcp/internal/tools/retrieval"
)

// NewToolRegistry builds the tool catalog shared by both transports.
func NewToolRegistry(logger zerolog.Logger) (*tools.Registry, error) {
	index := retrieval.Placeholder{}

	return tools.NewRegistry(logger,
		hello.NewTool(greeting.NewFormatter()),
		diagram.NewTool(mermaid.NewValidator()),
		retrieval.NewSearchTool(index),
		retrieval.NewFetchTool(index),
	)
}
