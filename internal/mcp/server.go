package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/chunkwise/internal/ops"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"chat_process": {
		def:     processToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProcess },
	},
	"chat_run": {
		def:     runToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRun },
	},
	"chat_cache": {
		def:     cacheToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCache },
	},
	"chat_list": {
		def:     listToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"chat_delete": {
		def:     deleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDelete },
	},
	"imports_load": {
		def:     importsLoadToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleImportsLoad },
	},
	"imports_save": {
		def:     importsSaveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleImportsSave },
	},
	"imports_add": {
		def:     importsAddToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleImportsAdd },
	},
	"analysis_load": {
		def:     analysisLoadToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAnalysisLoad },
	},
	"analysis_save": {
		def:     analysisSaveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAnalysisSave },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with the chunkwise tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(deps *ops.Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"chunkwise",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(deps)

	disabled := make(map[string]bool)
	if deps.Config != nil {
		for _, name := range deps.Config.DisabledTools {
			disabled[name] = true
		}
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(deps *ops.Deps, version string) error {
	s := NewServer(deps, version)
	return server.ServeStdio(s)
}
