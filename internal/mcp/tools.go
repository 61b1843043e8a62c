package mcp

import "github.com/mark3labs/mcp-go/mcp"

// dayChunkSchema describes one element of a chunks array.
var dayChunkSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"date": map[string]any{"type": "string"},
		"messages": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"date":   map[string]any{"type": "string"},
					"time":   map[string]any{"type": "string"},
					"author": map[string]any{"type": "string"},
					"text":   map[string]any{"type": "string"},
				},
			},
		},
	},
}

var processToolDef = mcp.NewTool("chat_process",
	mcp.WithDescription("Analyse a batch of up to 10 day chunks of one conversation. "+
		"Chunks already analysed are served from the cache; results come back in chunk order."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Conversation name")),
	mcp.WithNumber("start", mcp.Description("Conversation-wide index of the first chunk (default 0)"), mcp.Min(0)),
	mcp.WithArray("chunks", mcp.Required(), mcp.Description("Day chunks, at most 10"), mcp.Items(dayChunkSchema)),
)

var runToolDef = mcp.NewTool("chat_run",
	mcp.WithDescription("Backfill a saved import batch by batch, stopping at the first failure."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Import name")),
	mcp.WithNumber("start", mcp.Description("First chunk index (default 0)"), mcp.Min(0)),
	mcp.WithBoolean("resume", mcp.Description("Start after the chunks already cached")),
	mcp.WithNumber("limit", mcp.Description("Maximum chunks to walk (default: all)"), mcp.Min(0)),
	mcp.WithNumber("batch_size", mcp.Description("Chunks per batch, 1-10 (default: configured batch_size)"), mcp.Min(0), mcp.Max(10)),
	mcp.WithNumber("min_scenes", mcp.Description("Stop once the cached results hold this many scenes"), mcp.Min(0)),
)

var cacheToolDef = mcp.NewTool("chat_cache",
	mcp.WithDescription("Return every cached result of a conversation by chunk index."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Conversation name")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var listToolDef = mcp.NewTool("chat_list",
	mcp.WithDescription("List saved imports and cached conversations with their chunk counts."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var deleteToolDef = mcp.NewTool("chat_delete",
	mcp.WithDescription("Purge a conversation's cached results and, unless keep_import is set, its saved import."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Conversation name")),
	mcp.WithBoolean("keep_import", mcp.Description("Keep the saved import")),
	mcp.WithDestructiveHintAnnotation(true),
)

var importsLoadToolDef = mcp.NewTool("imports_load",
	mcp.WithDescription("Return the saved import list."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var importsSaveToolDef = mcp.NewTool("imports_save",
	mcp.WithDescription("Replace the saved import list."),
	mcp.WithArray("imports", mcp.Required(), mcp.Description("Imports as {name, chunks}"),
		mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":   map[string]any{"type": "string"},
				"chunks": map[string]any{"type": "array", "items": dayChunkSchema},
			},
		})),
	mcp.WithDestructiveHintAnnotation(true),
)

var importsAddToolDef = mcp.NewTool("imports_add",
	mcp.WithDescription("Parse a chat export (.txt or .zip) from the exports directory and save it as an import."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Export file path")),
	mcp.WithString("name", mcp.Description("Conversation name (default: file name)")),
	mcp.WithString("mode", mcp.Description("Collision mode"), mcp.Enum("error", "replace")),
)

var analysisLoadToolDef = mcp.NewTool("analysis_load",
	mcp.WithDescription("Return the recall analysis document."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var analysisSaveToolDef = mcp.NewTool("analysis_save",
	mcp.WithDescription("Replace the recall analysis document."),
	mcp.WithObject("analysis", mcp.Required(), mcp.Description(`Document, e.g. {"saved_memories": {...}}`)),
)
