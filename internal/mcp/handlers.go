package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/chunkwise/internal/chat"
	"github.com/hpungsan/chunkwise/internal/errors"
	"github.com/hpungsan/chunkwise/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	deps *ops.Deps
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps *ops.Deps) *Handlers {
	return &Handlers{deps: deps}
}

// Request types for each tool

// ProcessRequest represents the arguments for chat_process.
type ProcessRequest struct {
	Name   string          `json:"name"`
	Start  int             `json:"start,omitempty"`
	Chunks []chat.DayChunk `json:"chunks"`
}

// RunRequest represents the arguments for chat_run.
type RunRequest struct {
	Name      string `json:"name"`
	Start     int    `json:"start,omitempty"`
	Resume    bool   `json:"resume,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	BatchSize int    `json:"batch_size,omitempty"`
	MinScenes int    `json:"min_scenes,omitempty"`
}

// NameRequest represents the arguments for tools addressing one conversation.
type NameRequest struct {
	Name string `json:"name"`
}

// DeleteRequest represents the arguments for chat_delete.
type DeleteRequest struct {
	Name       string `json:"name"`
	KeepImport bool   `json:"keep_import,omitempty"`
}

// ImportsSaveRequest represents the arguments for imports_save.
type ImportsSaveRequest struct {
	Imports []chat.Import `json:"imports"`
}

// ImportsAddRequest represents the arguments for imports_add.
type ImportsAddRequest struct {
	Path string `json:"path"`
	Name string `json:"name,omitempty"`
	Mode string `json:"mode,omitempty"`
}

// AnalysisSaveRequest represents the arguments for analysis_save.
type AnalysisSaveRequest struct {
	Analysis json.RawMessage `json:"analysis"`
}

// HandleProcess handles the chat_process tool call.
func (h *Handlers) HandleProcess(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProcessRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Process(ctx, h.deps, ops.ProcessInput{
		Name:   input.Name,
		Start:  input.Start,
		Chunks: input.Chunks,
	})
	if err != nil {
		if result != nil {
			err = errors.WithDetail(err, "partial", result)
		}
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleRun handles the chat_run tool call.
func (h *Handlers) HandleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RunRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ProcessImport(ctx, h.deps, ops.ProcessImportInput{
		Name:      input.Name,
		Start:     input.Start,
		Resume:    input.Resume,
		Limit:     input.Limit,
		BatchSize: input.BatchSize,
		MinScenes: input.MinScenes,
	})
	if err != nil {
		if result != nil {
			err = errors.WithDetail(err, "partial", result)
		}
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleCache handles the chat_cache tool call.
func (h *Handlers) HandleCache(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[NameRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.LoadCache(ctx, h.deps, ops.LoadCacheInput{Name: input.Name})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleList handles the chat_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.ListChats(ctx, h.deps)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDelete handles the chat_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DeleteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.DeleteChat(ctx, h.deps, ops.DeleteChatInput{
		Name:       input.Name,
		KeepImport: input.KeepImport,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleImportsLoad handles the imports_load tool call.
func (h *Handlers) HandleImportsLoad(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.LoadImports(h.deps)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleImportsSave handles the imports_save tool call.
func (h *Handlers) HandleImportsSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportsSaveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Imports == nil {
		return errorResult(errors.NewInvalidRequest("imports is required")), nil
	}

	result, err := ops.SaveImports(h.deps, ops.SaveImportsInput{Imports: input.Imports})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleImportsAdd handles the imports_add tool call.
func (h *Handlers) HandleImportsAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportsAddRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.AddImport(h.deps, ops.AddImportInput{
		Path: input.Path,
		Name: input.Name,
		Mode: input.Mode,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleAnalysisLoad handles the analysis_load tool call.
func (h *Handlers) HandleAnalysisLoad(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.LoadAnalysis(h.deps)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleAnalysisSave handles the analysis_save tool call.
func (h *Handlers) HandleAnalysisSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AnalysisSaveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := ops.SaveAnalysis(h.deps, ops.SaveAnalysisInput{Analysis: input.Analysis})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if cErr, ok := errors.As(err); ok {
		// Keep any context added by wrapping, e.g. "chunk 2: ..."
		message := cErr.Message
		if error(cErr) != err {
			message = strings.Replace(err.Error(), cErr.Error(), cErr.Message, 1)
		}
		errorObj := map[string]any{
			"code":    cErr.Code,
			"message": message,
			"status":  cErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or driver errors
		if cErr.Code != errors.ErrInternal && cErr.Details != nil {
			errorObj["details"] = cErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
