package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/hpungsan/chunkwise/internal/chat"
	"github.com/hpungsan/chunkwise/internal/config"
	"github.com/hpungsan/chunkwise/internal/errors"
	"github.com/hpungsan/chunkwise/internal/kv"
	"github.com/hpungsan/chunkwise/internal/llm"
	"github.com/hpungsan/chunkwise/internal/ops"
)

// fakeService answers each chunk with {"date": ...} and counts calls.
// The chunk dated failDate gets a service error.
type fakeService struct {
	calls    int
	failDate string
}

func (f *fakeService) Complete(_ context.Context, messages []llm.Message) (string, error) {
	f.calls++
	var chunk chat.DayChunk
	if err := json.Unmarshal([]byte(messages[len(messages)-1].Content), &chunk); err != nil {
		return "", err
	}
	if f.failDate != "" && chunk.Date == f.failDate {
		return "", errors.NewExternalService(503, "overloaded")
	}
	return fmt.Sprintf("```json\n{\"date\":%q}\n```", chunk.Date), nil
}

// testSetup creates deps over a temporary data dir for testing.
func testSetup(t *testing.T) (*ops.Deps, *fakeService) {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true // Allow temp dirs in tests

	svc := &fakeService{}
	deps := ops.NewDeps(cfg, dir, kv.NewFileStore(filepath.Join(dir, "cache")), svc, "", zap.NewNop())
	t.Cleanup(func() { deps.Close() })
	return deps, svc
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func chunkArgs(n int) []any {
	chunks := make([]any, n)
	for i := range chunks {
		date := fmt.Sprintf("%02d/03/2024", i+1)
		chunks[i] = map[string]any{
			"date": date,
			"messages": []any{
				map[string]any{"date": date, "time": "10:00", "author": "Alice", "text": "hi"},
			},
		}
	}
	return chunks
}

// TestHandleProcess tests the chat_process handler.
func TestHandleProcess(t *testing.T) {
	deps, svc := testSetup(t)
	h := NewHandlers(deps)
	ctx := context.Background()

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		errorCode string
	}{
		{
			name:      "process batch",
			args:      map[string]any{"name": "alice", "start": 5, "chunks": chunkArgs(3)},
			wantError: false,
		},
		{
			name:      "missing name",
			args:      map[string]any{"chunks": chunkArgs(1)},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{
			name:      "negative start",
			args:      map[string]any{"name": "alice", "start": -1, "chunks": chunkArgs(1)},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{
			name:      "oversize batch",
			args:      map[string]any{"name": "alice", "chunks": chunkArgs(11)},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{
			name:      "chunks of wrong type",
			args:      map[string]any{"name": "alice", "chunks": "nope"},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleProcess(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}

			if tt.wantError {
				if !result.IsError {
					t.Errorf("expected error result, got success")
				}
				if tt.errorCode != "" {
					assertErrorCode(t, result, tt.errorCode)
				}
			} else if result.IsError {
				t.Errorf("expected success, got error: %v", extractErrorMessage(result))
			}
		})
	}

	if svc.calls != 3 {
		t.Errorf("service calls = %d, want 3", svc.calls)
	}
}

func TestHandleProcess_OutputShape(t *testing.T) {
	deps, svc := testSetup(t)
	h := NewHandlers(deps)
	ctx := context.Background()
	req := makeRequest(map[string]any{"name": "alice", "start": 5, "chunks": chunkArgs(2)})

	result, err := h.HandleProcess(ctx, req)
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)

	choices, ok := output["choices"].([]any)
	if !ok || len(choices) != 2 {
		t.Fatalf("choices = %v, want 2 entries", output["choices"])
	}
	first := choices[0].(map[string]any)
	if first["date"] != "01/03/2024" {
		t.Errorf("choices[0] = %v", first)
	}

	// Resubmission is served from the cache.
	if _, err := h.HandleProcess(ctx, req); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if svc.calls != 2 {
		t.Errorf("service calls = %d, want 2", svc.calls)
	}
}

func TestHandleProcess_FailureReportsPartial(t *testing.T) {
	deps, svc := testSetup(t)
	svc.failDate = "02/03/2024"
	h := NewHandlers(deps)

	result, err := h.HandleProcess(context.Background(), makeRequest(map[string]any{"name": "alice", "chunks": chunkArgs(3)}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
	assertErrorCode(t, result, "EXTERNAL_SERVICE_ERROR")

	var payload struct {
		Error struct {
			Details struct {
				Partial struct {
					Choices  []json.RawMessage `json:"choices"`
					Analyzed int               `json:"analyzed"`
				} `json:"partial"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(extractErrorMessage(result)), &payload); err != nil {
		t.Fatalf("failed to unmarshal error: %v", err)
	}
	partial := payload.Error.Details.Partial
	if len(partial.Choices) != 1 || partial.Analyzed != 1 {
		t.Errorf("partial = %+v, want one analysed choice", partial)
	}
}

func TestHandleProcess_Cancelled(t *testing.T) {
	deps, _ := testSetup(t)
	h := NewHandlers(deps)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.HandleProcess(ctx, makeRequest(map[string]any{"name": "alice", "chunks": chunkArgs(2)}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, result, "CANCELLED")
}

func TestHandleRunAndCache(t *testing.T) {
	deps, svc := testSetup(t)
	h := NewHandlers(deps)
	ctx := context.Background()

	var chunks []chat.DayChunk
	if err := remarshal(chunkArgs(12), &chunks); err != nil {
		t.Fatalf("remarshal failed: %v", err)
	}
	if err := deps.Library.SaveImports([]chat.Import{{Name: "alice", Chunks: chunks}}); err != nil {
		t.Fatalf("SaveImports failed: %v", err)
	}

	result, err := h.HandleRun(ctx, makeRequest(map[string]any{"name": "alice", "batch_size": 5}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)
	if output["batches"] != float64(3) || output["next"] != float64(12) || output["complete"] != true {
		t.Errorf("unexpected run output: %v", output)
	}
	if svc.calls != 12 {
		t.Errorf("service calls = %d, want 12", svc.calls)
	}

	result, err = h.HandleCache(ctx, makeRequest(map[string]any{"name": "alice"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output = parseOutput(t, result)
	if output["count"] != float64(12) {
		t.Errorf("count = %v, want 12", output["count"])
	}

	result, err = h.HandleRun(ctx, makeRequest(map[string]any{"name": "bob"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, result, "NOT_FOUND")
}

func TestHandleListAndDelete(t *testing.T) {
	deps, _ := testSetup(t)
	h := NewHandlers(deps)
	ctx := context.Background()

	for _, name := range []string{"alice", "bob"} {
		result, err := h.HandleProcess(ctx, makeRequest(map[string]any{"name": name, "chunks": chunkArgs(2)}))
		if err != nil || result.IsError {
			t.Fatalf("process %s failed: %v %v", name, err, extractErrorMessage(result))
		}
	}

	result, err := h.HandleList(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	chats := parseOutput(t, result)["chats"].([]any)
	if len(chats) != 2 {
		t.Fatalf("chats = %v, want 2", chats)
	}

	result, err = h.HandleDelete(ctx, makeRequest(map[string]any{"name": "alice"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if parseOutput(t, result)["purged"] != float64(2) {
		t.Errorf("purged mismatch: %v", extractErrorMessage(result))
	}

	result, err = h.HandleDelete(ctx, makeRequest(map[string]any{"name": "alice"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, result, "NOT_FOUND")

	result, err = h.HandleCache(ctx, makeRequest(map[string]any{"name": "bob"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if parseOutput(t, result)["count"] != float64(2) {
		t.Error("deleting alice must not touch bob")
	}
}

func TestHandleImports(t *testing.T) {
	deps, _ := testSetup(t)
	h := NewHandlers(deps)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "Alice.txt")
	export := "12/03/2024, 09:16 - Alice: Morning!\n13/03/2024, 10:00 - Bob: Lunch?\n"
	if err := os.WriteFile(path, []byte(export), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	result, err := h.HandleImportsAdd(ctx, makeRequest(map[string]any{"path": path}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)
	if output["name"] != "Alice" || output["chunks"] != float64(2) {
		t.Errorf("unexpected add output: %v", output)
	}

	result, err = h.HandleImportsAdd(ctx, makeRequest(map[string]any{"path": path}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, result, "ALREADY_EXISTS")

	result, err = h.HandleImportsAdd(ctx, makeRequest(map[string]any{"path": path + ".missing.txt"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, result, "FILE_NOT_FOUND")

	result, err = h.HandleImportsLoad(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	imports := parseOutput(t, result)["imports"].([]any)
	if len(imports) != 1 {
		t.Fatalf("imports = %v, want 1", imports)
	}

	result, err = h.HandleImportsSave(ctx, makeRequest(map[string]any{"imports": []any{}}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if parseOutput(t, result)["saved"] != float64(0) {
		t.Error("expected saved=0")
	}

	result, err = h.HandleImportsSave(ctx, makeRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHandleAnalysis(t *testing.T) {
	deps, _ := testSetup(t)
	h := NewHandlers(deps)
	ctx := context.Background()

	result, err := h.HandleAnalysisLoad(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if _, ok := parseOutput(t, result)["analysis"].(map[string]any)["saved_memories"]; !ok {
		t.Error("default analysis should have saved_memories")
	}

	doc := map[string]any{"saved_memories": map[string]any{"12/03/2024": []any{"lunch"}}}
	result, err = h.HandleAnalysisSave(ctx, makeRequest(map[string]any{"analysis": doc}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if parseOutput(t, result)["saved"] != true {
		t.Error("expected saved=true")
	}

	result, err = h.HandleAnalysisSave(ctx, makeRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestServerRegistration(t *testing.T) {
	deps, _ := testSetup(t)

	s := NewServer(deps, "test")
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := []string{
		"chat_process",
		"chat_run",
		"chat_cache",
		"chat_list",
		"chat_delete",
		"imports_load",
		"imports_save",
		"imports_add",
		"analysis_load",
		"analysis_save",
	}

	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}

	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	deps, _ := testSetup(t)

	deps.Config.DisabledTools = []string{"chat_delete", "imports_save", "chat_delete"}
	s := NewServer(deps, "test")
	tools := s.ListTools()

	// 10 tools minus 2 disabled, duplicates ignored
	if len(tools) != 8 {
		t.Errorf("registered tool count = %d, want 8", len(tools))
	}
	for _, name := range []string{"chat_delete", "imports_save"} {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
}

func TestServerRegistration_AllToolsDisabled(t *testing.T) {
	deps, _ := testSetup(t)

	deps.Config.DisabledTools = AllToolNames()
	s := NewServer(deps, "test")

	if tools := s.ListTools(); len(tools) != 0 {
		t.Errorf("registered tool count = %d, want 0 (all disabled)", len(tools))
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{"all valid", []string{"chat_delete", "imports_save"}, 0},
		{"one unknown", []string{"chat_delete", "capsule_store"}, 1},
		{"all unknown", []string{"foo", "bar", "baz"}, 3},
		{"empty list", []string{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unknown := ValidateDisabledTools(tt.input)
			if len(unknown) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(unknown), tt.wantLen)
			}
		})
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()

	if len(names) != 10 {
		t.Errorf("AllToolNames() returned %d names, want 10", len(names))
	}
	if unknown := ValidateDisabledTools(names); len(unknown) != 0 {
		t.Errorf("AllToolNames() returned invalid names: %v", unknown)
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("open /tmp/secret.db: permission denied")))
	errObj := errorObject(t, r)

	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
}

func TestErrorResult_WrappedErrorPreservesContext(t *testing.T) {
	wrapped := fmt.Errorf("chunk 2: %w", errors.NewExternalService(503, "overloaded"))
	errObj := errorObject(t, errorResult(wrapped))

	if errObj["code"] != string(errors.ErrExternalService) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrExternalService)
	}
	msg := errObj["message"].(string)
	if !strings.Contains(msg, "chunk 2") || strings.Contains(msg, "EXTERNAL_SERVICE_ERROR") {
		t.Errorf("message should keep wrapper context without the code, got: %s", msg)
	}
}

func TestErrorResult_NonInternalIncludesDetails(t *testing.T) {
	errObj := errorObject(t, errorResult(errors.NewStorage("alice", 3, fmt.Errorf("disk full"))))

	if errObj["code"] != string(errors.ErrStorage) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrStorage)
	}
	details, ok := errObj["details"].(map[string]any)
	if !ok {
		t.Fatal("expected non-INTERNAL errors to include details when present")
	}
	if details["conversation"] != "alice" || details["index"] != float64(3) {
		t.Errorf("details = %v", details)
	}
}

func TestErrorResult_PlainError(t *testing.T) {
	errObj := errorObject(t, errorResult(fmt.Errorf("boom")))
	if errObj["code"] != string(errors.ErrInternal) || errObj["message"] != "an internal error occurred" {
		t.Errorf("unexpected error object: %v", errObj)
	}
}

// Helper functions

func remarshal(in any, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func errorObject(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if !result.IsError {
		t.Fatal("expected IsError=true")
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	return payload["error"].(map[string]any)
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if !result.IsError {
		t.Errorf("expected error result, got success")
		return
	}
	if code, _ := errorObject(t, result)["code"].(string); code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return "<no content>"
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}

	return text.Text
}
