package web

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hpungsan/chunkwise/internal/errors"
	"github.com/hpungsan/chunkwise/internal/ops"
)

// maxBodyBytes caps API request bodies.
const maxBodyBytes = 32 << 20

// Handlers contains HTTP route handlers for the API and the web UI.
type Handlers struct {
	deps     *ops.Deps
	renderer *Renderer
}

// HandleProcess handles POST /api/process: analyse one batch.
func (h *Handlers) HandleProcess(c *gin.Context) {
	var input ops.ProcessInput
	if !bindJSON(c, &input) {
		return
	}

	result, err := ops.Process(c.Request.Context(), h.deps, input)
	if err != nil {
		if result != nil {
			err = errors.WithDetail(err, "partial", result)
		}
		writeError(c.Writer, err)
		return
	}
	renderJSON(c.Writer, http.StatusOK, result)
}

// HandleRun handles POST /api/run: backfill a saved import.
func (h *Handlers) HandleRun(c *gin.Context) {
	var input ops.ProcessImportInput
	if !bindJSON(c, &input) {
		return
	}

	result, err := ops.ProcessImport(c.Request.Context(), h.deps, input)
	if err != nil {
		if result != nil {
			err = errors.WithDetail(err, "partial", result)
		}
		writeError(c.Writer, err)
		return
	}
	renderJSON(c.Writer, http.StatusOK, result)
}

// HandleCache handles GET /api/cache?name=: a conversation's cached results.
func (h *Handlers) HandleCache(c *gin.Context) {
	result, err := ops.LoadCache(c.Request.Context(), h.deps, ops.LoadCacheInput{Name: c.Query("name")})
	if err != nil {
		writeError(c.Writer, err)
		return
	}
	renderJSON(c.Writer, http.StatusOK, result)
}

// HandleChats handles GET /api/chats: known conversations.
func (h *Handlers) HandleChats(c *gin.Context) {
	result, err := ops.ListChats(c.Request.Context(), h.deps)
	if err != nil {
		writeError(c.Writer, err)
		return
	}
	renderJSON(c.Writer, http.StatusOK, result)
}

// HandleDeleteChat handles DELETE /api/chats?name=[&keep_import=1].
func (h *Handlers) HandleDeleteChat(c *gin.Context) {
	result, err := ops.DeleteChat(c.Request.Context(), h.deps, ops.DeleteChatInput{
		Name:       c.Query("name"),
		KeepImport: parseBoolParam(c, "keep_import"),
	})
	if err != nil {
		writeError(c.Writer, err)
		return
	}
	renderJSON(c.Writer, http.StatusOK, result)
}

// HandleLoadImports handles GET /api/imports: the saved import list.
func (h *Handlers) HandleLoadImports(c *gin.Context) {
	result, err := ops.LoadImports(h.deps)
	if err != nil {
		writeError(c.Writer, err)
		return
	}
	renderJSON(c.Writer, http.StatusOK, result.Imports)
}

// HandleSaveImports handles PUT /api/imports. The body is the list itself
// or an object {"imports": [...]}.
func (h *Handlers) HandleSaveImports(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}

	var input ops.SaveImportsInput
	trimmed := bytes.TrimSpace(body)
	var err error
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &input.Imports)
	} else {
		err = json.Unmarshal(trimmed, &input)
	}
	if err != nil {
		writeError(c.Writer, errors.NewInvalidRequest("invalid JSON body: "+err.Error()))
		return
	}
	if input.Imports == nil {
		writeError(c.Writer, errors.NewInvalidRequest("imports is required"))
		return
	}

	result, err := ops.SaveImports(h.deps, input)
	if err != nil {
		writeError(c.Writer, err)
		return
	}
	renderJSON(c.Writer, http.StatusOK, result)
}

// HandleLoadAnalysis handles GET /api/analysis: the analysis document itself.
func (h *Handlers) HandleLoadAnalysis(c *gin.Context) {
	result, err := ops.LoadAnalysis(h.deps)
	if err != nil {
		writeError(c.Writer, err)
		return
	}
	renderJSON(c.Writer, http.StatusOK, result.Analysis)
}

// HandleSaveAnalysis handles PUT /api/analysis. The body is the document.
func (h *Handlers) HandleSaveAnalysis(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}

	result, err := ops.SaveAnalysis(h.deps, ops.SaveAnalysisInput{Analysis: bytes.TrimSpace(body)})
	if err != nil {
		writeError(c.Writer, err)
		return
	}
	renderJSON(c.Writer, http.StatusOK, result)
}

// HandleIndex handles GET /: list conversations.
func (h *Handlers) HandleIndex(c *gin.Context) {
	result, err := ops.ListChats(c.Request.Context(), h.deps)
	if err != nil {
		h.renderer.renderError(c.Writer, c.Request, err)
		return
	}

	h.renderer.renderPage(c.Writer, "index", IndexPageData{
		PageData: PageData{
			Title:   "Chats",
			Version: h.renderer.version,
			Nav:     "chats",
		},
		Chats: result.Chats,
	})
}

// HandleChat handles GET /chat?name=: a conversation's cached results.
func (h *Handlers) HandleChat(c *gin.Context) {
	result, err := ops.LoadCache(c.Request.Context(), h.deps, ops.LoadCacheInput{Name: c.Query("name")})
	if err != nil {
		h.renderer.renderError(c.Writer, c.Request, err)
		return
	}

	h.renderer.renderPage(c.Writer, "chat", ChatPageData{
		PageData: PageData{
			Title:   result.Name,
			Version: h.renderer.version,
			Nav:     "chats",
		},
		Name:    result.Name,
		Count:   result.Count,
		Scenes:  result.Scenes,
		Results: resultViews(result.Results, result.Indices),
	})
}

// Helpers

// bindJSON decodes the request body into v, writing an INVALID_REQUEST on failure.
func bindJSON(c *gin.Context, v any) bool {
	body, ok := readBody(c)
	if !ok {
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(c.Writer, errors.NewInvalidRequest("invalid JSON body: "+err.Error()))
		return false
	}
	return true
}

// readBody reads the capped request body, writing an INVALID_REQUEST on failure.
func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		writeError(c.Writer, errors.NewInvalidRequest("cannot read request body: "+err.Error()))
		return nil, false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(c.Writer, errors.NewInvalidRequest("request body is required"))
		return nil, false
	}
	return body, true
}

// parseBoolParam reads a boolean query parameter ("1", "true", ...).
func parseBoolParam(c *gin.Context, name string) bool {
	b, err := strconv.ParseBool(c.Query(name))
	return err == nil && b
}
