package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/hpungsan/chunkwise/internal/analysis"
	"github.com/hpungsan/chunkwise/internal/errors"
	"github.com/hpungsan/chunkwise/internal/ops"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
	Nav     string // active nav item: "chats"
}

// IndexPageData is the template data for the chat list page.
type IndexPageData struct {
	PageData
	Chats []ops.ChatSummary
}

// ChatPageData is the template data for one conversation's results.
type ChatPageData struct {
	PageData
	Name    string
	Count   int
	Scenes  int
	Results []ResultView
}

// ResultView is one cached chunk result prepared for display.
type ResultView struct {
	Index int

	// Text holds a string result rendered from markdown.
	Text template.HTML

	// Scenes lists the recall scenes of a structured result.
	Scenes []analysis.Scene

	// JSON is the indented structured result.
	JSON string

	// Problems lists scene schema violations of a structured result.
	Problems []string
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
	logger    *zap.Logger
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
func NewRenderer(templateFS fs.FS, version string, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	funcMap := template.FuncMap{
		"add": func(a, b int) int { return a + b },
	}

	// Parse layout as the base template
	layoutTmpl := template.Must(template.New("layout").Funcs(funcMap).ParseFS(templateFS, "layout.html"))

	pages := map[string]string{
		"index": "index.html",
		"chat":  "chat.html",
		"error": "error.html",
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		t := template.Must(layoutTmpl.Clone())
		template.Must(t.ParseFS(templateFS, file))
		templates[name] = t
	}

	return &Renderer{
		templates: templates,
		version:   version,
		logger:    logger,
	}
}

// renderPage renders a named page template with the given data and HTTP 200 status.
func (r *Renderer) renderPage(w http.ResponseWriter, name string, data any) {
	r.renderPageStatus(w, http.StatusOK, name, data)
}

// renderPageStatus renders a named page template with the given data and HTTP status code.
func (r *Renderer) renderPageStatus(w http.ResponseWriter, status int, name string, data any) {
	t, ok := r.templates[name]
	if !ok {
		r.logger.Error("template not found", zap.String("template", name))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		r.logger.Error("template execution failed", zap.String("template", name), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders an error response with content negotiation.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	cErr := toChunkwiseError(err)

	if strings.Contains(req.Header.Get("Accept"), "application/json") {
		writeError(w, err)
		return
	}

	r.renderPageStatus(w, cErr.Status, "error", ErrorPageData{
		PageData: PageData{
			Title:   fmt.Sprintf("Error %d", cErr.Status),
			Version: r.version,
		},
		StatusCode: cErr.Status,
		Message:    cErr.Message,
	})
}

// toChunkwiseError returns the typed error in err's chain, or an INTERNAL one.
func toChunkwiseError(err error) *errors.ChunkwiseError {
	if cErr, ok := errors.As(err); ok {
		return cErr
	}
	return errors.NewInternal(err)
}

// writeError writes the JSON error body used by every API route.
// Details are omitted for INTERNAL errors.
func writeError(w http.ResponseWriter, err error) {
	cErr := toChunkwiseError(err)
	errorObj := map[string]any{
		"code":    string(cErr.Code),
		"message": cErr.Message,
		"status":  cErr.Status,
	}
	if cErr.Code != errors.ErrInternal && cErr.Details != nil {
		errorObj["details"] = cErr.Details
	}
	renderJSON(w, cErr.Status, map[string]any{"error": errorObj})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderMarkdown converts markdown text to HTML using goldmark.
// Raw HTML in the source is dropped by goldmark's default renderer.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// resultViews prepares cached results for the chat page. indices holds the
// chunk index of each result.
func resultViews(results []analysis.Result, indices []int) []ResultView {
	views := make([]ResultView, 0, len(results))
	for i, res := range results {
		v := ResultView{Index: i}
		if i < len(indices) {
			v.Index = indices[i]
		}
		if text, ok := res.Text(); ok {
			v.Text = renderMarkdown(text)
		} else {
			v.Scenes = res.Scenes()
			v.Problems = analysis.Lint(res).Problems
			if pretty, err := res.Indent(); err == nil {
				v.JSON = string(pretty)
			} else {
				v.JSON = string(res.Bytes())
			}
		}
		views = append(views, v)
	}
	return views
}

func notFoundError(path string) error {
	return &errors.ChunkwiseError{
		Code:    errors.ErrNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("page not found: %s", path),
	}
}
