package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hpungsan/chunkwise/internal/ops"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// NewRouter builds the gin engine serving the JSON API and the HTML pages.
func NewRouter(deps *ops.Deps, version string) *gin.Engine {
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		panic(fmt.Sprintf("template sub-FS: %v", err))
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(fmt.Sprintf("static sub-FS: %v", err))
	}

	logger := deps.Logger.Named("web")
	h := &Handlers{
		deps:     deps,
		renderer: NewRenderer(templateSub, version, logger),
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), securityHeaders())

	api := router.Group("/api")
	api.POST("/process", h.HandleProcess)
	api.POST("/run", h.HandleRun)
	api.GET("/cache", h.HandleCache)
	api.GET("/chats", h.HandleChats)
	api.DELETE("/chats", h.HandleDeleteChat)
	api.GET("/imports", h.HandleLoadImports)
	api.PUT("/imports", h.HandleSaveImports)
	api.GET("/analysis", h.HandleLoadAnalysis)
	api.PUT("/analysis", h.HandleSaveAnalysis)

	router.GET("/", h.HandleIndex)
	router.GET("/chat", h.HandleChat)
	router.StaticFS("/static", http.FS(staticSub))

	router.NoRoute(func(c *gin.Context) {
		h.renderer.renderError(c.Writer, c.Request, notFoundError(c.Request.URL.Path))
	})

	return router
}

// NewServer creates the HTTP server for the chunkwise API and UI.
func NewServer(deps *ops.Deps, version, bind string, port int) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           NewRouter(deps, version),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server, logger *zap.Logger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("chunkwise UI running", zap.String("url", "http://"+srv.Addr))

	if strings.HasPrefix(srv.Addr, "0.0.0.0:") || strings.HasPrefix(srv.Addr, "[::]:") || strings.HasPrefix(srv.Addr, ":") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-sigCh:
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
