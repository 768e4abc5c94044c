// Package api exposes the standards library over HTTP.
//
// Routes are registered under /api:
//
//	GET    /api/info
//	GET    /api/standards            POST /api/standards
//	GET    /api/standards/:id        PUT  /api/standards/:id      DELETE /api/standards/:id
//	GET    /api/clusters             POST /api/clusters
//	GET    /api/clusters/:id         PUT  /api/clusters/:id       DELETE /api/clusters/:id
//	POST   /api/backup
//	GET    /api/backups              DELETE /api/backups
//	GET    /api/backups/:filename    DELETE /api/backups/:filename
//	POST   /api/restore              POST /api/restore/:filename
//	POST   /api/export
//	POST   /api/import
//	GET    /api/validation
//	POST   /api/cleanup/emotions
//	GET    /api/revisions            GET  /api/revisions/:revision
//	POST   /api/revisions/:revision/restore
//
// plus GET /healthz and GET /metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"

	"github.com/c360studio/maclib/catalog"
	"github.com/c360studio/maclib/reconcile"
)

const shutdownTimeout = 5 * time.Second

// Server serves the catalog over HTTP.
type Server struct {
	config   Config
	catalog  *catalog.Controller
	importer *reconcile.Reconciler
	logger   *slog.Logger
	engine   *gin.Engine

	// revisions is nil when the library is not mirrored.
	revisions RevisionSource
}

// NewServer builds the router. importer runs uploaded imports against ctrl.
func NewServer(config Config, ctrl *catalog.Controller, importer *reconcile.Reconciler, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config:   config,
		catalog:  ctrl,
		importer: importer,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.MaxMultipartMemory = s.config.maxBodyBytes()
	router.Use(s.recoverPanics(), requestID(), s.logRequests())
	router.Use(cors.New(s.corsConfig()))

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.Use(limitBody(s.config.maxBodyBytes()))
	{
		api.GET("/info", s.handleInfo)

		api.GET("/standards", s.handleListStandards)
		api.POST("/standards", s.handleCreateStandard)
		api.GET("/standards/:id", s.handleGetStandard)
		api.PUT("/standards/:id", s.handleUpdateStandard)
		api.DELETE("/standards/:id", s.handleDeleteStandard)

		api.GET("/clusters", s.handleListClusters)
		api.POST("/clusters", s.handleCreateCluster)
		api.GET("/clusters/:id", s.handleGetCluster)
		api.PUT("/clusters/:id", s.handleUpdateCluster)
		api.DELETE("/clusters/:id", s.handleDeleteCluster)

		api.POST("/backup", s.handleCreateBackup)
		api.GET("/backups", s.handleListBackups)
		api.DELETE("/backups", s.handleDeleteAllBackups)
		api.GET("/backups/:filename", s.handleDownloadBackup)
		api.DELETE("/backups/:filename", s.handleDeleteBackup)
		api.POST("/restore", s.handleRestoreUpload)
		api.POST("/restore/:filename", s.handleRestoreBackup)

		api.POST("/export", s.handleExport)
		api.POST("/import", s.handleImport)
		api.GET("/validation", s.handleValidation)
		api.POST("/cleanup/emotions", s.handleCleanupEmotions)

		api.GET("/revisions", s.handleListRevisions)
		api.GET("/revisions/:revision", s.handleGetRevision)
		api.POST("/revisions/:revision/restore", s.handleRestoreRevision)
	}
	return router
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader, "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if len(s.config.CORSOrigins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = s.config.CORSOrigins
	}
	return cfg
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully. At most MaxConnections connections are served at once.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.config.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.config.MaxConnections)
	}

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("HTTP server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	<-errCh
	s.logger.Info("HTTP server stopped")
	return nil
}
