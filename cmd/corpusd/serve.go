package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/retrieval"
	"github.com/fyrsmithlabs/corpusd/internal/syncer"
	"github.com/fyrsmithlabs/corpusd/internal/telemetry"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server for sync triggers and queries",
	Long: `Serve HTTP endpoints:

  POST /sync     trigger a reconciliation run (409 if one is running)
  POST /query    access-filtered retrieval {"user_id", "query", "top_k"}
  GET  /healthz  liveness probe
  GET  /metrics  Prometheus metrics

Sync runs are serialized: a trigger arriving mid-run is rejected rather
than queued.`,
	RunE: runServe,
}

type queryRequest struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
	TopK   int    `json:"top_k"`
}

type syncResponse struct {
	RunID          string `json:"run_id"`
	Scanned        int    `json:"scanned"`
	Added          int    `json:"added"`
	Updated        int    `json:"updated"`
	Deleted        int    `json:"deleted"`
	Skipped        int    `json:"skipped"`
	ChunksUpserted int    `json:"chunks_upserted"`
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	svc, err := a.retrievalService()
	if err != nil {
		return err
	}

	telemetryShutdown, err := telemetry.Init(cmd.Context(), a.cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			a.logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.POST("/sync", handleSync(a))
	e.POST("/query", handleQuery(svc))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	a.logger.Info("server started", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}

func handleSync(a *app) echo.HandlerFunc {
	return func(c echo.Context) error {
		release, err := a.lock.Acquire()
		if errors.Is(err, syncer.ErrRunInProgress) {
			return c.JSON(http.StatusConflict, map[string]string{"error": "sync already in progress"})
		}
		defer release()

		report, err := a.reconciler.Run(c.Request().Context())
		if err != nil {
			a.logger.Error("triggered sync failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, syncResponse{
			RunID:          report.RunID,
			Scanned:        report.Scanned,
			Added:          report.Added,
			Updated:        report.Updated,
			Deleted:        report.Deleted,
			Skipped:        report.Skipped,
			ChunksUpserted: report.ChunksUpserted,
		})
	}
}

func handleQuery(svc *retrieval.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req queryRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
		if req.UserID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		}

		results, err := svc.Query(c.Request().Context(), req.UserID, req.Query, req.TopK)
		if errors.Is(err, retrieval.ErrEmptyQuery) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		if results == nil {
			results = []vectorstore.SearchResult{}
		}
		return c.JSON(http.StatusOK, results)
	}
}
