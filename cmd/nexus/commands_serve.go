package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduler tick loop and MCP server connections",
		Long: `Start the background engine: connects every configured MCP server,
then drives the scheduler's polling tick until interrupted.

Conversation turns are driven by "conversation send" in another invocation
or by a due scheduled task; serve itself only owns the long-running
background loop and the MCP connection pool.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			eng, err := buildEngine(configPathFrom(cmd.Context()))
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.mcpMgr.Start(ctx); err != nil {
				slog.Warn("one or more MCP servers failed to start", "error", err)
			}

			metricsSrv := startMetricsServer(eng.cfg.Server.MetricsAddr)

			eng.sched.Start(ctx)
			fmt.Println("engine running, press ctrl-c to stop")
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if metricsSrv != nil {
				if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
					slog.Warn("metrics server shutdown failed", "error", err)
				}
			}
			return eng.sched.Stop(shutdownCtx)
		},
	}
}

// startMetricsServer exposes /metrics and /healthz on addr in the
// background; "off" disables it entirely. Two endpoints only: metrics
// scrape and a liveness probe.
func startMetricsServer(addr string) *http.Server {
	if addr == "" || addr == "off" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("metrics server failed", "error", err)
		}
	}()
	return srv
}
