package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/childcare-cli/internal/api"
	"github.com/sells-group/childcare-cli/internal/config"
	"github.com/sells-group/childcare-cli/internal/model"
	"github.com/sells-group/childcare-cli/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve combined childcare answers and backlog metrics over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		st, err := openStore(ctx, config.ModeServe)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics := monitoring.NewMetrics(reg)

		collector := monitoring.NewCollector(st, monitoring.Targets{
			Contact:   model.ExtractionKey{Model: cfg.Anthropic.Model, PromptVersion: cfg.Extract.ContactVersion},
			Childcare: model.ExtractionKey{Model: cfg.Anthropic.Model, PromptVersion: cfg.Extract.ChildcareVersion},
			Combine:   model.ExtractionKey{Model: cfg.Anthropic.CombineModel, PromptVersion: cfg.Extract.CombineVersion},
		})
		checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), metrics, cfg.Monitoring)
		go checker.Run(ctx)

		srv := api.NewServer(st, reg, cfg.Server.Port)

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
