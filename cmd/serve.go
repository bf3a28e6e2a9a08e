package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/monitoring"
	"github.com/sells-group/leadgen-cli/internal/replies"
	"github.com/sells-group/leadgen-cli/internal/server"
	"github.com/sells-group/leadgen-cli/pkg/anthropic"
)

var (
	servePort    int
	serveOrigins []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long:  "Receives unsubscribe, bounce, spam, and reply webhooks from the outreach platform, serves suppression, cost, and health lookups, and runs the background campaign health checker.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate(config.ModeServe); err != nil {
			return err
		}

		e, err := openEnv(ctx, "serve-"+uuid.NewString())
		if err != nil {
			return err
		}
		defer e.Close()

		alerter := monitoring.NewAlerter(cfg.Monitoring.WebhookURL)
		deps := server.Deps{
			Suppressions: e.gate,
			Costs:        e.store,
		}
		if cfg.Anthropic.Key != "" {
			labeler := replies.NewClassifier(anthropic.NewClient(cfg.Anthropic.Key), e.exec, cfg.Anthropic.Model)
			deps.Replies = replies.NewRouter(labeler, e.gate, alerter)
		} else {
			zap.L().Warn("anthropic.key not set, reply webhooks are disabled")
		}
		if cfg.Instantly.Key != "" {
			deps.Health = healthCheck(cfg, e.exec)

			if len(cfg.Monitoring.Campaigns) > 0 {
				checker := monitoring.NewChecker(
					monitoring.NewCollector(newInstantly(cfg), e.exec),
					newMonitor(cfg),
					alerter,
					cfg.Monitoring.Campaigns,
					time.Duration(cfg.Monitoring.IntervalSecs)*time.Second,
				)
				go checker.Run(ctx)
			}
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           server.New(deps, server.Options{Secret: cfg.Server.WebhookSecret, AllowedOrigins: serveOrigins}).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port), zap.Int("suppressed", e.gate.Len()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringSliceVar(&serveOrigins, "cors-origin", nil, "allowed CORS origins for the read endpoints")
	rootCmd.AddCommand(serveCmd)
}
