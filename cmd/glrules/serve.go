package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/glrules/internal/api"
	"github.com/Veraticus/glrules/internal/metrics"
	"github.com/Veraticus/glrules/internal/ratelimit"
	"github.com/Veraticus/glrules/internal/rules"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP rule evaluation service",
		Long: `Serve rule evaluation, rule management and the audit trail over HTTP.

Every request except /healthz and /metrics must carry the X-Owner-ID header.`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "listen address (default :8080)")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	collector := metrics.New(store)
	opts, err := evaluatorOptions(cfg, collector)
	if err != nil {
		return fmt.Errorf("failed to configure evaluator: %w", err)
	}

	server := api.NewServer(api.Deps{
		Store:     store,
		Evaluator: rules.NewEvaluator(store, opts...),
		Limiter:   ratelimit.NewLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		Metrics:   collector,
	})

	slog.Info("Starting glrules service",
		"database", store.Path(),
		"addr", cfg.Server.Addr,
		"suggester", cfg.Suggester.Enabled,
		"rate_limit_rps", cfg.RateLimit.RequestsPerSecond)

	return server.Run(ctx, api.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
}
