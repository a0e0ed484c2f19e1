package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/appdist/internal/cascade"
	"github.com/tonimelisma/appdist/internal/config"
	"github.com/tonimelisma/appdist/internal/metrics"
	"github.com/tonimelisma/appdist/internal/payload"
	"github.com/tonimelisma/appdist/internal/wsbridge"
)

// shutdownGrace bounds how long open connections get to finish on exit.
const shutdownGrace = 10 * time.Second

func newServeCmd() *cobra.Command {
	var (
		listen string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve form sessions to a browser over websockets",
		Long: `Start the websocket bridge. Each connection opens one form session and
receives a snapshot after every change; see GET /api/forms for the form
kinds and GET /metrics for Prometheus metrics.

SIGHUP (or "appdist reload") reloads the config file. Session defaults (employee id, academic
year, settle timeout) apply to sessions opened after the reload; backend and
listener settings need a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), listen)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default serve.listen)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "journal submissions without sending them")

	return cmd
}

func runServe(ctx context.Context, listen string) error {
	cc := mustCLIContext(ctx)
	logger := cc.Logger
	ctx = shutdownContext(ctx, logger)

	svc, err := NewServices(ctx, cc.Cfg, logger)
	if err != nil {
		return err
	}

	store, err := svc.OpenJournal(ctx)
	if err != nil {
		return err
	}

	if store != nil {
		defer store.Close()
	}

	cleanup, err := writePIDFile(config.DefaultPIDPath())
	if err != nil {
		return err
	}
	defer cleanup()

	holder := config.NewHolder(cc.Cfg)
	onReload(ctx, func() { reloadConfig(holder, cc, logger) })

	collector := metrics.NewCollector("")

	open := func(ctx context.Context, kind payload.Kind, identity cascade.Identity, initial map[string]string) (*cascade.Session, error) {
		cfg := holder.Config()
		if identity == "" {
			identity = cascade.Identity(cfg.Session.EmployeeID)
		}

		return svc.withConfig(cfg).OpenSession(ctx, kind, identity, initial, cascade.WithObserver(collector))
	}

	h := wsbridge.NewHandler(open, svc.Submitter(store), wsbridge.Options{
		AllowedOrigins: cc.Cfg.Serve.AllowedOrigins,
		SettleTimeout:  cc.Cfg.SettleTimeout,
		Metrics:        collector,
		Logger:         logger,
	})

	ropts := wsbridge.RouterOptions{Instrument: collector.InstrumentHandler}
	if cc.Cfg.Serve.Metrics {
		ropts.Metrics = collector.Handler()
	}

	addr := firstNonEmpty(listen, cc.Cfg.Serve.Listen)
	srv := &http.Server{
		Addr:              addr,
		Handler:           wsbridge.NewRouter(h, ropts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("bridge listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutting down: %w", err)
	}

	return nil
}

// reloadConfig re-resolves the config chain and swaps it into holder. A
// broken file keeps the previous config.
func reloadConfig(holder *config.Holder, cc *CLIContext, logger *slog.Logger) {
	next, err := config.Resolve(config.ReadEnvOverrides(), config.CLIOverrides{
		ConfigPath: cc.Flags.ConfigPath,
		EmployeeID: cc.Flags.EmployeeID,
		BaseURL:    cc.Flags.BaseURL,
	})
	if err != nil {
		logger.Error("config reload failed, keeping previous config", slog.String("error", err.Error()))
		return
	}

	next.DryRun = holder.Config().DryRun
	holder.Update(next)

	logger.Info("config reloaded", slog.String("path", next.Path))
}
