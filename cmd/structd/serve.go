package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	_ "structd/docs"
	"structd/internal/httpapi"
)

func newServeCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the HTTP API",
		Example: "  structd serve --models-dir ~/models/llm --addr :8080\n  structd serve --config structd.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(o)
		},
	}
	cmd.Flags().StringVar(&o.addr, "addr", "", "HTTP listen address, e.g. :8080 (defaults STRUCTD_ADDR or :8080)")
	cmd.Flags().StringVar(&o.cors, "cors-origins", "", "Enable CORS for a comma separated list of origins")
	return cmd
}

func runServe(o *options) error {
	cfg, log := o.cfg, o.log
	mgr, err := buildManager(cfg, log, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer mgr.Close()
	if r := mgr.SanityCheck(); r.Error != "" {
		log.Warn().Str("problem", r.Error).Msg("sanity check")
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.Origins, cfg.CORS.Methods, cfg.CORS.Headers)
	httpapi.SetBaseContext(baseCtx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("models_dir", cfg.ModelsDir).Msg("structd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)
	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	// In-flight generations see the base context end and stop promptly.
	cancelBase()
	mgr.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}
