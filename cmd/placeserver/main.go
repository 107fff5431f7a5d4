package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/dreamware/place/internal/config"
	"github.com/dreamware/place/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "placeserver: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		httpAddr   string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "placeserver [port] [dimension]",
		Short: "Run the shared canvas server",
		Long: `Run the shared canvas server.

Clients connect over TCP, log in with a unique name and receive the
whole board, then every change anyone makes.

Settings come from defaults, then --config, then PLACE_* environment
variables, then flags and positional arguments.

Examples:
  placeserver 8000 10
  placeserver --config server.yaml --http-addr :8080`,
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServer(configPath)
			if err != nil {
				return err
			}
			if err := applyArgs(&cfg, args); err != nil {
				return err
			}
			if cmd.Flags().Changed("http-addr") {
				cfg.HTTPAddr = httpAddr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := config.NewLogger(cfg.LogLevel, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logger, reg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address for /metrics, /healthz, /board and /ws (empty disables)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	return cmd
}

// applyArgs applies the optional positional port and dimension.
func applyArgs(cfg *config.Server, args []string) error {
	if len(args) > 0 {
		port, err := strconv.Atoi(args[0])
		if err != nil || port < 0 || port > 65535 {
			return fmt.Errorf("invalid port %q", args[0])
		}
		cfg.Addr = ":" + args[0]
	}
	if len(args) > 1 {
		dim, err := strconv.Atoi(args[1])
		if err != nil || dim < 1 {
			return fmt.Errorf("invalid dimension %q", args[1])
		}
		cfg.Dimension = dim
	}
	return nil
}

// run serves until ctx is cancelled or a listener fails.
// Bind failures are returned before anything is served.
func run(ctx context.Context, cfg config.Server, logger *slog.Logger, reg *prometheus.Registry) error {
	srv, err := server.New(cfg, server.WithLogger(logger), server.WithMetrics(server.NewMetrics(reg)))
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", cfg.Addr, err)
	}

	var httpSrv *http.Server
	var httpLn net.Listener
	if cfg.HTTPAddr != "" {
		httpLn, err = net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("bind %s: %w", cfg.HTTPAddr, err)
		}
		httpSrv = &http.Server{
			Handler:           srv.Router(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	errCh := make(chan error, 2)
	go func() {
		if err := srv.Serve(ln); !errors.Is(err, server.ErrServerClosed) {
			errCh <- fmt.Errorf("serve: %w", err)
		}
	}()
	if httpSrv != nil {
		go func() {
			logger.Info("http listening", "addr", httpLn.Addr().String())
			if err := httpSrv.Serve(httpLn); !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("serve http: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
		logger.Error("listener failed", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if httpSrv != nil {
		_ = httpSrv.Shutdown(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("shutdown: %w", err)
	}
	return runErr
}
