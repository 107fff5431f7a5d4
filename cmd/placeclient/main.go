package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dreamware/place/internal/client"
	"github.com/dreamware/place/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "placeclient: %s\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	websocket  string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "placeclient",
		Short: "Clients for the shared canvas server",
		Long: `Clients for the shared canvas server.

Every subcommand takes the server host, port and a login name, either as
positional arguments or from --config / PLACE_HOST, PLACE_PORT, PLACE_NAME.

Examples:
  placeclient ptui localhost 8000 alice
  placeclient bot fill localhost 8000 fillbot --color 5
  PLACE_NAME=alice placeclient ptui --websocket ws://localhost:8080/ws`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error (default from config)")
	cmd.PersistentFlags().StringVar(&g.websocket, "websocket", "", "connect through the server's websocket URL instead of TCP")

	cmd.AddCommand(
		ptuiCmd(g),
		botCmd(g),
	)
	return cmd
}

// loadClient resolves configuration from file, environment and positional
// host, port and name, in that order of increasing priority.
func loadClient(g *globalFlags, args []string) (config.Client, error) {
	cfg, err := config.LoadClient(g.configPath)
	if err != nil {
		return config.Client{}, err
	}
	if len(args) > 0 {
		cfg.Host = args[0]
	}
	if len(args) > 1 {
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return config.Client{}, fmt.Errorf("invalid port %q", args[1])
		}
		cfg.Port = port
	}
	if len(args) > 2 {
		cfg.Name = args[2]
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Client{}, err
	}
	return cfg, nil
}

// dial loads configuration, installs the logger and logs in.
func dial(ctx context.Context, cmd *cobra.Command, g *globalFlags, args []string) (*client.Replica, config.Client, error) {
	cfg, err := loadClient(g, args)
	if err != nil {
		return nil, config.Client{}, err
	}
	logger, err := config.NewLogger(cfg.LogLevel, cmd.ErrOrStderr())
	if err != nil {
		return nil, config.Client{}, err
	}
	slog.SetDefault(logger)

	opts := []client.Option{
		client.WithLogger(logger),
		client.WithDialTimeout(cfg.DialTimeout),
		client.WithMaxFrameSize(cfg.MaxFrameSize),
	}
	var r *client.Replica
	if g.websocket != "" {
		r, err = client.ConnectWebSocket(ctx, g.websocket, cfg.Name, opts...)
	} else {
		r, err = client.Connect(ctx, cfg.Address(), cfg.Name, opts...)
	}
	if err != nil {
		return nil, config.Client{}, err
	}
	return r, cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
