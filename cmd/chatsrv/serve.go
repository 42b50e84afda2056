package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/wtask/chatrelay/internal/chat"
	"github.com/wtask/chatrelay/internal/config"
	"github.com/wtask/chatrelay/internal/monitor"
	"github.com/wtask/chatrelay/internal/transport/wsnet"
)

type serveFlags struct {
	configPath     string
	envFiles       []string
	ip             string
	port           int
	maxConnections int
}

func serveCmd() *cobra.Command {
	f := serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start chat server",
		Long: `Start chat server, press Ctrl-C to stop.

Configuration is read from TOML file which is created with default values
when missing. Environment variables (CHATSRV_*) and .env files override the
file, command line flags override both.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnv(f.envFiles...); err != nil {
				return err
			}
			cfg, err := config.Load(f.configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("ip") {
				cfg.Server.IP = f.ip
			}
			if flags.Changed("port") {
				cfg.Server.Port = f.port
			}
			if flags.Changed("max-connections") {
				cfg.General.Connections = f.maxConnections
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.configPath, "config", "c", config.DefaultPath, "Path to TOML configuration file")
	flags.StringSliceVar(&f.envFiles, "env-file", nil, "Load environment from .env file (default .env, missing file is ignored)")
	flags.StringVar(&f.ip, "ip", "", "Listen address")
	flags.IntVar(&f.port, "port", 0, "Listen port")
	flags.IntVar(&f.maxConnections, "max-connections", 0, "Max number of concurrent clients, -1 means no limit")

	return cmd
}

// serve - runs chat server with configured surfaces until ctx is done or any listener fails.
func serve(ctx context.Context, cfg *config.Config) error {
	logger, closeLog, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	tp, shutdownTracing, err := newTracerProvider(cfg.Trace)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracing shutdown", slog.Any("err", err))
		}
	}()
	otel.SetTracerProvider(tp)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	server, err := chat.NewServer(
		chat.WithVersion(ServerVersion),
		chat.WithMOTD(cfg.MOTD()),
		chat.WithMaxConnections(cfg.MaxConnections()),
		chat.WithKeepaliveInterval(cfg.General.KeepaliveInterval),
		chat.WithChatEcho(cfg.LogChatToConsole()),
		chat.WithLogger(logger),
		chat.WithMetrics(chat.NewMetrics(reg)),
		chat.WithTracerProvider(tp),
	)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.Address())
	if err != nil {
		return fmt.Errorf("unable to listen TCP: %w", err)
	}
	logger.Info("chat server has started",
		slog.String("version", Version),
		slog.String("addr", cfg.Address()),
		slog.Int("max_connections", cfg.MaxConnections()),
	)

	failures := make(chan error, 3)
	go func() {
		failures <- server.Serve(listener)
	}()

	var mon *monitor.Server
	if cfg.Monitor.Listen != "" {
		ml, err := net.Listen("tcp", cfg.Monitor.Listen)
		if err != nil {
			server.Shutdown(cfg.General.ShutdownGrace)
			return fmt.Errorf("unable to listen monitor: %w", err)
		}
		options := []monitor.Option{
			monitor.WithVersion(Version),
			monitor.WithGatherer(reg),
			monitor.WithLogger(logger),
		}
		if cfg.Monitor.WebSocket {
			ws := wsnet.NewListener(ml.Addr(), nil)
			options = append(options, monitor.WithWebSocket(ws))
			go func() {
				failures <- server.Serve(ws)
			}()
		}
		mon = monitor.NewServer(monitor.NewHandler(server, options...))
		go func() {
			if err := mon.Serve(ml); err != nil {
				failures <- fmt.Errorf("monitor: %w", err)
			}
		}()
		logger.Info("monitor has started", slog.String("addr", ml.Addr().String()), slog.Bool("websocket", cfg.Monitor.WebSocket))
	}

	var failure error
	select {
	case <-ctx.Done():
		logger.Info("got stop signal")
	case failure = <-failures:
		logger.Error("server failure", slog.Any("err", failure))
	}

	took := server.Shutdown(cfg.General.ShutdownGrace)
	if mon != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := mon.Shutdown(shutdownCtx); err != nil {
			logger.Warn("monitor shutdown", slog.Any("err", err))
		}
		cancel()
	}
	logger.Info("chat server stopped, bye", slog.Duration("took", took))

	if errors.Is(failure, chat.ErrServerClosed) {
		return nil
	}
	return failure
}
