package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/tiancaiamao/agentgate/pkg/config"
	"github.com/tiancaiamao/agentgate/pkg/gateway"
	"github.com/tiancaiamao/agentgate/pkg/hostexec"
	"github.com/tiancaiamao/agentgate/pkg/registry"
)

func main() {
	listen := flag.String("listen", "", "HTTP listen address (overrides config)")
	configPath := flag.String("config", "", "config file path")
	agentCmd := flag.String("agent", "", "agent executable (overrides config)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if err := run(*listen, *configPath, *agentCmd, *debug); err != nil {
		slog.Error("agentgate error", "error", err)
		os.Exit(1)
	}
}

func run(listen, configPath, agentCmd string, debug bool) error {
	if configPath == "" {
		var err error
		configPath, err = config.GetDefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if agentCmd != "" {
		cfg.Agent.Command = agentCmd
	}
	if debug {
		if cfg.Log == nil {
			cfg.Log = config.DefaultLogConfig()
		}
		cfg.Log.Level = "debug"
	}

	log, err := cfg.Log.CreateLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := hostexec.NewClient(cfg.Agent.Command, cfg.Agent.Args, log)
	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("failed to start agent: %w", err)
	}
	defer client.Stop()

	gw := gateway.New(client, registry.New(), log)
	srv := gateway.NewServer(gw, log)
	if err := srv.Start(cfg.Listen); err != nil {
		return err
	}
	log.Info("agentgate listening", "addr", srv.Addr())

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	return srv.Stop(shutdownCtx)
}
