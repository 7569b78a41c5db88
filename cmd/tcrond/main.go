package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tcron/internal/api"
	"tcron/internal/app"
	"tcron/internal/config"
	"tcron/internal/logging"
	tcronmcp "tcron/internal/mcp"
)

// version is set at build time using -ldflags.
var version = "dev"

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	logger := logging.New(cfg.Log.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("initialize", "err", err)
		os.Exit(1)
	}
	defer c.Close()

	if err := c.RecoverInterrupted(ctx); err != nil {
		logger.Error("recover interrupted executions", "err", err)
	}

	c.Housekeeper.Start(ctx)
	defer stopHousekeeper(c, cfg.ShutdownGrace)

	mcpServer := tcronmcp.NewMCPServer(c.Tasks, c.Notifications, version, logger)

	switch cfg.Server.Mode {
	case config.ModeHTTP:
		runHTTP(c, mcpServer, nil)
	case config.ModeMCP:
		runMCP(c, mcpServer, cancel)
	case config.ModeBoth:
		mcpErr := make(chan error, 1)
		go func() {
			if err := mcpServer.Run(); err != nil {
				mcpErr <- err
			}
		}()
		runHTTP(c, mcpServer, mcpErr)
	}
	logger.Info("shutdown complete")
}

// runHTTP serves the API and /mcp until a signal, a server error or an MCP stdio error.
func runHTTP(c *app.Container, mcpServer *tcronmcp.MCPServer, mcpErr <-chan error) {
	cfg, logger := c.Config, c.Logger
	server := api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, api.Deps{
		Tasks:         c.Tasks,
		Terminal:      c.Terminal,
		Notifications: c.Notifications,
		Dashboard:     c.Dashboard,
		Settings:      c.Settings,
	}, mcpServer.HTTPHandler(), logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	case err := <-mcpErr:
		logger.Error("mcp server error", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}
}

// runMCP serves MCP over stdio until stdin closes or a signal arrives.
func runMCP(c *app.Container, mcpServer *tcronmcp.MCPServer, cancel context.CancelFunc) {
	logger := c.Logger
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- mcpServer.Run() }()

	select {
	case sig := <-sigs:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-done:
		if err != nil {
			logger.Error("mcp server error", "err", err)
		}
	}
	cancel()
}

func stopHousekeeper(c *app.Container, grace time.Duration) {
	stopCtx := c.Housekeeper.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(grace):
		c.Logger.Warn("housekeeper stop timed out")
	}
}
