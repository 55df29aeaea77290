package main

import (
	"context"
	log "log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	cli "github.com/spf13/pflag"

	"ladybot/internal/ipc"
	"ladybot/internal/mcp"
)

func main() {
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath(), "Control socket of a running ladybot")
	cli.Parse()

	if v := os.Getenv("LADYBOT_SOCKET"); v != "" && !cli.CommandLine.Changed("socket") {
		*socket = v
	}

	// stdout carries the protocol
	log.SetDefault(log.New(tint.NewHandler(os.Stderr, &tint.Options{Level: log.LevelInfo})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("MCP bridge ready", "socket", *socket)
	if err := mcp.NewServer(mcp.SocketSender(*socket)).Run(ctx); err != nil {
		log.Error("MCP server stopped", "err", err)
		os.Exit(1)
	}
}
