package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roomtalk/internal"
	"roomtalk/internal/app"
)

func main() {
	flagSet := flag.NewFlagSet("roomtalk", flag.ExitOnError)
	serverURL := flagSet.String("server-url", envOrDefault("ROOMTALK_SERVER", "ws://localhost:8080/socketio"), "server websocket URL")
	db := flagSet.String("db", envOrDefault("ROOMTALK_DB_PATH", ""), "sqlite database path (defaults to a per-user path)")
	username := flagSet.String("user", envOrDefault("ROOMTALK_USER", ""), "display name, skips the name prompt")
	settle := flagSet.Duration("settle-delay", 500*time.Millisecond, "wait after reconnect before sending queued messages")
	fuzzy := flagSet.Duration("fuzzy-window", time.Second, "duplicate matching window for messages without an id")
	showVersion := flagSet.Bool("version", false, "print version and exit")
	flagSet.Parse(os.Args[1:])

	if *showVersion {
		fmt.Println("roomtalk", internal.Version)
		return
	}

	cfg := app.ClientConfig{
		ServerURL:   *serverURL,
		DBPath:      *db,
		Username:    *username,
		SettleDelay: *settle,
		FuzzyWindow: *fuzzy,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunClient(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "roomtalk: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
