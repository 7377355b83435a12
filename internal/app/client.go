package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	intrnl "roomtalk/internal"
	"roomtalk/internal/storage"
)

// RunClient wires store, transport and controller together and hands the
// stack to the Bubble Tea TUI. It blocks until the user quits.
func RunClient(ctx context.Context, cfg ClientConfig) error {
	if cfg.ServerURL == "" {
		return errors.New("server URL is required")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	store, err := storage.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	session, err := intrnl.NewTransportSession(intrnl.SessionConfig{URL: cfg.ServerURL})
	if err != nil {
		return err
	}

	controller, err := intrnl.NewRoomController(store, session, intrnl.ControllerOptions{
		SettleDelay: cfg.SettleDelay,
		FuzzyWindow: cfg.FuzzyWindow,
	})
	if err != nil {
		return err
	}
	if cfg.Username != "" {
		if err := controller.SetProfile(ctx, cfg.Username); err != nil {
			return err
		}
	}
	if err := controller.Start(ctx); err != nil {
		return err
	}
	defer controller.Close()

	directory, err := intrnl.NewDirectory(cfg.ServerURL)
	if err != nil {
		return err
	}

	return intrnl.RunClient(controller, directory, cfg.ServerURL)
}
