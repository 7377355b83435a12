package app

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// ClientConfig defines the parameters the TUI client needs.
type ClientConfig struct {
	ServerURL   string
	DBPath      string
	Username    string
	SettleDelay time.Duration
	FuzzyWindow time.Duration
}

// DefaultDBPath returns a per-user data path for the bundled SQLite file.
func DefaultDBPath() string {
	if env := os.Getenv("ROOMTALK_DB_PATH"); env != "" {
		return env
	}
	if env := os.Getenv("ROOMTALK_DATA_DIR"); env != "" {
		return filepath.Join(env, "roomtalk.db")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "roomtalk", "roomtalk.db")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Roomtalk", "roomtalk.db")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "Roomtalk", "roomtalk.db")
		}
		return filepath.Join(home, ".local", "share", "roomtalk", "roomtalk.db")
	}
	return filepath.Join(".", ".roomtalk", "roomtalk.db")
}
