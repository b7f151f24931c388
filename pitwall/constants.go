package pitwall

import (
	"os"
	"path/filepath"
)

const (
	DefaultAppName      = "pitwall"
	DefaultServiceName  = "F1 Race Engineer"
	DefaultListenAddr   = ":8000"
	DefaultDatabaseType = "libsql"
)

var (
	DefaultConfigPath   = filepath.Join(userConfigDir(), DefaultAppName)
	DefaultDataDir      = filepath.Join(userDataDir(), DefaultAppName)
	DefaultDatabaseDSN  = filepath.Join(DefaultDataDir, "pitwall.db")
	DefaultRulebookDir  = filepath.Join(DefaultDataDir, "regulations")
	DefaultAllowOrigins = []string{"http://localhost:3000"}
)

func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return "."
}

func userDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share")
	}
	return "."
}

// Version is stamped at build time with -ldflags "-X".
var Version = "dev"
