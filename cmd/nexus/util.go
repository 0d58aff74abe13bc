package main

import (
	"os"
	"time"
)

const shutdownTimeout = 10 * time.Second

// skillDirs resolves the home and app-data roots the skill loader expands
// "~/..." and "{app_data}/..." source paths against.
func skillDirs() (homeDir, appDataDir string) {
	homeDir, _ = os.UserHomeDir()
	appDataDir, _ = os.UserConfigDir()
	return homeDir, appDataDir
}
