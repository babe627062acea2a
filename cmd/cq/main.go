// Command cq is the QR Conquest client.
//
// Players capture bases by scanning QR codes at physical locations.
// Captures made while offline are queued in a local SQLite database
// and delivered by the sync daemon when connectivity returns.
package main

import (
	"fmt"
	"os"

	"github.com/qrconquest/conquest/internal/config"
	"github.com/qrconquest/conquest/internal/store"
	"github.com/qrconquest/conquest/internal/syncd"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cq",
	Short: "QR Conquest client",
	Long: `cq is the QR Conquest command-line client.

Capture bases, join teams, and inspect game state. Captures made while
offline are queued locally (.conquest/conquest.db) and delivered in the
background by 'cq daemon' once the server is reachable again.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// mustDataDir locates the .conquest data directory or exits.
func mustDataDir() string {
	dataDir := config.FindDataDir()
	if dataDir == "" {
		fmt.Fprintf(os.Stderr, "Error: .conquest directory not found (run 'cq init' first)\n")
		os.Exit(1)
	}
	return dataDir
}

// mustLoadConfig loads the configuration or exits.
func mustLoadConfig(dataDir string) *config.Config {
	cfg, err := config.Load(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// mustOpenStore opens the local store with the daemon wake hook
// installed, or exits.
func mustOpenStore(dataDir string) *store.Store {
	st, err := store.Open(config.DatabasePath(dataDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	st.SetWakeFunc(func() error {
		return syncd.Kick(dataDir)
	})
	return st
}
