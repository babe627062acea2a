package main

import (
	"fmt"
	"os"

	"github.com/qrconquest/conquest/internal/config"
	"github.com/qrconquest/conquest/internal/store"
	"github.com/qrconquest/conquest/internal/ui"
	"github.com/spf13/cobra"
)

var initServerURL string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a .conquest data directory",
	Long: `Initialize a .conquest data directory in the current directory.

Creates the config file and the local database that holds the offline
capture queue and the cached game snapshot.`,
	Run: func(cmd *cobra.Command, args []string) {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		dataDir, err := config.Init(cwd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing config: %v\n", err)
			os.Exit(1)
		}

		if initServerURL != "" {
			cfg := mustLoadConfig(dataDir)
			cfg.ServerURL = initServerURL
			if err := config.Save(dataDir, cfg); err != nil {
				fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
				os.Exit(1)
			}
		}

		st, err := store.Open(config.DatabasePath(dataDir))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing database: %v\n", err)
			os.Exit(1)
		}
		st.Close()

		fmt.Println(ui.RenderPass(fmt.Sprintf("✓ Initialized %s", dataDir)))
		fmt.Println(ui.RenderDim("Next: cq join <team-id> --name <your-name>"))
	},
}

func init() {
	initCmd.Flags().StringVar(&initServerURL, "server", "", "Game server URL")
	rootCmd.AddCommand(initCmd)
}
