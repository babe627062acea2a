package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/qrconquest/conquest/internal/api"
	"github.com/qrconquest/conquest/internal/ui"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity, identity, and queue state",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		dataDir := mustDataDir()
		cfg := mustLoadConfig(dataDir)
		st := mustOpenStore(dataDir)
		defer st.Close()

		client := api.NewClient(cfg.ServerURL)

		fmt.Printf("Server:  %s ", cfg.ServerURL)
		if client.Ping(ctx) == nil {
			fmt.Println(ui.RenderPass("online"))
		} else {
			fmt.Println(ui.RenderWarn("offline"))
		}

		if cfg.PlayerID != "" {
			fmt.Printf("Player:  %s (%s)\n", cfg.PlayerName, cfg.PlayerID)
			fmt.Printf("Team:    %s\n", cfg.TeamID)
			fmt.Printf("Game:    %s\n", cfg.GameID)
		} else {
			fmt.Printf("Player:  %s\n", ui.RenderDim("not joined"))
		}

		count, err := st.PendingCountContext(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if count == 0 {
			fmt.Printf("Queue:   %s\n", ui.RenderDim("empty"))
		} else {
			fmt.Printf("Queue:   %s\n", ui.RenderWarn(fmt.Sprintf("%d pending capture(s)", count)))
		}

		if cfg.GameID != "" {
			if _, fetchedAt, err := st.GetGameSnapshot(ctx, cfg.GameID); err == nil {
				age := time.Since(fetchedAt).Round(time.Second)
				fmt.Printf("Cache:   snapshot %s old\n", age)
			} else {
				fmt.Printf("Cache:   %s\n", ui.RenderDim("no snapshot"))
			}
		}

		if entries, err := st.ListSyncLog(ctx, 1); err == nil && len(entries) > 0 {
			e := entries[0]
			fmt.Printf("Last sync: %s %s at %s\n", e.Outcome, e.BaseID,
				e.FlushedAt.Format(time.RFC3339))
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
