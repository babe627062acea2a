package main

import (
	"context"
	"fmt"
	"os"

	"github.com/qrconquest/conquest/internal/api"
	"github.com/qrconquest/conquest/internal/config"
	"github.com/qrconquest/conquest/internal/session"
	"github.com/qrconquest/conquest/internal/ui"
	"github.com/spf13/cobra"
)

var joinName string

var joinCmd = &cobra.Command{
	Use:   "join <team-id>",
	Short: "Join a team",
	Long: `Join a team and save the assigned player identity.

Joining requires connectivity: the server assigns the player id that
every later capture (including queued offline ones) is attributed to.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dataDir := mustDataDir()
		cfg := mustLoadConfig(dataDir)
		st := mustOpenStore(dataDir)
		defer st.Close()

		client := api.NewClient(cfg.ServerURL)
		sess := session.New(client, st, nil, session.Identity{}, nil)

		identity, err := sess.Join(context.Background(), args[0], joinName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error joining team: %v\n", err)
			os.Exit(1)
		}

		cfg.PlayerID = identity.PlayerID
		cfg.PlayerName = joinName
		cfg.TeamID = identity.TeamID
		cfg.GameID = identity.GameID
		if err := config.Save(dataDir, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
			os.Exit(1)
		}

		fmt.Println(ui.RenderPass(fmt.Sprintf("✓ Joined team %s as %s", identity.TeamID, joinName)))
		fmt.Printf("  Player ID: %s\n", identity.PlayerID)
		fmt.Printf("  Game ID:   %s\n", identity.GameID)
	},
}

func init() {
	joinCmd.Flags().StringVar(&joinName, "name", "", "Display name for the player")
	joinCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(joinCmd)
}
