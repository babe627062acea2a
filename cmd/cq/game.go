package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/qrconquest/conquest/internal/api"
	"github.com/qrconquest/conquest/internal/session"
	"github.com/qrconquest/conquest/internal/ui"
	"github.com/spf13/cobra"
)

var gameCmd = &cobra.Command{
	Use:   "game [game-id]",
	Short: "Show game state and scoreboard",
	Long: `Show the game roster, base ownership, and scoreboard.

Online the state is fetched live and the local cache refreshed.
Offline the last cached snapshot is shown with its age.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dataDir := mustDataDir()
		cfg := mustLoadConfig(dataDir)
		st := mustOpenStore(dataDir)
		defer st.Close()

		gameID := cfg.GameID
		if len(args) == 1 {
			gameID = args[0]
		}
		if gameID == "" {
			fmt.Fprintf(os.Stderr, "Error: no game id (join a team first or pass one explicitly)\n")
			os.Exit(1)
		}

		client := api.NewClient(cfg.ServerURL)
		sess := session.New(client, st, nil, session.Identity{
			PlayerID: cfg.PlayerID,
			TeamID:   cfg.TeamID,
			GameID:   cfg.GameID,
		}, nil)

		g, fetchedAt, err := sess.LoadGame(context.Background(), gameID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Println(ui.RenderAccent(fmt.Sprintf("%s (%s)", g.Name, g.Status)))
		if !fetchedAt.IsZero() {
			age := time.Since(fetchedAt).Round(time.Second)
			fmt.Println(ui.RenderDim(fmt.Sprintf("cached snapshot, %s old", age)))
		}

		teams := make([]struct {
			name  string
			score int
			mine  bool
		}, 0, len(g.Teams))
		for _, t := range g.Teams {
			teams = append(teams, struct {
				name  string
				score int
				mine  bool
			}{t.Name, t.Score, t.ID == cfg.TeamID})
		}
		sort.Slice(teams, func(i, j int) bool { return teams[i].score > teams[j].score })

		fmt.Println("\nScoreboard:")
		for i, t := range teams {
			line := fmt.Sprintf("  %d. %-20s %d", i+1, t.name, t.score)
			if t.mine {
				line += "  *"
			}
			fmt.Println(line)
		}

		owners := make(map[string]string, len(g.Teams))
		for _, t := range g.Teams {
			owners[t.ID] = t.Name
		}
		fmt.Println("\nBases:")
		for _, b := range g.Bases {
			owner := ui.RenderDim("unclaimed")
			if b.OwnerTeamID != "" {
				owner = owners[b.OwnerTeamID]
			}
			fmt.Printf("  %-20s %3d pts  %s\n", b.Name, b.Points, owner)
		}
	},
}

func init() {
	rootCmd.AddCommand(gameCmd)
}
