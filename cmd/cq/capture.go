package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/qrconquest/conquest/internal/api"
	"github.com/qrconquest/conquest/internal/game"
	"github.com/qrconquest/conquest/internal/session"
	"github.com/qrconquest/conquest/internal/ui"
	"github.com/spf13/cobra"
)

var (
	captureLat float64
	captureLon float64
)

var captureCmd = &cobra.Command{
	Use:   "capture <base-id>",
	Short: "Capture a base",
	Long: `Capture a base at your current coordinates.

Online the capture is submitted immediately. Offline (or when the
server is unreachable) the capture is queued locally and delivered by
the sync daemon when connectivity returns.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dataDir := mustDataDir()
		cfg := mustLoadConfig(dataDir)
		st := mustOpenStore(dataDir)
		defer st.Close()

		client := api.NewClient(cfg.ServerURL)
		sess := session.New(client, st, nil, session.Identity{
			PlayerID: cfg.PlayerID,
			TeamID:   cfg.TeamID,
			GameID:   cfg.GameID,
		}, nil)

		result, err := sess.Capture(context.Background(), args[0], captureLat, captureLon)
		if err != nil {
			if errors.Is(err, session.ErrNotOnTeam) {
				fmt.Fprintf(os.Stderr, "Error: not on a team (run 'cq join' first)\n")
				os.Exit(1)
			}
			var apiErr *api.Error
			if errors.As(err, &apiErr) {
				fmt.Println(ui.RenderError(fmt.Sprintf("✗ Capture rejected: %s", apiErr.Message)))
				os.Exit(1)
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		switch result.Outcome {
		case game.OutcomeCaptured:
			fmt.Println(ui.RenderPass(fmt.Sprintf("✓ Base %s captured", args[0])))
		case game.OutcomeQueued:
			fmt.Println(ui.RenderWarn(fmt.Sprintf("⏳ Offline: capture queued (#%d), will sync when online", result.QueueID)))
		}
	},
}

func init() {
	captureCmd.Flags().Float64Var(&captureLat, "lat", 0, "Current latitude")
	captureCmd.Flags().Float64Var(&captureLon, "lon", 0, "Current longitude")
	captureCmd.MarkFlagRequired("lat")
	captureCmd.MarkFlagRequired("lon")
	rootCmd.AddCommand(captureCmd)
}
