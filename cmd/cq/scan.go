package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/qrconquest/conquest/internal/game"
	"github.com/qrconquest/conquest/internal/store"
	"github.com/qrconquest/conquest/internal/ui"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan <qr-code>",
	Short: "Resolve a scanned QR code",
	Long: `Resolve a scanned QR code against the cached game snapshot.

A base code prints the base details and the capture command to run.
A team code prints the join command. Resolution is local-only so it
works offline; refresh the cache with 'cq game' when online.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		dataDir := mustDataDir()
		st := mustOpenStore(dataDir)
		defer st.Close()

		assignment, err := st.LookupQRCode(ctx, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		switch assignment.Status {
		case game.QRStatusBase:
			base, err := st.GetBaseByID(ctx, assignment.BaseID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if base != nil {
				fmt.Println(ui.RenderAccent(fmt.Sprintf("Base: %s", base.Name)))
				fmt.Printf("  ID:       %s\n", base.ID)
				fmt.Printf("  Location: %.6f, %.6f\n", base.Latitude, base.Longitude)
				fmt.Printf("  Points:   %d\n", base.Points)
				if base.OwnerTeamID != "" {
					fmt.Printf("  Owner:    %s\n", base.OwnerTeamID)
				} else {
					fmt.Printf("  Owner:    %s\n", ui.RenderDim("unclaimed"))
				}
			}
			fmt.Printf("\nCapture with: cq capture %s --lat <lat> --lon <lon>\n", assignment.BaseID)
		case game.QRStatusTeam:
			fmt.Println(ui.RenderAccent(fmt.Sprintf("Team code for team %s", assignment.TeamID)))
			fmt.Printf("\nJoin with: cq join %s --name <your-name>\n", assignment.TeamID)
		default:
			fmt.Println(ui.RenderWarn("Code not found in the cached game snapshot."))
			fmt.Println(ui.RenderDim("Refresh the cache with 'cq game' while online and retry."))
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
