package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qrconquest/conquest/internal/dashboard"
	"github.com/qrconquest/conquest/internal/store"
	"github.com/qrconquest/conquest/internal/ui"
	"github.com/spf13/cobra"
)

var (
	dashboardPort     int
	dashboardInterval time.Duration
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Serve a live WebSocket dashboard",
	Long: `Serve a WebSocket dashboard broadcasting queue depth and the cached
scoreboard. Subscribers connect to ws://localhost:<port>/ws.

For per-entry delivery events, run the daemon with --dashboard instead;
this standalone mode only polls the local database.`,
	Run: func(cmd *cobra.Command, args []string) {
		dataDir := mustDataDir()
		cfg := mustLoadConfig(dataDir)
		st := mustOpenStore(dataDir)
		defer st.Close()

		if dashboardPort == 0 {
			dashboardPort = cfg.Dashboard.Port
		}

		logger := log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
		srv := dashboard.NewServer(&dashboard.Config{
			Port:   dashboardPort,
			Logger: logger,
		})
		if err := srv.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting dashboard: %v\n", err)
			os.Exit(1)
		}
		defer srv.Stop()

		handler := dashboard.NewHandler(srv, logger)

		fmt.Println(ui.RenderPass(fmt.Sprintf("✓ Dashboard listening on %s", srv.Addr())))
		fmt.Println(ui.RenderDim(fmt.Sprintf("WebSocket: ws://localhost%s/ws", srv.Addr())))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ticker := time.NewTicker(dashboardInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				fmt.Println("\nShutting down...")
				return
			case <-ticker.C:
				broadcastSnapshot(ctx, handler, st, cfg.GameID)
			}
		}
	},
}

// broadcastSnapshot pushes the current queue depth and cached
// scoreboard to dashboard subscribers.
func broadcastSnapshot(ctx context.Context, h *dashboard.Handler, st *store.Store, gameID string) {
	if count, err := st.PendingCountContext(ctx); err == nil {
		h.QueueStats(count)
	}
	if gameID == "" {
		return
	}
	if g, _, err := st.GetGameSnapshot(ctx, gameID); err == nil {
		h.ScoreUpdate(g.ID, g.Teams)
	}
}

func init() {
	dashboardCmd.Flags().IntVar(&dashboardPort, "port", 0, "Port to listen on (default: config dashboard.port)")
	dashboardCmd.Flags().DurationVar(&dashboardInterval, "interval", 5*time.Second, "Broadcast interval")
	rootCmd.AddCommand(dashboardCmd)
}
