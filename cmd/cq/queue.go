package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/qrconquest/conquest/internal/api"
	"github.com/qrconquest/conquest/internal/loadtest"
	"github.com/qrconquest/conquest/internal/migrate"
	"github.com/qrconquest/conquest/internal/store"
	"github.com/qrconquest/conquest/internal/syncd"
	"github.com/qrconquest/conquest/internal/ui"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the offline capture queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending captures",
	Run: func(cmd *cobra.Command, args []string) {
		dataDir := mustDataDir()
		st := mustOpenStore(dataDir)
		defer st.Close()

		pending, err := st.ListPendingContext(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if len(pending) == 0 {
			fmt.Println(ui.RenderDim("Queue is empty."))
			return
		}

		fmt.Printf("%d pending capture(s):\n", len(pending))
		for _, pc := range pending {
			fmt.Printf("  #%-4d base=%s  (%.6f, %.6f)  %s\n",
				pc.ID, pc.BaseID, pc.Latitude, pc.Longitude,
				ui.RenderDim(pc.CreatedAt.Format(time.RFC3339)))
		}
	},
}

var queueFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Flush the queue now",
	Long:  `Attempt delivery of every pending capture immediately, without waiting for the daemon.`,
	Run: func(cmd *cobra.Command, args []string) {
		dataDir := mustDataDir()
		cfg := mustLoadConfig(dataDir)
		st := mustOpenStore(dataDir)
		defer st.Close()

		flusher := syncd.NewFlusher(st, api.NewClient(cfg.ServerURL), nil, nil)
		stats, err := flusher.Flush(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if stats.Attempted == 0 {
			fmt.Println(ui.RenderDim("Queue is empty."))
			return
		}
		fmt.Println(ui.RenderPass(fmt.Sprintf("✓ Flush: %d delivered, %d purged, %d remaining (%v)",
			stats.Delivered, stats.Purged, stats.Remaining, stats.Duration.Round(time.Millisecond))))
		if stats.Remaining > 0 {
			fmt.Println(ui.RenderWarn("Some captures could not be delivered; they stay queued."))
		}
	},
}

var queueHistoryLimit int

var queueHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the sync journal",
	Long:  `Show recent queue outcomes: deliveries and purged rejections, newest first.`,
	Run: func(cmd *cobra.Command, args []string) {
		dataDir := mustDataDir()
		st := mustOpenStore(dataDir)
		defer st.Close()

		entries, err := st.ListSyncLog(context.Background(), queueHistoryLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if len(entries) == 0 {
			fmt.Println(ui.RenderDim("No sync history yet."))
			return
		}

		for _, e := range entries {
			stamp := ui.RenderDim(e.FlushedAt.Format(time.RFC3339))
			switch e.Outcome {
			case store.OutcomeDelivered:
				fmt.Printf("%s  %s  base=%s\n", stamp, ui.RenderPass("delivered"), e.BaseID)
			case store.OutcomePurged:
				fmt.Printf("%s  %s  base=%s  %s\n", stamp, ui.RenderError("purged"), e.BaseID, e.Detail)
			default:
				fmt.Printf("%s  %s  base=%s\n", stamp, e.Outcome, e.BaseID)
			}
		}
	},
}

var queueClearForce bool

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop all pending captures",
	Run: func(cmd *cobra.Command, args []string) {
		if !queueClearForce {
			fmt.Fprintf(os.Stderr, "Error: clearing discards undelivered captures; re-run with --force\n")
			os.Exit(1)
		}

		ctx := context.Background()
		dataDir := mustDataDir()
		st := mustOpenStore(dataDir)
		defer st.Close()

		pending, err := st.ListPendingContext(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for _, pc := range pending {
			if err := st.RemoveContext(ctx, pc.ID); err != nil {
				fmt.Fprintf(os.Stderr, "Error removing capture %d: %v\n", pc.ID, err)
				os.Exit(1)
			}
		}
		fmt.Println(ui.RenderPass(fmt.Sprintf("✓ Cleared %d pending capture(s)", len(pending))))
	},
}

var queueExportCmd = &cobra.Command{
	Use:   "export <file.jsonl>",
	Short: "Export pending captures to JSONL",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dataDir := mustDataDir()
		st := mustOpenStore(dataDir)
		defer st.Close()

		result, err := migrate.Export(context.Background(), st, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(ui.RenderPass(fmt.Sprintf("✓ Exported %d capture(s) to %s", result.EntriesWritten, args[0])))
	},
}

var queueImportDryRun bool

var queueImportCmd = &cobra.Command{
	Use:   "import <file.jsonl>",
	Short: "Import pending captures from JSONL",
	Long: `Import pending captures from a JSONL export, typically when moving a
device. Entries already present (same idempotency key) are skipped.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dataDir := mustDataDir()
		st := mustOpenStore(dataDir)
		defer st.Close()

		result, err := migrate.Import(context.Background(), st, migrate.ImportOptions{
			FromJSONL: args[0],
			DryRun:    queueImportDryRun,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		verb := "Imported"
		if queueImportDryRun {
			verb = "Would import"
		}
		fmt.Println(ui.RenderPass(fmt.Sprintf("✓ %s %d of %d capture(s), %d skipped",
			verb, result.EntriesImported, result.EntriesRead, result.EntriesSkipped)))
		for _, e := range result.Errors {
			fmt.Println(ui.RenderWarn("  " + e))
		}
	},
}

var (
	loadtestWorkers  int
	loadtestCaptures int
)

var queueLoadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Benchmark queue throughput against a throwaway database",
	Run: func(cmd *cobra.Command, args []string) {
		dbPath := fmt.Sprintf("%s/loadtest-%d.db", os.TempDir(), time.Now().UnixNano())
		defer os.Remove(dbPath)

		fmt.Printf("Running load test: %d workers x %d captures\n", loadtestWorkers, loadtestCaptures)
		result, err := loadtest.Run(context.Background(), dbPath, loadtest.Options{
			Workers:           loadtestWorkers,
			CapturesPerWorker: loadtestCaptures,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Println(ui.RenderPass(fmt.Sprintf("✓ Enqueued %d capture(s) in %v", result.Enqueued, result.Elapsed.Round(time.Millisecond))))
		fmt.Printf("  min=%v mean=%v p50=%v p95=%v max=%v errors=%d\n",
			result.Enqueue.Min, result.Enqueue.Mean, result.Enqueue.P50,
			result.Enqueue.P95, result.Enqueue.Max, result.Enqueue.Errors)
	},
}

func init() {
	queueHistoryCmd.Flags().IntVar(&queueHistoryLimit, "limit", 20, "Maximum entries to show")
	queueClearCmd.Flags().BoolVar(&queueClearForce, "force", false, "Confirm discarding undelivered captures")
	queueImportCmd.Flags().BoolVar(&queueImportDryRun, "dry-run", false, "Preview without writing")
	queueLoadtestCmd.Flags().IntVar(&loadtestWorkers, "workers", 8, "Concurrent workers")
	queueLoadtestCmd.Flags().IntVar(&loadtestCaptures, "captures", 100, "Captures per worker")

	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueFlushCmd)
	queueCmd.AddCommand(queueHistoryCmd)
	queueCmd.AddCommand(queueClearCmd)
	queueCmd.AddCommand(queueExportCmd)
	queueCmd.AddCommand(queueImportCmd)
	queueCmd.AddCommand(queueLoadtestCmd)
	rootCmd.AddCommand(queueCmd)
}
