package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/qrconquest/conquest/internal/api"
	"github.com/qrconquest/conquest/internal/config"
	"github.com/qrconquest/conquest/internal/dashboard"
	"github.com/qrconquest/conquest/internal/session"
	"github.com/qrconquest/conquest/internal/syncd"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	daemonForeground    bool
	daemonWithDashboard bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon",
	Long: `Run the sync daemon that drains the offline capture queue.

The daemon flushes the queue on three triggers: a kick file touched by
the foreground CLI on enqueue, connectivity returning after an offline
period, and a periodic retry interval. Run it alongside the CLI; the
two share only the database.`,
	Run: func(cmd *cobra.Command, args []string) {
		dataDir := mustDataDir()
		cfg := mustLoadConfig(dataDir)
		st := mustOpenStore(dataDir)
		defer st.Close()

		logger := daemonLogger(cfg, dataDir)

		client := api.NewClient(cfg.ServerURL)

		var sink syncd.EventSink
		if daemonWithDashboard {
			srv := dashboard.NewServer(&dashboard.Config{
				Port:   cfg.Dashboard.Port,
				Logger: logger,
			})
			if err := srv.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error starting dashboard: %v\n", err)
				os.Exit(1)
			}
			defer srv.Stop()
			logger.Printf("Dashboard listening on %s", srv.Addr())
			sink = dashboard.NewHandler(srv, logger)
		}

		flusher := syncd.NewFlusher(st, client, logger, sink)
		probe := &session.PingProbe{Client: client}

		daemonCfg := syncd.DefaultConfig()
		daemonCfg.Logger = logger
		if cfg.Daemon.FlushInterval > 0 {
			daemonCfg.FlushInterval = cfg.Daemon.FlushInterval
		}
		if cfg.Daemon.ProbeInterval > 0 {
			daemonCfg.ProbeInterval = cfg.Daemon.ProbeInterval
		}

		d, err := syncd.New(flusher, probe, dataDir, daemonCfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating daemon: %v\n", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

// daemonLogger builds the daemon logger. Without --foreground, output
// goes to a size-rotated log file under the data directory.
func daemonLogger(cfg *config.Config, dataDir string) *log.Logger {
	if daemonForeground {
		return log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	logFile := cfg.Log.File
	if logFile == "" {
		logFile = "daemon.log"
	}
	if !filepath.IsAbs(logFile) {
		logFile = filepath.Join(dataDir, logFile)
	}
	maxSize := cfg.Log.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	maxBackups := cfg.Log.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 3
	}

	var w io.Writer = &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
	}
	return log.New(w, "[daemon] ", log.LstdFlags)
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonForeground, "foreground", false, "Log to stderr instead of the rotated log file")
	daemonCmd.Flags().BoolVar(&daemonWithDashboard, "dashboard", false, "Serve the live WebSocket dashboard")
	rootCmd.AddCommand(daemonCmd)
}
