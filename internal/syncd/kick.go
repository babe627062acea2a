package syncd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// kickFileName is the wake signal shared between the foreground CLI
// and the daemon. The foreground touches it after every enqueue; the
// daemon watches it via fsnotify. File contents are informational only.
const kickFileName = "sync.kick"

// KickPath returns the kick file path inside the data directory.
func KickPath(dataDir string) string {
	return filepath.Join(dataDir, kickFileName)
}

// Kick requests a background flush by touching the kick file.
//
// This is the best-effort registration hook installed on the store:
// failure means no daemon wake-up, but the queued record persists and
// a later reconnect or manual flush will still deliver it.
func Kick(dataDir string) error {
	payload := []byte(time.Now().Format(time.RFC3339Nano) + "\n")
	if err := os.WriteFile(KickPath(dataDir), payload, 0644); err != nil {
		return fmt.Errorf("failed to write kick file: %w", err)
	}
	return nil
}
