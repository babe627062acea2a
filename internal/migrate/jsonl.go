// Package migrate provides JSONL export and import of the pending
// capture queue.
//
// This is the manual escape hatch for queue surgery: a stuck entry can
// be exported, inspected or edited, cleared, and selectively
// re-imported. Exported entries keep their idempotency keys so a
// re-imported capture is still deduplicated server-side.
package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/qrconquest/conquest/internal/game"
	"github.com/qrconquest/conquest/internal/store"
)

// ExportResult contains statistics about an export.
type ExportResult struct {
	EntriesWritten int
}

// ImportOptions configures an import.
type ImportOptions struct {
	FromJSONL string // input JSONL file path
	DryRun    bool   // preview without writing
}

// ImportResult contains statistics about an import.
type ImportResult struct {
	EntriesRead     int
	EntriesImported int
	EntriesSkipped  int // already present (same idempotency key)
	Errors          []string
}

// Export writes every pending capture to the given path, one JSON
// object per line.
func Export(ctx context.Context, st *store.Store, path string) (*ExportResult, error) {
	pending, err := st.ListPendingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending captures: %w", err)
	}

	// #nosec G304 - controlled path from CLI
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	result := &ExportResult{}
	for _, pc := range pending {
		if err := encoder.Encode(pc); err != nil {
			return nil, fmt.Errorf("failed to write entry %d: %w", pc.ID, err)
		}
		result.EntriesWritten++
	}

	return result, nil
}

// Import reads pending captures from a JSONL file and inserts them
// into the queue. Entries whose idempotency key is already present are
// skipped. Individual bad lines are collected as errors and do not stop
// the import.
func Import(ctx context.Context, st *store.Store, opts ImportOptions) (*ImportResult, error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(opts.FromJSONL)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer file.Close()

	result := &ImportResult{}
	decoder := json.NewDecoder(file)

	for {
		var pc game.PendingCapture
		if err := decoder.Decode(&pc); err != nil {
			if err == io.EOF {
				break
			}
			return result, fmt.Errorf("invalid JSON at entry %d: %w", result.EntriesRead+1, err)
		}
		result.EntriesRead++

		if err := pc.Validate(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d: %v", result.EntriesRead, err))
			continue
		}

		if opts.DryRun {
			result.EntriesImported++
			continue
		}

		// Assigned id is fresh; identity lives in the idempotency key
		pc.ID = 0
		id, err := st.InsertPending(ctx, &pc)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d: %v", result.EntriesRead, err))
			continue
		}
		if id == 0 {
			result.EntriesSkipped++
			continue
		}
		result.EntriesImported++
	}

	return result, nil
}
