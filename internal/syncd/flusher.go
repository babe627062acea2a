// Package syncd provides the background sync daemon that drains the
// offline capture queue when connectivity returns.
//
// The daemon and the foreground CLI are separate processes sharing
// only the durable store. Three independent wake paths all lead to a
// flush attempt: a kick file touched by the foreground on enqueue, the
// connectivity monitor observing an offline-to-online transition, and
// a periodic retry ticker.
package syncd

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"github.com/qrconquest/conquest/internal/api"
	"github.com/qrconquest/conquest/internal/game"
	"github.com/qrconquest/conquest/internal/store"
)

// EventSink receives flush lifecycle notifications. All methods may be
// called from multiple goroutines.
type EventSink interface {
	// EntryDelivered is called when a queued capture is acknowledged by
	// the server and removed from the queue.
	EntryDelivered(pc *game.PendingCapture)
	// EntryPurged is called when a queued capture is rejected for a
	// terminal state reason and removed without delivery.
	EntryPurged(pc *game.PendingCapture, reason string)
	// FlushComplete is called at the end of every flush pass.
	FlushComplete(stats *FlushStats)
}

// FlushStats summarizes one flush pass.
type FlushStats struct {
	Attempted int           `json:"attempted"`
	Delivered int           `json:"delivered"`
	Purged    int           `json:"purged"`
	Remaining int           `json:"remaining"`
	Duration  time.Duration `json:"duration"`
}

// Flusher drains the pending capture queue against the remote capture
// endpoint, tolerating partial failure: each entry's outcome is
// independent, and a failure on one never skips the others.
type Flusher struct {
	store  *store.Store
	client *api.Client
	logger *log.Logger
	sink   EventSink
}

// NewFlusher creates a Flusher. If logger is nil, a default logger
// writing to stderr is used. sink may be nil.
func NewFlusher(st *store.Store, client *api.Client, logger *log.Logger, sink EventSink) *Flusher {
	if logger == nil {
		logger = log.New(os.Stderr, "[flush] ", log.LstdFlags)
	}
	return &Flusher{
		store:  st,
		client: client,
		logger: logger,
		sink:   sink,
	}
}

// Flush attempts to deliver every currently-pending capture.
//
// Entries are submitted concurrently with their stored coordinates
// (the original, possibly stale, GPS reading - never re-acquired).
// Per entry:
//   - acknowledged: removed from the queue and journaled as delivered
//   - transport failure or retryable rejection (408, 429, 5xx): left
//     untouched for the next trigger firing
//   - terminal rejection (any other 4xx): removed and journaled as
//     purged - retrying a state-based rejection cannot change the
//     outcome, and leaving it would wedge the queue forever
//
// Overlapping flush passes are safe without locking: Remove is
// idempotent, and duplicate submissions carry the same idempotency key
// for server-side dedup.
func (f *Flusher) Flush(ctx context.Context) (*FlushStats, error) {
	start := time.Now()

	pending, err := f.store.ListPendingContext(ctx)
	if err != nil {
		return nil, err
	}

	stats := &FlushStats{Attempted: len(pending)}
	if len(pending) == 0 {
		stats.Duration = time.Since(start)
		return stats, nil
	}

	f.logger.Printf("Flushing %d pending capture(s)", len(pending))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, pc := range pending {
		wg.Add(1)
		go func(pc *game.PendingCapture) {
			defer wg.Done()

			outcome := f.flushOne(ctx, pc)
			mu.Lock()
			switch outcome {
			case store.OutcomeDelivered:
				stats.Delivered++
			case store.OutcomePurged:
				stats.Purged++
			}
			mu.Unlock()
		}(pc)
	}
	wg.Wait()

	stats.Remaining = stats.Attempted - stats.Delivered - stats.Purged
	stats.Duration = time.Since(start)

	f.logger.Printf("Flush complete: delivered=%d purged=%d remaining=%d (%v)",
		stats.Delivered, stats.Purged, stats.Remaining, stats.Duration.Round(time.Millisecond))

	if f.sink != nil {
		f.sink.FlushComplete(stats)
	}

	return stats, nil
}

// flushOne submits a single entry and resolves its disposition.
// Returns the journal outcome, or "" when the entry was left queued.
func (f *Flusher) flushOne(ctx context.Context, pc *game.PendingCapture) string {
	err := f.client.CaptureBase(ctx, pc.BaseID, api.CaptureRequest{
		PlayerID:       pc.PlayerID,
		Latitude:       pc.Latitude,
		Longitude:      pc.Longitude,
		IdempotencyKey: pc.IdempotencyKey,
	})

	switch {
	case err == nil:
		if removeErr := f.store.RemoveContext(ctx, pc.ID); removeErr != nil {
			f.logger.Printf("Warning: failed to remove delivered capture %d: %v", pc.ID, removeErr)
			return ""
		}
		if logErr := f.store.AppendSyncLog(ctx, pc.ID, pc.BaseID, store.OutcomeDelivered, ""); logErr != nil {
			f.logger.Printf("Warning: failed to journal capture %d: %v", pc.ID, logErr)
		}
		if f.sink != nil {
			f.sink.EntryDelivered(pc)
		}
		return store.OutcomeDelivered

	case isTerminalRejection(err):
		f.logger.Printf("Capture %d rejected permanently (%v), purging", pc.ID, err)
		if removeErr := f.store.RemoveContext(ctx, pc.ID); removeErr != nil {
			f.logger.Printf("Warning: failed to remove purged capture %d: %v", pc.ID, removeErr)
			return ""
		}
		if logErr := f.store.AppendSyncLog(ctx, pc.ID, pc.BaseID, store.OutcomePurged, err.Error()); logErr != nil {
			f.logger.Printf("Warning: failed to journal capture %d: %v", pc.ID, logErr)
		}
		if f.sink != nil {
			f.sink.EntryPurged(pc, err.Error())
		}
		return store.OutcomePurged

	default:
		// Transport failure or retryable rejection: leave queued for
		// the next trigger firing.
		f.logger.Printf("Capture %d not delivered, keeping queued: %v", pc.ID, err)
		return ""
	}
}

// isTerminalRejection reports whether err is a server rejection that
// no retry can change: any 4xx except request timeout and rate
// limiting. Transport failures and 5xx are always retryable.
func isTerminalRejection(err error) bool {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Status == 408 || apiErr.Status == 429 {
		return false
	}
	return apiErr.Status >= 400 && apiErr.Status < 500
}
