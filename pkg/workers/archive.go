package workers

import (
	"context"
	"time"

	"github.com/cbodonnell/scribble/pkg/log"
	"github.com/cbodonnell/scribble/pkg/queue"
	"github.com/cbodonnell/scribble/pkg/repositories"
	"github.com/cbodonnell/scribble/pkg/repositories/models"
)

// flushTimeout bounds the final drain after the worker is cancelled.
const flushTimeout = 5 * time.Second

type ArchiveWorker struct {
	repository repositories.Repository
	queue      queue.Queue
	interval   time.Duration
}

type NewArchiveWorkerOptions struct {
	Repository repositories.Repository
	Queue      queue.Queue
	Interval   time.Duration
}

// NewArchiveWorker creates a new ArchiveWorker.
// The worker periodically drains finished rounds and games queued by the
// sessions and saves them to the repository.
func NewArchiveWorker(opts NewArchiveWorkerOptions) *ArchiveWorker {
	return &ArchiveWorker{
		repository: opts.Repository,
		queue:      opts.Queue,
		interval:   opts.Interval,
	}
}

// Start runs until ctx is cancelled, then flushes whatever is still queued.
func (w *ArchiveWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			w.flush(flushCtx)
			cancel()
			return
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *ArchiveWorker) flush(ctx context.Context) {
	items := w.queue.ReadAllMessages()
	if len(items) == 0 {
		return
	}
	log.Trace("Archiving %d items", len(items))

	for _, item := range items {
		switch record := item.(type) {
		case *models.RoundRecord:
			w.saveRound(ctx, record)
		case *models.GameResult:
			w.saveGameResult(ctx, record)
		default:
			log.Warn("Unknown archive item type: %T", item)
		}
	}
}

func (w *ArchiveWorker) saveRound(ctx context.Context, round *models.RoundRecord) {
	if err := w.repository.SaveRound(ctx, round); err != nil {
		log.Error("Failed to save round %d of room %s: %v", round.RoundNumber, round.RoomID, err)
	}
}

func (w *ArchiveWorker) saveGameResult(ctx context.Context, result *models.GameResult) {
	if err := w.repository.SaveGameResult(ctx, result); err != nil {
		log.Error("Failed to save game result of room %s: %v", result.RoomID, err)
	}
}
