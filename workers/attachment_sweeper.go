package workers

import (
	"context"
	"log/slog"
	"time"

	"carechat/repositories"
	"carechat/storage"
)

// AttachmentSweeper retries audio file removals that failed when their
// message was soft-deleted. Soft-delete drops the file best-effort and
// never fails the request; the sweeper guarantees the audit row does not
// pin its payload on disk forever.
type AttachmentSweeper struct {
	log        *slog.Logger
	repository repositories.IMessageRepository
	store      *storage.AudioStore
	interval   time.Duration
	lookback   time.Duration
}

func NewAttachmentSweeper(
	log *slog.Logger,
	repository repositories.IMessageRepository,
	store *storage.AudioStore,
	interval, lookback time.Duration,
) *AttachmentSweeper {
	return &AttachmentSweeper{
		log:        log,
		repository: repository,
		store:      store,
		interval:   interval,
		lookback:   lookback,
	}
}

func (w *AttachmentSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.sweep()
		}
	}
}

// sweep walks recently soft-deleted AUDIO messages and removes any file
// that survived a failed best-effort delete.
func (w *AttachmentSweeper) sweep() {
	deleted, err := w.repository.SoftDeleted(time.Now().Add(-w.lookback))
	if err != nil {
		w.log.Error("Sweep scan failed", "error", err)
		return
	}
	for _, message := range deleted {
		id := storage.IDFromURL(message.AudioURL)
		if id == "" || !w.store.Exists(id) {
			continue
		}
		if err := w.store.Remove(id); err != nil {
			w.log.Warn("Sweep removal failed", "message", message.ID, "attachment", id, "error", err)
			continue
		}
		w.log.Info("Orphaned attachment removed", "message", message.ID, "attachment", id)
	}
}
