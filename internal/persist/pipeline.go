package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mealsnap/mealsnap/internal/scan"
)

// Notification reports the outcome of one persistence attempt. Err is nil
// on success. Notifications never feed back into session state.
type Notification struct {
	RecordID string
	UserID   string
	ImageRef string
	Err      error
}

// Notifier receives pipeline outcomes. Must not block for long; the
// pipeline calls it from its background goroutine.
type Notifier func(Notification)

// Pipeline performs the upload-then-dual-write sequence for each
// successful analysis. Dispatch is fire-and-forget: the caller's result is
// already displayed and is never affected by a persistence failure. The
// pipeline is not cancellable once started; it runs under its own deadline.
type Pipeline struct {
	objects ObjectStorage
	ledger  Ledger
	notify  Notifier
	timeout time.Duration

	wg sync.WaitGroup

	// test seams
	now   func() time.Time
	newID func() string
}

// NewPipeline builds a Pipeline over the given backends. notify may be nil.
func NewPipeline(objects ObjectStorage, ledger Ledger, notify Notifier) *Pipeline {
	if notify == nil {
		notify = func(Notification) {}
	}
	return &Pipeline{
		objects: objects,
		ledger:  ledger,
		notify:  notify,
		timeout: 2 * time.Minute,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Dispatch persists the result asynchronously for the given user. The
// image slice must not be mutated after the call; the session machine
// hands over an owned copy.
func (p *Pipeline) Dispatch(result scan.AnalysisResult, image []byte, userID string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		// Deliberately detached from the caller's context: a new
		// capture cycle must not cancel a persistence already started.
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		n := p.persist(ctx, result, image, userID)
		if n.Err != nil {
			slog.Error("persistence failed", "record_id", n.RecordID, "user_id", userID, "err", n.Err)
		} else {
			slog.Info("scan persisted", "record_id", n.RecordID, "user_id", userID, "image_ref", n.ImageRef)
		}
		p.notify(n)
	}()
}

// Wait blocks until all dispatched persistence attempts have finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) persist(ctx context.Context, result scan.AnalysisResult, image []byte, userID string) Notification {
	recordID := p.newID()
	key := fmt.Sprintf("users/%s/scans/%s.jpg", userID, recordID)

	ref, err := p.objects.Put(ctx, key, image)
	if err != nil {
		return Notification{
			RecordID: recordID,
			UserID:   userID,
			Err:      &scan.PersistenceError{Reason: scan.ReasonUploadFailed, Err: err},
		}
	}

	record := scan.NewScanRecord(recordID, userID, ref, result, p.now().UTC())
	writes := []Write{
		{Path: GlobalLedgerPath, Record: record},
		{Path: UserLedgerPath(userID), Record: record},
	}

	if err := p.ledger.BatchWrite(ctx, writes); err != nil {
		reason := scan.ReasonWriteFailed
		if errors.Is(err, ErrPartialWrite) {
			reason = scan.ReasonPartialWrite
		}
		// The uploaded object is orphaned either way; delete it so the
		// ledgers and storage stay consistent.
		if delErr := p.objects.Delete(ctx, key); delErr != nil {
			slog.Error("compensating delete failed, reconciliation needed",
				"key", key, "record_id", recordID, "err", delErr)
		}
		return Notification{
			RecordID: recordID,
			UserID:   userID,
			Err:      &scan.PersistenceError{Reason: reason, Err: err},
		}
	}

	return Notification{RecordID: recordID, UserID: userID, ImageRef: ref}
}
