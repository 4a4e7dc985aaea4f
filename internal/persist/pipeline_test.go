package persist

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/mealsnap/mealsnap/internal/scan"
)

var appleResult = scan.AnalysisResult{
	OverallFoodItem:      "Apple",
	ConstituentFoodItems: []scan.FoodItem{{Name: "Apple", WeightGrams: 182}},
	TotalWeightGrams:     182,
	ConfidencePercentage: 91,
}

func collectOne(t *testing.T, ch chan Notification) Notification {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pipeline notification")
		return Notification{}
	}
}

func newTestPipeline(objects ObjectStorage, ledger Ledger) (*Pipeline, chan Notification) {
	ch := make(chan Notification, 1)
	p := NewPipeline(objects, ledger, func(n Notification) { ch <- n })
	p.newID = func() string { return "rec_1" }
	p.now = func() time.Time { return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC) }
	return p, ch
}

func TestDispatchWritesBothLedgers(t *testing.T) {
	objects := NewMemoryObjects()
	ledger := NewMemoryLedger()
	p, ch := newTestPipeline(objects, ledger)

	p.Dispatch(appleResult, []byte("IMG1"), "u_123")
	p.Wait()

	n := collectOne(t, ch)
	if n.Err != nil {
		t.Fatalf("notification error: %v", n.Err)
	}
	if n.RecordID != "rec_1" || n.UserID != "u_123" {
		t.Fatalf("unexpected notification: %+v", n)
	}

	global, err := ledger.List(context.Background(), GlobalLedgerPath, 0)
	if err != nil {
		t.Fatalf("list global: %v", err)
	}
	user, err := ledger.List(context.Background(), UserLedgerPath("u_123"), 0)
	if err != nil {
		t.Fatalf("list user: %v", err)
	}
	if len(global) != 1 || len(user) != 1 {
		t.Fatalf("expected 1 record per ledger, got %d and %d", len(global), len(user))
	}

	// Read-back from either ledger yields field-for-field identical values.
	if !reflect.DeepEqual(global[0], user[0]) {
		t.Errorf("ledgers diverge:\nglobal: %+v\nuser:   %+v", global[0], user[0])
	}
	rec := global[0]
	if rec.OverallFoodItem != "Apple" || rec.TotalWeightGrams != 182 || rec.ConfidencePercentage != 91 {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.ImageRef == "" {
		t.Error("record has no image reference")
	}
	if _, ok := objects.Get("users/u_123/scans/rec_1.jpg"); !ok {
		t.Error("uploaded object missing")
	}
}

// failingObjects wraps MemoryObjects and fails Put.
type failingObjects struct {
	*MemoryObjects
}

func (f *failingObjects) Put(ctx context.Context, key string, data []byte) (string, error) {
	return "", errors.New("bucket unreachable")
}

func TestDispatchUploadFailure(t *testing.T) {
	ledger := NewMemoryLedger()
	p, ch := newTestPipeline(&failingObjects{NewMemoryObjects()}, ledger)

	p.Dispatch(appleResult, []byte("IMG1"), "u_123")
	p.Wait()

	n := collectOne(t, ch)
	var perr *scan.PersistenceError
	if !errors.As(n.Err, &perr) || perr.Reason != scan.ReasonUploadFailed {
		t.Fatalf("expected upload-failed, got %v", n.Err)
	}

	global, _ := ledger.List(context.Background(), GlobalLedgerPath, 0)
	if len(global) != 0 {
		t.Fatalf("ledger written despite upload failure: %d records", len(global))
	}
}

// brokenLedger fails batch writes with a configurable error.
type brokenLedger struct {
	err error
}

func (b *brokenLedger) BatchWrite(ctx context.Context, writes []Write) error { return b.err }
func (b *brokenLedger) List(ctx context.Context, path string, limit int) ([]scan.ScanRecord, error) {
	return nil, nil
}

func TestDispatchWriteFailureCompensates(t *testing.T) {
	objects := NewMemoryObjects()
	p, ch := newTestPipeline(objects, &brokenLedger{err: errors.New("store down")})

	p.Dispatch(appleResult, []byte("IMG1"), "u_123")
	p.Wait()

	n := collectOne(t, ch)
	var perr *scan.PersistenceError
	if !errors.As(n.Err, &perr) || perr.Reason != scan.ReasonWriteFailed {
		t.Fatalf("expected write-failed, got %v", n.Err)
	}
	// The orphaned upload is compensated away.
	if objects.Len() != 0 {
		t.Fatalf("expected compensating delete, %d objects remain", objects.Len())
	}
}

func TestDispatchPartialWriteDetected(t *testing.T) {
	objects := NewMemoryObjects()
	p, ch := newTestPipeline(objects, &brokenLedger{err: ErrPartialWrite})

	p.Dispatch(appleResult, []byte("IMG1"), "u_123")
	p.Wait()

	n := collectOne(t, ch)
	var perr *scan.PersistenceError
	if !errors.As(n.Err, &perr) || perr.Reason != scan.ReasonPartialWrite {
		t.Fatalf("expected partial-write, got %v", n.Err)
	}
	if objects.Len() != 0 {
		t.Fatalf("expected compensating delete, %d objects remain", objects.Len())
	}
}

func TestMemoryLedgerListOrderAndLimit(t *testing.T) {
	ledger := NewMemoryLedger()
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		rec := scan.NewScanRecord(id, "u_123", "mem://"+id, appleResult, base.Add(time.Duration(i)*time.Minute))
		err := ledger.BatchWrite(context.Background(), []Write{
			{Path: GlobalLedgerPath, Record: rec},
		})
		if err != nil {
			t.Fatalf("write %s: %v", id, err)
		}
	}

	records, err := ledger.List(context.Background(), GlobalLedgerPath, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 || records[0].ID != "c" || records[1].ID != "b" {
		t.Fatalf("unexpected order: %+v", records)
	}
}
