// Package persist durably records successful analyses: it uploads the
// source image to object storage and writes the resulting ScanRecord to
// the global and per-user ledgers as one atomic unit, off the interactive
// path.
package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/mealsnap/mealsnap/internal/scan"
)

// GlobalLedgerPath is the collection holding every scan.
const GlobalLedgerPath = "scans"

// UserLedgerPath returns the collection holding one user's scans.
func UserLedgerPath(userID string) string {
	return fmt.Sprintf("users/%s/scans", userID)
}

// ErrPartialWrite is returned by a Ledger whose backend applied some but
// not all writes of a batch. Stores with true multi-document atomicity
// never return it.
var ErrPartialWrite = errors.New("ledger batch partially applied")

// ObjectStorage is the image upload boundary.
type ObjectStorage interface {
	// Put stores data under key and returns a retrievable reference.
	Put(ctx context.Context, key string, data []byte) (string, error)
	// Delete removes the object under key. Used for compensating cleanup.
	Delete(ctx context.Context, key string) error
}

// Write pairs a ledger collection path with the record destined for it.
type Write struct {
	Path   string
	Record scan.ScanRecord
}

// Ledger is the document store boundary. BatchWrite must apply all writes
// or none; a backend that cannot guarantee that reports ErrPartialWrite so
// the pipeline can compensate.
type Ledger interface {
	BatchWrite(ctx context.Context, writes []Write) error
	List(ctx context.Context, path string, limit int) ([]scan.ScanRecord, error)
}
