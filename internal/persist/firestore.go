package persist

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/mealsnap/mealsnap/internal/scan"
	"google.golang.org/api/iterator"
)

// FirestoreLedger writes both ledgers inside one Firestore transaction, so
// partial writes cannot occur.
type FirestoreLedger struct {
	client *firestore.Client
}

// NewFirestoreLedger connects to the given project.
func NewFirestoreLedger(ctx context.Context, projectID string) (*FirestoreLedger, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return &FirestoreLedger{client: client}, nil
}

// Close releases the underlying client.
func (l *FirestoreLedger) Close() error {
	return l.client.Close()
}

// BatchWrite applies every write in a single transaction.
func (l *FirestoreLedger) BatchWrite(ctx context.Context, writes []Write) error {
	err := l.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, w := range writes {
			ref := l.client.Collection(w.Path).Doc(w.Record.ID)
			if err := tx.Set(ref, w.Record); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ledger transaction failed: %w", err)
	}
	return nil
}

// List returns the most recent records in the given collection.
func (l *FirestoreLedger) List(ctx context.Context, path string, limit int) ([]scan.ScanRecord, error) {
	query := l.client.Collection(path).OrderBy("created_at", firestore.Desc)
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []scan.ScanRecord
	iter := query.Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read ledger %s: %w", path, err)
		}
		var rec scan.ScanRecord
		if err := doc.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("failed to decode record %s: %w", doc.Ref.ID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

var _ Ledger = (*FirestoreLedger)(nil)
