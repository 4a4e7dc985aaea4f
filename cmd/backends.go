package cmd

import (
	"context"
	"log/slog"

	"github.com/mealsnap/mealsnap/internal/config"
	"github.com/mealsnap/mealsnap/internal/persist"
)

// newLedger selects the document store: Firestore when a project id is
// configured, in-memory otherwise.
func newLedger(ctx context.Context, cfg config.Config) (persist.Ledger, func(), error) {
	if cfg.Firestore.ProjectID == "" {
		slog.Warn("no Firestore project configured, using in-memory ledger")
		return persist.NewMemoryLedger(), func() {}, nil
	}
	ledger, err := persist.NewFirestoreLedger(ctx, cfg.Firestore.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := ledger.Close(); err != nil {
			slog.Error("failed to close firestore client", "err", err)
		}
	}
	return ledger, closeFn, nil
}

// newObjects selects the object store: COS when a bucket is configured,
// in-memory otherwise.
func newObjects(cfg config.Config) (persist.ObjectStorage, error) {
	if cfg.COS.Bucket == "" {
		slog.Warn("no COS bucket configured, using in-memory object storage")
		return persist.NewMemoryObjects(), nil
	}
	return persist.NewCOSStorage(persist.COSConfig{
		Bucket:       cfg.COS.Bucket,
		Region:       cfg.COS.Region,
		SecretID:     cfg.COS.SecretID,
		SecretKey:    cfg.COS.SecretKey,
		PublicDomain: cfg.COS.PublicDomain,
	})
}
