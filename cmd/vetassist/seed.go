package main

import (
	"context"
	"fmt"
	"os"

	"github.com/PabloGalante/vetassist/internal/app/reconcile"
	"github.com/PabloGalante/vetassist/internal/domain"
	"github.com/PabloGalante/vetassist/internal/observability"
)

// seedFromFile writes the records of a JSON export into store. A file that is
// not a JSON array seeds nothing; records that fail to decode or lack an id
// or creation time are skipped.
func seedFromFile(ctx context.Context, store domain.RequestWriter, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading seed file: %w", err)
	}

	log := observability.Logger()
	n := 0
	for _, rec := range reconcile.DecodeRecords(data) {
		if !rec.Valid() {
			continue
		}
		if _, err := store.CreateRequest(ctx, &rec); err != nil {
			log.Warn("skipping seed record", "request_id", rec.ID, "error", err)
			continue
		}
		n++
	}
	return n, nil
}
