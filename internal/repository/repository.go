// Package repository stores bulk runs submitted through the service API.
//
// Each run is one batch_runs row holding status, window, counters and the
// partitioned report as JSONB. Every entity of a run gets a row in
// batch_entity_outcomes. PgBatchRepository is the PostgreSQL implementation
// and is safe for concurrent use; pgxpool does the pooling.
//
// Errors unwrap to domain sentinels: domain.ErrNotFound for an unknown run,
// domain.ErrAlreadyExists for a duplicate id and domain.ErrInvalidInput for a
// status change the lifecycle does not allow.
//
// The repository takes a DBTX, so a transaction works as well as the pool:
//
//	err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
//	    return repository.NewPgBatchRepository(tx).Create(ctx, run)
//	})
package repository

import (
	"github.com/helixir/publication-aggregator/internal/database"
)

// DBTX is satisfied by both *database.DB and pgx.Tx.
type DBTX = database.DBTX

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// applyPaginationDefaults clamps limit to [1, maxListLimit], using the
// default for non-positive values, and floors offset at zero.
func applyPaginationDefaults(limit, offset *int) {
	switch {
	case *limit <= 0:
		*limit = defaultListLimit
	case *limit > maxListLimit:
		*limit = maxListLimit
	}
	*offset = max(*offset, 0)
}
