// Package postgresengine provides a PostgreSQL implementation of the
// clinical event log.
//
// This package implements per-subject append-only streams using PostgreSQL as
// the storage backend, supporting multiple database adapters (pgx, sql.DB,
// sqlx) with atomic operations and optimistic concurrency control.
//
// Key features:
//   - Multiple database adapter support (PGX, SQL, SQLX)
//   - Atomic event appending with version-gapless guarantee and conflict detection
//   - Optional read replica routing for eventually-consistent reads
//   - Projection snapshot persistence
//   - Configurable table names, logging, metrics, and tracing
//
// Usage examples:
//
//	// Basic usage
//	db, _ := pgxpool.New(context.Background(), dsn)
//	store, _ := postgresengine.NewEventStoreFromPGXPool(db)
//
//	// With operational logging (production-safe)
//	store, _ := postgresengine.NewEventStoreFromPGXPool(
//		db,
//		postgresengine.WithTableName("clinical_events"),
//		postgresengine.WithLogger(logger),
//	)
//
//	events, _ := store.Read(ctx, subjectID, 0, 0)
//	tail, err := store.Append(ctx, subjectID, expectedVersion, newEvent)
package postgresengine
