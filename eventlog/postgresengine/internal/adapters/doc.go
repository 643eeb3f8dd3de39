// Package adapters provides database access adapters for the Postgres stream
// store engine, so it can run on pgxpool.Pool, database/sql, or sqlx behind a
// single small interface.
package adapters
