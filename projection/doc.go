// Package projection provides the shared contract and runner for the four
// materialized views derived from the clinical event log.
//
// Each projector owns one in-memory state that is a pure fold over event
// envelopes; the generic Runner wraps a state with idempotent batch
// application, apply-then-checkpoint ordering, rebuild, optional snapshots,
// and lag reporting. Replay determinism is the load-bearing property: folding
// the full stream from version zero must yield the same state as incremental
// application, for any interleaving of subjects.
package projection
