// Package facade is the single entry point for writing to and reading from
// the clinical event log.
//
// Every event passes through validation before it can touch storage; a
// validation failure never reaches the stream store. The facade does not
// retry concurrency conflicts: the caller sees the conflict, re-reads the
// tail, and decides how to proceed, which keeps causality explicit at the
// call site. Callers that want backoff wrap LogEvent in the retry helper
// from package shell.
//
// Projection queries are routed by name to registered projectors; an unknown
// name or a missing required filter surfaces immediately as an invalid-query
// error and is never retried.
package facade
