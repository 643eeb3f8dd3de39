// Package sqliteengine provides a file-backed SQLite implementation of the
// checkpoint store, suitable for single-node deployments where projector
// cursors must survive restarts without a second database.
package sqliteengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vivecare/clinstream/checkpoint"
)

const schema = `
CREATE TABLE IF NOT EXISTS projector_checkpoints (
	projector_id TEXT NOT NULL,
	subject_id TEXT NOT NULL,
	last_applied_version INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (projector_id, subject_id)
);
CREATE TABLE IF NOT EXISTS projector_dead_letters (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	projector_id TEXT NOT NULL,
	subject_id TEXT NOT NULL,
	from_version INTEGER NOT NULL,
	to_version INTEGER NOT NULL,
	attempts INTEGER NOT NULL,
	reason TEXT NOT NULL,
	failed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dead_letters_projector
	ON projector_dead_letters (projector_id, id);
`

// Store provides SQLite-backed checkpoint persistence.
type Store struct {
	sqlDB *sql.DB
}

// Open opens (creating if needed) a checkpoint SQLite store at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create checkpoint schema: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Load returns the checkpoint for (projectorID, subjectID).
func (s *Store) Load(ctx context.Context, projectorID string, subjectID string) (checkpoint.Checkpoint, bool, error) {
	if projectorID == "" {
		return checkpoint.Checkpoint{}, false, checkpoint.ErrEmptyProjectorID
	}

	if subjectID == "" {
		return checkpoint.Checkpoint{}, false, checkpoint.ErrEmptySubjectID
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT last_applied_version, updated_at
FROM projector_checkpoints
WHERE projector_id = ? AND subject_id = ?
`, projectorID, subjectID)

	var lastApplied int64
	var updatedAtMillis int64

	if err := row.Scan(&lastApplied, &updatedAtMillis); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return checkpoint.Checkpoint{}, false, nil
		}

		return checkpoint.Checkpoint{}, false, errors.Join(checkpoint.ErrLoadingCheckpointFailed, err)
	}

	return checkpoint.Checkpoint{
		ProjectorID:        projectorID,
		SubjectID:          subjectID,
		LastAppliedVersion: uint(lastApplied),
		UpdatedAt:          time.UnixMilli(updatedAtMillis).UTC(),
	}, true, nil
}

// LoadAll returns all checkpoints for the projector, sorted by subject.
func (s *Store) LoadAll(ctx context.Context, projectorID string) ([]checkpoint.Checkpoint, error) {
	if projectorID == "" {
		return nil, checkpoint.ErrEmptyProjectorID
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT subject_id, last_applied_version, updated_at
FROM projector_checkpoints
WHERE projector_id = ?
ORDER BY subject_id
`, projectorID)
	if err != nil {
		return nil, errors.Join(checkpoint.ErrLoadingCheckpointFailed, err)
	}
	defer rows.Close()

	all := make([]checkpoint.Checkpoint, 0)
	for rows.Next() {
		var subjectID string
		var lastApplied int64
		var updatedAtMillis int64

		if err := rows.Scan(&subjectID, &lastApplied, &updatedAtMillis); err != nil {
			return nil, errors.Join(checkpoint.ErrLoadingCheckpointFailed, err)
		}

		all = append(all, checkpoint.Checkpoint{
			ProjectorID:        projectorID,
			SubjectID:          subjectID,
			LastAppliedVersion: uint(lastApplied),
			UpdatedAt:          time.UnixMilli(updatedAtMillis).UTC(),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Join(checkpoint.ErrLoadingCheckpointFailed, err)
	}

	return all, nil
}

// Save stores or replaces the checkpoint.
func (s *Store) Save(ctx context.Context, cp checkpoint.Checkpoint) error {
	if cp.ProjectorID == "" {
		return checkpoint.ErrEmptyProjectorID
	}

	if cp.SubjectID == "" {
		return checkpoint.ErrEmptySubjectID
	}

	updatedAt := cp.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO projector_checkpoints (projector_id, subject_id, last_applied_version, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (projector_id, subject_id) DO UPDATE SET
	last_applied_version = excluded.last_applied_version,
	updated_at = excluded.updated_at
`, cp.ProjectorID, cp.SubjectID, int64(cp.LastAppliedVersion), updatedAt.UTC().UnixMilli())
	if err != nil {
		return errors.Join(checkpoint.ErrSavingCheckpointFailed, err)
	}

	return nil
}

// Delete removes the checkpoint for (projectorID, subjectID).
func (s *Store) Delete(ctx context.Context, projectorID string, subjectID string) error {
	if projectorID == "" {
		return checkpoint.ErrEmptyProjectorID
	}

	if subjectID == "" {
		return checkpoint.ErrEmptySubjectID
	}

	_, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM projector_checkpoints
WHERE projector_id = ? AND subject_id = ?
`, projectorID, subjectID)
	if err != nil {
		return errors.Join(checkpoint.ErrDeletingCheckpointFailed, err)
	}

	return nil
}

// DeleteAll removes every checkpoint for the projector.
func (s *Store) DeleteAll(ctx context.Context, projectorID string) error {
	if projectorID == "" {
		return checkpoint.ErrEmptyProjectorID
	}

	_, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM projector_checkpoints
WHERE projector_id = ?
`, projectorID)
	if err != nil {
		return errors.Join(checkpoint.ErrDeletingCheckpointFailed, err)
	}

	return nil
}

// RecordDeadLetter appends a dead-letter record.
func (s *Store) RecordDeadLetter(ctx context.Context, letter checkpoint.DeadLetter) error {
	if letter.ProjectorID == "" {
		return checkpoint.ErrEmptyProjectorID
	}

	if letter.SubjectID == "" {
		return checkpoint.ErrEmptySubjectID
	}

	failedAt := letter.FailedAt
	if failedAt.IsZero() {
		failedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO projector_dead_letters (projector_id, subject_id, from_version, to_version, attempts, reason, failed_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		letter.ProjectorID,
		letter.SubjectID,
		int64(letter.FromVersion),
		int64(letter.ToVersion),
		letter.Attempts,
		letter.Reason,
		failedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return errors.Join(checkpoint.ErrRecordingDeadLetterFailed, err)
	}

	return nil
}

// DeadLetters returns the projector's dead letters, newest first.
func (s *Store) DeadLetters(ctx context.Context, projectorID string, limit int) ([]checkpoint.DeadLetter, error) {
	if projectorID == "" {
		return nil, checkpoint.ErrEmptyProjectorID
	}

	query := `
SELECT subject_id, from_version, to_version, attempts, reason, failed_at
FROM projector_dead_letters
WHERE projector_id = ?
ORDER BY id DESC
`
	args := []any{projectorID}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Join(checkpoint.ErrLoadingDeadLettersFailed, err)
	}
	defer rows.Close()

	letters := make([]checkpoint.DeadLetter, 0)
	for rows.Next() {
		var letter checkpoint.DeadLetter
		var fromVersion, toVersion, failedAtMillis int64

		if err := rows.Scan(&letter.SubjectID, &fromVersion, &toVersion, &letter.Attempts, &letter.Reason, &failedAtMillis); err != nil {
			return nil, errors.Join(checkpoint.ErrLoadingDeadLettersFailed, err)
		}

		letter.ProjectorID = projectorID
		letter.FromVersion = uint(fromVersion)
		letter.ToVersion = uint(toVersion)
		letter.FailedAt = time.UnixMilli(failedAtMillis).UTC()

		letters = append(letters, letter)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Join(checkpoint.ErrLoadingDeadLettersFailed, err)
	}

	return letters, nil
}

// DeadLetterCount returns the number of dead letters for the projector.
func (s *Store) DeadLetterCount(ctx context.Context, projectorID string) (int, error) {
	if projectorID == "" {
		return 0, checkpoint.ErrEmptyProjectorID
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(*) FROM projector_dead_letters WHERE projector_id = ?
`, projectorID)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, errors.Join(checkpoint.ErrLoadingDeadLettersFailed, err)
	}

	return count, nil
}

var _ checkpoint.Store = (*Store)(nil)
