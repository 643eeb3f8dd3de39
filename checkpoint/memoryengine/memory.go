// Package memoryengine provides an in-memory checkpoint store for tests and
// single-process setups.
package memoryengine

import (
	"context"
	"sort"
	"sync"

	"github.com/vivecare/clinstream/checkpoint"
)

type checkpointKey struct {
	projectorID string
	subjectID   string
}

// Store is a mutex-guarded in-memory implementation of checkpoint.Store.
// The zero value is not usable; create instances with NewStore.
type Store struct {
	mu          sync.RWMutex
	checkpoints map[checkpointKey]checkpoint.Checkpoint
	deadLetters map[string][]checkpoint.DeadLetter
}

// NewStore creates an empty in-memory checkpoint store.
func NewStore() *Store {
	return &Store{
		checkpoints: make(map[checkpointKey]checkpoint.Checkpoint),
		deadLetters: make(map[string][]checkpoint.DeadLetter),
	}
}

// Load returns the checkpoint for (projectorID, subjectID).
func (s *Store) Load(_ context.Context, projectorID string, subjectID string) (checkpoint.Checkpoint, bool, error) {
	if projectorID == "" {
		return checkpoint.Checkpoint{}, false, checkpoint.ErrEmptyProjectorID
	}

	if subjectID == "" {
		return checkpoint.Checkpoint{}, false, checkpoint.ErrEmptySubjectID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, found := s.checkpoints[checkpointKey{projectorID: projectorID, subjectID: subjectID}]

	return cp, found, nil
}

// LoadAll returns all checkpoints for the projector, sorted by subject.
func (s *Store) LoadAll(_ context.Context, projectorID string) ([]checkpoint.Checkpoint, error) {
	if projectorID == "" {
		return nil, checkpoint.ErrEmptyProjectorID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]checkpoint.Checkpoint, 0)
	for key, cp := range s.checkpoints {
		if key.projectorID == projectorID {
			all = append(all, cp)
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].SubjectID < all[j].SubjectID })

	return all, nil
}

// Save stores or replaces the checkpoint.
func (s *Store) Save(_ context.Context, cp checkpoint.Checkpoint) error {
	if cp.ProjectorID == "" {
		return checkpoint.ErrEmptyProjectorID
	}

	if cp.SubjectID == "" {
		return checkpoint.ErrEmptySubjectID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoints[checkpointKey{projectorID: cp.ProjectorID, subjectID: cp.SubjectID}] = cp

	return nil
}

// Delete removes the checkpoint for (projectorID, subjectID).
func (s *Store) Delete(_ context.Context, projectorID string, subjectID string) error {
	if projectorID == "" {
		return checkpoint.ErrEmptyProjectorID
	}

	if subjectID == "" {
		return checkpoint.ErrEmptySubjectID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.checkpoints, checkpointKey{projectorID: projectorID, subjectID: subjectID})

	return nil
}

// DeleteAll removes every checkpoint for the projector.
func (s *Store) DeleteAll(_ context.Context, projectorID string) error {
	if projectorID == "" {
		return checkpoint.ErrEmptyProjectorID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.checkpoints {
		if key.projectorID == projectorID {
			delete(s.checkpoints, key)
		}
	}

	return nil
}

// RecordDeadLetter appends a dead-letter record.
func (s *Store) RecordDeadLetter(_ context.Context, letter checkpoint.DeadLetter) error {
	if letter.ProjectorID == "" {
		return checkpoint.ErrEmptyProjectorID
	}

	if letter.SubjectID == "" {
		return checkpoint.ErrEmptySubjectID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.deadLetters[letter.ProjectorID] = append(s.deadLetters[letter.ProjectorID], letter)

	return nil
}

// DeadLetters returns the projector's dead letters, newest first.
func (s *Store) DeadLetters(_ context.Context, projectorID string, limit int) ([]checkpoint.DeadLetter, error) {
	if projectorID == "" {
		return nil, checkpoint.ErrEmptyProjectorID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.deadLetters[projectorID]

	letters := make([]checkpoint.DeadLetter, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		letters = append(letters, stored[i])
		if limit > 0 && len(letters) == limit {
			break
		}
	}

	return letters, nil
}

// DeadLetterCount returns the number of dead letters for the projector.
func (s *Store) DeadLetterCount(_ context.Context, projectorID string) (int, error) {
	if projectorID == "" {
		return 0, checkpoint.ErrEmptyProjectorID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.deadLetters[projectorID]), nil
}

var _ checkpoint.Store = (*Store)(nil)
