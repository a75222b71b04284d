package memory

import (
	"context"
	"sync"

	"github.com/ignite/sequence-engine/internal/domain"
	"github.com/ignite/sequence-engine/internal/service/sequence"
)

// SequenceStore holds sequence definitions and step content in memory.
type SequenceStore struct {
	mu        sync.RWMutex
	sequences map[string]domain.Sequence
	content   map[string]sequence.Content
}

// NewSequenceStore creates an empty store.
func NewSequenceStore() *SequenceStore {
	return &SequenceStore{
		sequences: make(map[string]domain.Sequence),
		content:   make(map[string]sequence.Content),
	}
}

// Put stores a sequence definition after validating it.
func (s *SequenceStore) Put(seq domain.Sequence) error {
	if err := seq.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	steps := make([]domain.Step, len(seq.Steps))
	copy(steps, seq.Steps)
	seq.Steps = steps
	s.sequences[seq.ID] = seq
	return nil
}

// PutContent registers the content a step's content reference resolves to.
func (s *SequenceStore) PutContent(ref string, c sequence.Content) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content[ref] = c
}

func (s *SequenceStore) Get(_ context.Context, id string) (*domain.Sequence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq, ok := s.sequences[id]
	if !ok {
		return nil, domain.ErrSequenceNotFound
	}
	steps := make([]domain.Step, len(seq.Steps))
	copy(steps, seq.Steps)
	seq.Steps = steps
	return &seq, nil
}

// Resolve implements sequence.ContentResolver.
func (s *SequenceStore) Resolve(_ context.Context, ref string) (*sequence.Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.content[ref]
	if !ok {
		return nil, domain.ErrContentNotFound
	}
	return &c, nil
}
