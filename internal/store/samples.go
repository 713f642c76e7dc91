package store

import (
	"fmt"
	"sync"
)

// Samples is an immutable copy of a training set.
type Samples struct {
	Dim     int
	Vectors []float32 // row-major, Len()*Dim values
	Labels  []string
}

func (s Samples) Len() int { return len(s.Labels) }

func (s Samples) Vector(i int) []float32 {
	return s.Vectors[i*s.Dim : (i+1)*s.Dim : (i+1)*s.Dim]
}

// Validate checks that vectors and labels line up.
func (s Samples) Validate() error {
	if s.Dim <= 0 {
		return fmt.Errorf("invalid dimension %d", s.Dim)
	}
	if len(s.Vectors) != len(s.Labels)*s.Dim {
		return fmt.Errorf("have %d values for %d samples of dimension %d", len(s.Vectors), len(s.Labels), s.Dim)
	}
	return nil
}

// SampleStore accumulates labeled feature vectors. Every vector has the same dimension.
type SampleStore struct {
	mu     sync.RWMutex
	dim    int
	arena  *VectorArena
	labels []string
	counts map[string]int
}

func NewSampleStore(dim int) *SampleStore {
	return &SampleStore{
		dim:    dim,
		arena:  NewVectorArena(dim),
		counts: make(map[string]int),
	}
}

// Append adds one sample and returns the new sample count.
func (s *SampleStore) Append(vector []float32, label string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.arena.Add(vector); err != nil {
		return len(s.labels), err
	}
	s.labels = append(s.labels, label)
	s.counts[label]++
	return len(s.labels), nil
}

// AppendBatch adds every vector under one label, or none of them.
func (s *SampleStore) AppendBatch(vectors [][]float32, label string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, v := range vectors {
		if len(v) != s.dim {
			return len(s.labels), fmt.Errorf("sample %d: vector dimension mismatch expected %d got %d", i, s.dim, len(v))
		}
	}
	for _, v := range vectors {
		if _, err := s.arena.Add(v); err != nil {
			return len(s.labels), err
		}
		s.labels = append(s.labels, label)
		s.counts[label]++
	}
	return len(s.labels), nil
}

// ClassCounts returns per-label sample counts and the total.
func (s *SampleStore) ClassCounts() (map[string]int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int, len(s.counts))
	for label, n := range s.counts {
		out[label] = n
	}
	return out, len(s.labels)
}

func (s *SampleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.labels)
}

func (s *SampleStore) Dim() int { return s.dim }

// DistinctLabels returns how many different labels are stored.
func (s *SampleStore) DistinctLabels() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.counts)
}

// Snapshot copies the current training set.
func (s *SampleStore) Snapshot() Samples {
	s.mu.RLock()
	defer s.mu.RUnlock()

	labels := make([]string, len(s.labels))
	copy(labels, s.labels)
	return Samples{
		Dim:     s.dim,
		Vectors: s.arena.Flatten(),
		Labels:  labels,
	}
}

// Replace swaps the whole training set for samples, e.g. after a snapshot load.
func (s *SampleStore) Replace(samples Samples) error {
	if err := samples.Validate(); err != nil {
		return err
	}
	if samples.Dim != s.dim {
		return fmt.Errorf("vector dimension mismatch expected %d got %d", s.dim, samples.Dim)
	}

	arena := NewVectorArena(s.dim)
	counts := make(map[string]int)
	for i := range samples.Len() {
		if _, err := arena.Add(samples.Vector(i)); err != nil {
			return err
		}
		counts[samples.Labels[i]]++
	}
	labels := make([]string, len(samples.Labels))
	copy(labels, samples.Labels)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.arena = arena
	s.labels = labels
	s.counts = counts
	return nil
}

// Reset drops every sample.
func (s *SampleStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.arena = NewVectorArena(s.dim)
	s.labels = nil
	s.counts = make(map[string]int)
}
