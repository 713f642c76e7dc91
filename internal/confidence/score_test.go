package confidence

import (
	"math"
	"testing"
)

func TestScore(t *testing.T) {
	s := NewScorer(64, 64)

	if got := s.MaxDistance(); got != 255*64 {
		t.Fatalf("expected max distance %v, got %v", 255*64, got)
	}

	tests := []struct {
		name     string
		distance float64
		want     float64
	}{
		{"exact match", 0, 1},
		{"max distance", 255 * 64, math.Exp(-10)},
		{"half way", 255 * 32, math.Exp(-5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Score(tt.distance); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Score(%v) = %v, want %v", tt.distance, got, tt.want)
			}
		})
	}
}

func TestScoreBoundedAndDecreasing(t *testing.T) {
	s := NewScorer(64, 64)
	prev := s.Score(0)
	for d := 1.0; d < 100000; d *= 2 {
		got := s.Score(d)
		if got <= 0 || got > 1 {
			t.Fatalf("Score(%v) = %v out of (0,1]", d, got)
		}
		if got >= prev {
			t.Fatalf("Score should decrease: Score(%v) = %v, previous %v", d, got, prev)
		}
		prev = got
	}
}

func TestReciprocalDiffersFromScore(t *testing.T) {
	s := NewScorer(64, 64)
	if Reciprocal(100) == s.Score(100) {
		t.Fatal("policies should not agree")
	}
	if Reciprocal(0) != 1 {
		t.Fatalf("Reciprocal(0) = %v", Reciprocal(0))
	}
}
