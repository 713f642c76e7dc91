package knn

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rupamthxt/knnvision/internal/store"
)

const DefaultNeighbors = 3

var ErrNotFitted = errors.New("classifier is not fitted")

// Classifier is a brute-force k-nearest-neighbor model over Euclidean distance.
// A fitted Classifier is never mutated again, so readers can share it freely.
type Classifier struct {
	neighbors int
	samples   store.Samples
	classes   []string
}

func New(neighbors int) *Classifier {
	if neighbors <= 0 {
		neighbors = DefaultNeighbors
	}
	return &Classifier{neighbors: neighbors}
}

// Fit memorizes samples. Callers are expected to have validated class and sample minimums.
func (c *Classifier) Fit(samples store.Samples) error {
	if samples.Len() == 0 {
		return errors.New("cannot fit on an empty training set")
	}
	if err := samples.Validate(); err != nil {
		return err
	}

	seen := make(map[string]struct{})
	classes := make([]string, 0)
	for _, label := range samples.Labels {
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		classes = append(classes, label)
	}
	sort.Strings(classes)

	c.samples = samples
	c.classes = classes
	return nil
}

func (c *Classifier) Fitted() bool { return c != nil && c.samples.Len() > 0 }

func (c *Classifier) Neighbors() int { return c.neighbors }

func (c *Classifier) Len() int { return c.samples.Len() }

func (c *Classifier) Dim() int { return c.samples.Dim }

// Classes returns the distinct labels seen at fit time, sorted.
func (c *Classifier) Classes() []string {
	out := make([]string, len(c.classes))
	copy(out, c.classes)
	return out
}

// Samples returns the training set the model was fit on.
func (c *Classifier) Samples() store.Samples { return c.samples }

// Kneighbors returns the k closest training samples, nearest first.
func (c *Classifier) Kneighbors(query []float32, k int) ([]Neighbor, error) {
	if !c.Fitted() {
		return nil, ErrNotFitted
	}
	if len(query) != c.samples.Dim {
		return nil, fmt.Errorf("query dimension mismatch expected %d got %d", c.samples.Dim, len(query))
	}
	k = min(max(k, 1), c.samples.Len())

	heap := make(MaxHeap, 0, k)
	for i := range c.samples.Len() {
		heap.Offer(Neighbor{Index: i, Distance: euclidean(query, c.samples.Vector(i))}, k)
	}

	sort.Slice(heap, func(i, j int) bool {
		return worse(heap[j], heap[i])
	})
	return heap, nil
}

// PredictWithNeighbors votes among the fitted neighbor count and also returns
// the k nearest distances in ascending order.
func (c *Classifier) PredictWithNeighbors(query []float32, k int) (string, []float64, error) {
	if !c.Fitted() {
		return "", nil, ErrNotFitted
	}
	if k <= 0 {
		k = c.neighbors
	}
	k = min(k, c.samples.Len())
	voteK := min(c.neighbors, c.samples.Len())

	nearest, err := c.Kneighbors(query, max(k, voteK))
	if err != nil {
		return "", nil, err
	}

	label := c.vote(nearest[:voteK])

	distances := make([]float64, k)
	for i := range k {
		distances[i] = nearest[i].Distance
	}
	return label, distances, nil
}

// vote picks the majority label. Ties go to the smaller distance sum, then to
// label order. Exact matches, when present, are the only voters.
func (c *Classifier) vote(voters []Neighbor) string {
	if voters[0].Distance == 0 {
		exact := 0
		for exact < len(voters) && voters[exact].Distance == 0 {
			exact++
		}
		voters = voters[:exact]
	}

	type tally struct {
		count int
		sum   float64
	}
	tallies := make(map[string]*tally)
	for _, n := range voters {
		label := c.samples.Labels[n.Index]
		t, ok := tallies[label]
		if !ok {
			t = &tally{}
			tallies[label] = t
		}
		t.count++
		t.sum += n.Distance
	}

	best := ""
	var bestTally *tally
	for label, t := range tallies {
		switch {
		case bestTally == nil,
			t.count > bestTally.count,
			t.count == bestTally.count && t.sum < bestTally.sum,
			t.count == bestTally.count && t.sum == bestTally.sum && label < best:
			best, bestTally = label, t
		}
	}
	return best
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
