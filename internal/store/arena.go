package store

import (
	"fmt"
)

const PageSizeBytes = 4 * 1024 * 1024 // 4MB

// VectorArena keeps fixed-size feature vectors in pre-allocated pages so
// appends never copy the vectors already stored.
type VectorArena struct {
	dim   int
	pages [][]float32

	vectorsPerPage int
	totalVectors   int
}

func NewVectorArena(dim int) *VectorArena {
	count := PageSizeBytes / (dim * 4) // 4 bytes per float32
	if count == 0 {
		count = 1
	}

	return &VectorArena{
		dim:            dim,
		pages:          make([][]float32, 0),
		vectorsPerPage: count,
	}
}

// Add copies vector into the arena and returns its global index.
func (a *VectorArena) Add(vector []float32) (int, error) {
	if len(vector) != a.dim {
		return 0, fmt.Errorf("vector dimension mismatch expected %d got %d", a.dim, len(vector))
	}

	slot := a.totalVectors % a.vectorsPerPage
	if slot == 0 && a.totalVectors/a.vectorsPerPage == len(a.pages) {
		a.pages = append(a.pages, make([]float32, a.dim*a.vectorsPerPage))
	}

	page := a.pages[a.totalVectors/a.vectorsPerPage]
	copy(page[slot*a.dim:(slot+1)*a.dim], vector)

	idx := a.totalVectors
	a.totalVectors++
	return idx, nil
}

// View returns the stored vector without copying. Callers must not mutate it.
func (a *VectorArena) View(index int) ([]float32, error) {
	if index < 0 || index >= a.totalVectors {
		return nil, fmt.Errorf("index %d out of bounds", index)
	}

	page := a.pages[index/a.vectorsPerPage]
	slot := index % a.vectorsPerPage
	return page[slot*a.dim : (slot+1)*a.dim : (slot+1)*a.dim], nil
}

// Flatten copies every stored vector into one row-major slice.
func (a *VectorArena) Flatten() []float32 {
	out := make([]float32, 0, a.totalVectors*a.dim)
	remaining := a.totalVectors
	for _, page := range a.pages {
		n := min(remaining, a.vectorsPerPage)
		out = append(out, page[:n*a.dim]...)
		remaining -= n
	}
	return out
}

func (a *VectorArena) Size() int { return a.totalVectors }

func (a *VectorArena) Dim() int { return a.dim }
