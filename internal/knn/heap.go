package knn

type Neighbor struct {
	Index    int
	Distance float64
}

// worse orders neighbors by distance, falling back to insertion order so
// equal distances resolve the same way on every run.
func worse(a, b Neighbor) bool {
	if a.Distance != b.Distance {
		return a.Distance > b.Distance
	}
	return a.Index > b.Index
}

// MaxHeap keeps the k best neighbors seen so far with the worst one at the root.
type MaxHeap []Neighbor

func (h *MaxHeap) Len() int { return len(*h) }

func (h *MaxHeap) Push(n Neighbor) {
	*h = append(*h, n)
	h.up(len(*h) - 1)
}

// Offer keeps n if the heap has room or n beats the current worst.
func (h *MaxHeap) Offer(n Neighbor, k int) {
	if len(*h) < k {
		h.Push(n)
		return
	}
	if worse((*h)[0], n) {
		h.Replace(n)
	}
}

func (h *MaxHeap) Replace(n Neighbor) {
	(*h)[0] = n
	h.down(0, len(*h))
}

func (h *MaxHeap) up(j int) {
	for {
		i := (j - 1) / 2
		if i == j || !worse((*h)[j], (*h)[i]) {
			break
		}
		(*h)[i], (*h)[j] = (*h)[j], (*h)[i]
		j = i
	}
}

func (h *MaxHeap) down(i0, n int) {
	i := i0
	for {
		j1 := 2*i + 1
		if j1 >= n || j1 < 0 {
			break
		}
		j := j1
		if j2 := j1 + 1; j2 < n && worse((*h)[j2], (*h)[j1]) {
			j = j2
		}
		if !worse((*h)[j], (*h)[i]) {
			break
		}
		(*h)[i], (*h)[j] = (*h)[j], (*h)[i]
		i = j
	}
}
