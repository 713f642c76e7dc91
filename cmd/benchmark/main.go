package main

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rupamthxt/knnvision/internal/confidence"
	"github.com/rupamthxt/knnvision/internal/features"
	"github.com/rupamthxt/knnvision/internal/knn"
	"github.com/rupamthxt/knnvision/internal/store"
)

const (
	TotalSamples = 2_000 // a generous webcam training session
	NumClasses   = 4
	NumQueries   = 1000
	Workers      = 10
)

func main() {
	dim := features.DefaultWidth * features.DefaultHeight
	fmt.Println("🔥 Starting knnvision In-Process Benchmark (Brute-Force k-NN)")
	fmt.Printf("Config: Dim=%d | Samples=%d | Classes=%d\n", dim, TotalSamples, NumClasses)

	// --- Phase 1: Ingestion ---
	fmt.Println("\n--- Phase 1: Ingestion (Sample Store) ---")
	start := time.Now()

	samples := store.NewSampleStore(dim)
	var wg sync.WaitGroup
	batch := TotalSamples / Workers
	for w := range Workers {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			offset := idx * batch
			for i := range batch {
				label := fmt.Sprintf("class-%d", (offset+i)%NumClasses)
				if _, err := samples.Append(randomVector(dim), label); err != nil {
					fmt.Printf("❌ append error: %v\n", err)
				}
			}
		}(w)
	}
	wg.Wait()
	fmt.Printf("✅ Ingestion Complete: %.2fs (%d samples)\n", time.Since(start).Seconds(), samples.Len())

	// --- Phase 2: Training ---
	fmt.Println("\n--- Phase 2: Fitting Classifier ---")
	startTrain := time.Now()

	clf := knn.New(knn.DefaultNeighbors)
	if err := clf.Fit(samples.Snapshot()); err != nil {
		fmt.Printf("❌ fit error: %v\n", err)
		return
	}

	fmt.Printf("✅ Classifier Fitted in %s (classes=%v)\n", time.Since(startTrain), clf.Classes())

	// --- Phase 3: Search ---
	fmt.Println("\n--- Phase 3: Predict (Brute-Force k-NN) ---")
	scorer := confidence.NewScorer(features.DefaultWidth, features.DefaultHeight)
	k := min(knn.DefaultNeighbors, clf.Len())

	var mu sync.Mutex
	var confSum float64

	startSearch := time.Now()
	wgSearch := sync.WaitGroup{}
	wgSearch.Add(NumQueries)

	for range NumQueries {
		go func() {
			defer wgSearch.Done()
			_, distances, err := clf.PredictWithNeighbors(randomVector(dim), k)
			if err != nil {
				fmt.Printf("❌ predict error: %v\n", err)
				return
			}
			mu.Lock()
			confSum += scorer.Score(distances[0])
			mu.Unlock()
		}()
	}
	wgSearch.Wait()

	qps := float64(NumQueries) / time.Since(startSearch).Seconds()
	fmt.Printf("🚀 Predict QPS: %.2f\n", qps)
	fmt.Printf("📈 Mean confidence on noise: %.4f\n", confSum/NumQueries)
}

func randomVector(dim int) []float32 {
	vec := make([]float32, dim)
	for i := range dim {
		vec[i] = float32(rand.Intn(256))
	}
	return vec
}
