package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

const (
	UploadCount  = 200   // uploads per class
	PredictCount = 5_000 // frames, as a webcam client would send them
	Concurrency  = 10
	ImageSize    = 64
	BatchSize    = 5

	BaseURL = "http://localhost:5000"
)

// Request bodies matching the server API.
type UploadRequest struct {
	Images []string `json:"images"`
	Label  string   `json:"label"`
}

type PredictRequest struct {
	Image string `json:"image"`
}

var classes = map[string]uint8{"dark": 40, "light": 210}

func main() {
	fmt.Println("🔥 Starting knnvision HTTP Load Generator")
	fmt.Printf("Target: %s | Workers: %d\n", BaseURL, Concurrency)

	if err := sendRequest("POST", "/clear", nil); err != nil {
		fmt.Printf("❌ clear error: %v\n", err)
		return
	}

	// --- Phase 1: Upload ---
	fmt.Println("\n📝 Phase 1: Upload (Sample Store)...")
	for label, level := range classes {
		runTest("upload "+label, UploadCount/BatchSize, func(workerID, i int) error {
			images := make([]string, 0, BatchSize)
			for range BatchSize {
				images = append(images, noisyImage(level))
			}
			return sendRequest("POST", "/upload", UploadRequest{Images: images, Label: label})
		})
	}

	// --- Phase 2: Train ---
	fmt.Println("\n🧠 Phase 2: Train (Snapshot to Disk)...")
	start := time.Now()
	if err := sendRequest("POST", "/train", nil); err != nil {
		fmt.Printf("❌ train error: %v\n", err)
		return
	}
	fmt.Printf("⏱️ train Duration: %s\n", time.Since(start))

	// --- Phase 3: Predict ---
	fmt.Println("\n🔍 Phase 3: Predict Stream (Reading from Memory)...")
	levels := []uint8{classes["dark"], classes["light"]}
	runTest("predict-stream", PredictCount, func(workerID, i int) error {
		return sendRequest("POST", "/predict-stream", PredictRequest{Image: noisyImage(levels[i%len(levels)])})
	})

	fmt.Println("\n✅ Load Test Complete!")
}

// Generic Test Runner to handle Concurrency and Timing
func runTest(name string, totalOps int, opFunc func(workerID, i int) error) {
	var wg sync.WaitGroup
	start := time.Now()

	opsPerWorker := max(totalOps/Concurrency, 1)

	for w := range Concurrency {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := range opsPerWorker {
				if err := opFunc(workerID, i); err != nil {
					fmt.Printf("❌ %s error: %v\n", name, err)
				}
			}
		}(w)
	}

	wg.Wait()
	duration := time.Since(start)
	qps := float64(opsPerWorker*Concurrency) / duration.Seconds()

	fmt.Printf("⏱️ %s Duration: %s\n", name, duration)
	fmt.Printf("📈 %s QPS: %.2f\n", name, qps)
}

var client = &http.Client{Timeout: 5 * time.Second}

// Helper to send HTTP requests
func sendRequest(method, endpoint string, body any) error {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req, err := http.NewRequest(method, BaseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// noisyImage returns a hex-encoded PNG around the given gray level.
func noisyImage(level uint8) string {
	img := image.NewGray(image.Rect(0, 0, ImageSize, ImageSize))
	for i := range img.Pix {
		v := int(level) + rand.Intn(31) - 15
		img.Pix[i] = uint8(min(max(v, 0), 255))
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf.Bytes())
}
