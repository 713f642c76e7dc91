package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 1. Throughput (Counters)
	SamplesAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "knnvision_samples_added_total",
		Help: "Total number of samples appended to the training set",
	})

	UploadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "knnvision_upload_failures_total",
		Help: "Upload requests rejected because an image did not decode",
	})

	Predictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "knnvision_predictions_total",
		Help: "Predictions served, by endpoint variant",
	}, []string{"variant"})

	PredictionCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "knnvision_prediction_cache_hits_total",
		Help: "Stream predictions answered from the prediction cache",
	})

	TrainRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "knnvision_train_runs_total",
		Help: "Train attempts, by outcome",
	}, []string{"outcome"})

	SnapshotLoads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "knnvision_snapshot_loads_total",
		Help: "Times the classifier was restored from the persisted snapshot",
	})

	// 2. Latency (Histograms)
	PredictDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "knnvision_predict_duration_seconds",
		Help:    "Time taken to decode an image and classify it",
		Buckets: prometheus.DefBuckets,
	})

	TrainDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "knnvision_train_duration_seconds",
		Help:    "Time taken to fit and persist the classifier",
		Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10},
	})

	// 3. State (Gauges)
	TrainingSamples = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "knnvision_training_samples",
		Help: "Current number of samples in the training set",
	})

	ModelState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "knnvision_model_state",
		Help: "Classifier state (0=absent, 1=fitted in memory, 2=loaded from snapshot)",
	})
)
