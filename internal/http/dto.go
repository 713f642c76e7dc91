package http

import (
	"github.com/rupamthxt/knnvision/internal/history"
	"github.com/rupamthxt/knnvision/internal/model"
)

// Images are hex-encoded, whatever the field names suggest.
type UploadRequest struct {
	Images []string `json:"images"`
	Label  string   `json:"label"`
}

type UploadResponse struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type ClassesResponse struct {
	Classes      map[string]int `json:"classes"`
	TotalSamples int            `json:"total_samples"`
}

type TrainResponse struct {
	Status       string   `json:"status"`
	Classes      []string `json:"classes"`
	TotalSamples int      `json:"total_samples"`
}

type PredictRequest struct {
	Image string `json:"image"`
}

type PredictResponse struct {
	Label            string   `json:"label"`
	Confidence       float64  `json:"confidence"`
	AvailableClasses []string `json:"available_classes"`
}

type StreamPredictResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type ModelsResponse struct {
	Models     []model.SnapshotInfo `json:"models"`
	TotalCount int                  `json:"total_count"`
}

type HistoryResponse struct {
	Events     []history.Event `json:"events"`
	TotalCount int             `json:"total_count"`
}

type HealthResponse struct {
	Status     string `json:"status"`
	ModelState string `json:"model_state"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}
