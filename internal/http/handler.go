package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/rupamthxt/knnvision/internal/features"
	"github.com/rupamthxt/knnvision/internal/knn"
	"github.com/rupamthxt/knnvision/internal/model"
)

const modelNotFoundMessage = "Model not found. Please train the model first."

type Handler struct {
	manager *model.Manager
	log     *zap.Logger
}

func NewHandler(manager *model.Manager, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{manager: manager, log: log}
}

func (h *Handler) Upload(c *fiber.Ctx) error {
	var req UploadRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "cannot parse json"})
	}

	count, err := h.manager.AddSamples(c.UserContext(), req.Images, req.Label)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(UploadResponse{Status: "added", Count: count})
}

func (h *Handler) Clear(c *fiber.Ctx) error {
	if err := h.manager.Clear(c.UserContext()); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(StatusResponse{Status: "cleared"})
}

func (h *Handler) Classes(c *fiber.Ctx) error {
	counts, total := h.manager.ClassCounts()
	return c.JSON(ClassesResponse{Classes: counts, TotalSamples: total})
}

func (h *Handler) Train(c *fiber.Ctx) error {
	result, err := h.manager.Train(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(TrainResponse{
		Status:       "trained",
		Classes:      result.Classes,
		TotalSamples: result.TotalSamples,
	})
}

func (h *Handler) Predict(c *fiber.Ctx) error {
	var req PredictRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "cannot parse json"})
	}

	pred, err := h.manager.Predict(c.UserContext(), req.Image)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(PredictResponse{
		Label:            pred.Label,
		Confidence:       pred.Confidence,
		AvailableClasses: pred.AvailableClasses,
	})
}

// PredictStream answers with label and confidence only, for clients polling camera frames.
func (h *Handler) PredictStream(c *fiber.Ctx) error {
	var req PredictRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "cannot parse json"})
	}

	pred, err := h.manager.PredictStream(c.UserContext(), req.Image)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(StreamPredictResponse{Label: pred.Label, Confidence: pred.Confidence})
}

func (h *Handler) Models(c *fiber.Ctx) error {
	infos, err := h.manager.ListSnapshots()
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(ModelsResponse{Models: infos, TotalCount: len(infos)})
}

func (h *Handler) History(c *fiber.Ctx) error {
	events, err := h.manager.History(c.QueryInt("limit", 50))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(HistoryResponse{Events: events, TotalCount: len(events)})
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{Status: "ok", ModelState: h.manager.State().String()})
}

// Unload drops the in-memory model so the next prediction reloads the snapshot.
func (h *Handler) Unload(c *fiber.Ctx) error {
	h.manager.Unload()
	return c.JSON(StatusResponse{Status: "unloaded"})
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	var decodeErr *features.DecodeError
	var insufficient *model.InsufficientDataError

	switch {
	case errors.As(err, &decodeErr):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	case errors.As(err, &insufficient):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: insufficient.Error(), Reason: insufficient.ReasonCode()})
	case errors.Is(err, model.ErrLabelRequired):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	case errors.Is(err, model.ErrModelNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: modelNotFoundMessage})
	case errors.Is(err, knn.ErrNotFitted):
		h.log.Error("classifier used before fit", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	default:
		h.log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}
}
