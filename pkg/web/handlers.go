package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/dukex/conformance/pkg/models"
	"github.com/dukex/conformance/pkg/persistence"
	"github.com/dukex/conformance/pkg/sequence"
)

const timeFormat = time.RFC3339

// RunSubmitter starts runs in the background.
type RunSubmitter interface {
	Submit(ctx context.Context, targetID, token string, entityTypes []string) (*models.Run, error)
	Definitions() []*sequence.Definition
}

type APIHandlers struct {
	runs        RunSubmitter
	persistence persistence.Persistence
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewAPIHandlers(
	runs RunSubmitter,
	persistence persistence.Persistence,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	if logger == nil {
		logger = slog.Default()
	}

	return &APIHandlers{
		runs:        runs,
		persistence: persistence,
		validator:   validator,
		logger:      logger.With("module", "web"),
	}
}

func (h *APIHandlers) CreateRun(c fiber.Ctx) error {
	var req CreateRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	// Submitted runs outlive the request.
	run, err := h.runs.Submit(context.Background(), req.TargetID, req.Token, req.EntityTypes)
	if err != nil {
		return handleRunError(c, err)
	}

	h.logger.InfoContext(c.Context(), "run submitted",
		"run_id", run.ID,
		"target_id", run.TargetID,
		"token_set", run.TokenSet)

	c.Location("/runs/" + run.ID)

	return c.Status(fiber.StatusAccepted).JSON(TransformRunSummary(run))
}

func (h *APIHandlers) GetRuns(c fiber.Ctx) error {
	runs, err := h.persistence.Runs(c.Context())
	if err != nil {
		return handleRunError(c, err)
	}

	summaries := make([]RunSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, TransformRunSummary(run))
	}

	return c.JSON(fiber.Map{
		"runs":        summaries,
		"total_count": len(summaries),
	})
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	run, err := h.persistence.RunByID(c.Context(), id)
	if err != nil {
		return handleRunError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) GetRunReferences(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	if _, err := h.persistence.RunByID(c.Context(), id); err != nil {
		return handleRunError(c, err)
	}

	records, err := h.persistence.ReferenceRepository().ReferencesByRun(c.Context(), id)
	if err != nil {
		return handleRunError(c, err)
	}

	if records == nil {
		records = []models.ReferenceRecord{}
	}

	return c.JSON(fiber.Map{
		"run_id":     id,
		"references": records,
	})
}

func (h *APIHandlers) GetSequences(c fiber.Ctx) error {
	definitions := h.runs.Definitions()

	sequences := make([]SequenceResponse, 0, len(definitions))
	for _, definition := range definitions {
		sequences = append(sequences, TransformSequence(definition))
	}

	return c.JSON(fiber.Map{
		"sequences": sequences,
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Conformance API is healthy"
	httpStatus := http.StatusOK
	repositoryCheck := "ok"

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "Conformance API is unhealthy"
		httpStatus = http.StatusInternalServerError
		repositoryCheck = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

// Register mounts the run and sequence routes on router.
func (h *APIHandlers) Register(router fiber.Router) {
	runs := router.Group("/runs")
	runs.Get("/", h.GetRuns)
	runs.Post("/", h.CreateRun)
	runs.Get("/:id", h.GetRun)
	runs.Get("/:id/references", h.GetRunReferences)

	router.Get("/sequences", h.GetSequences)
	router.Get("/health", h.HealthCheck)
}
