package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seanmckee-pacmet/contract-review-2/internal/review"
	"github.com/seanmckee-pacmet/contract-review-2/internal/storage/sqlite"
	"github.com/seanmckee-pacmet/contract-review-2/pkg/logger"
)

type ReviewHandler struct {
	orchestrator *review.Orchestrator
	storage      *sqlite.Client
}

func NewReviewHandler(orchestrator *review.Orchestrator, storage *sqlite.Client) *ReviewHandler {
	return &ReviewHandler{
		orchestrator: orchestrator,
		storage:      storage,
	}
}

// HandleReview runs a synchronous review job over the given document files.
func (h *ReviewHandler) HandleReview(c *fiber.Ctx) error {
	var req struct {
		CompanyName string   `json:"company_name"`
		FilePaths   []string `json:"file_paths"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.CompanyName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "company_name is required",
		})
	}
	if len(req.FilePaths) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "file_paths is required",
		})
	}

	result, err := h.orchestrator.ReviewDocuments(c.Context(), req.FilePaths, req.CompanyName)
	if err != nil {
		logger.Error("Review job failed",
			zap.String("company", req.CompanyName),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Review job failed",
		})
	}

	return c.JSON(result)
}

// HandleClearCollection drops a company's indexed documents so the next
// review starts from a clean collection.
func (h *ReviewHandler) HandleClearCollection(c *fiber.Ctx) error {
	company := c.Params("company")
	if company == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "company is required",
		})
	}

	h.orchestrator.ClearCompanyCollection(c.Context(), company)
	return c.JSON(fiber.Map{
		"status":  "cleared",
		"company": company,
	})
}

// HandleListJobs returns recent review job history, newest first.
func (h *ReviewHandler) HandleListJobs(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)

	jobs, err := h.storage.ListJobs(limit)
	if err != nil {
		logger.Error("Failed to list review jobs", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list review jobs",
		})
	}

	return c.JSON(fiber.Map{
		"jobs": jobs,
	})
}
