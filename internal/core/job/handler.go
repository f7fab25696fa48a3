package job

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	job *Service
}

func NewHandler(job *Service) *Handler { return &Handler{job: job} }

func (h *Handler) HandleGetJob(c *fiber.Ctx) error {
	id := c.Params("jobId")
	j, err := h.job.Get(c.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": "not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true, "job": j})
}

func (h *Handler) HandleListJobs(c *fiber.Ctx) error {
	sellerID := c.Query("seller")
	if sellerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "seller query parameter is required"})
	}
	jobs, err := h.job.ListBySeller(c.Context(), sellerID, c.QueryInt("limit", 50))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true, "jobs": jobs})
}
