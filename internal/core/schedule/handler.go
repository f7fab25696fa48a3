package schedule

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"seedscraper/internal/core/job"
	"seedscraper/internal/core/scrape"
	"seedscraper/internal/core/seller"
)

type Handler struct {
	schedule *Service
	sellers  seller.Store
}

func NewHandler(schedule *Service, sellers seller.Store) *Handler {
	return &Handler{schedule: schedule, sellers: sellers}
}

type manualRequest struct {
	SellerID string                  `json:"sellerId"`
	Sources  []seller.ScrapingSource `json:"scrapingSources"`
	Config   scrape.RunConfig        `json:"config"`
}

type autoRequest struct {
	SellerID      string                  `json:"sellerId"`
	IntervalHours int                     `json:"intervalHours"`
	Sources       []seller.ScrapingSource `json:"scrapingSources"`
	// AnchorTime is a time of day, "15:04". Empty means no anchor.
	AnchorTime string `json:"anchorTime"`
}

func (h *Handler) HandleCreateManual(c *fiber.Ctx) error {
	var req manualRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	sources, err := h.resolveSources(c, req.SellerID, req.Sources)
	if err != nil {
		return badRequest(c, err.Error())
	}
	jobID, err := h.schedule.CreateManualJob(c.Context(), req.SellerID, sources, req.Config)
	if err != nil {
		return badRequest(c, err.Error())
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"success": true, "jobId": jobID})
}

func (h *Handler) HandleScheduleAuto(c *fiber.Ctx) error {
	var req autoRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	var anchor *time.Time
	if req.AnchorTime != "" {
		ts, err := time.Parse("15:04", req.AnchorTime)
		if err != nil {
			return badRequest(c, "anchorTime must be HH:MM")
		}
		anchor = &ts
	}
	sources, err := h.resolveSources(c, req.SellerID, req.Sources)
	if err != nil {
		return badRequest(c, err.Error())
	}
	jobID, err := h.schedule.ScheduleAutoJob(c.Context(), req.SellerID, req.IntervalHours, sources, anchor)
	if err != nil {
		return badRequest(c, err.Error())
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"success": true, "jobId": jobID})
}

func (h *Handler) HandleUnscheduleAuto(c *fiber.Ctx) error {
	sellerID := c.Params("sellerId")
	if sellerID == "" {
		return badRequest(c, "sellerId is required")
	}
	if err := h.schedule.UnscheduleAutoJob(c.Context(), sellerID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *Handler) HandleStopJob(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	stopped, err := h.schedule.StopJob(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": "not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": err.Error()})
	}
	// stopped=false: already dispatched, the run finishes on its own.
	return c.JSON(fiber.Map{"success": true, "stopped": stopped})
}

// resolveSources falls back to the seller's stored source list when the
// request does not carry one.
func (h *Handler) resolveSources(c *fiber.Ctx, sellerID string, sources []seller.ScrapingSource) ([]seller.ScrapingSource, error) {
	if len(sources) > 0 {
		return sources, nil
	}
	if sellerID == "" {
		return nil, errors.New("sellerId is required")
	}
	sel, err := h.sellers.Get(c.Context(), sellerID)
	if err != nil {
		return nil, errors.New("unknown seller and no scrapingSources given")
	}
	return sel.ScrapingSources, nil
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": msg})
}
