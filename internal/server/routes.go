package server

import (
	"github.com/gofiber/fiber/v2"

	"seedscraper/internal/core/job"
	"seedscraper/internal/core/schedule"
	"seedscraper/internal/core/seller"
	"seedscraper/internal/health"
	"seedscraper/internal/platform/postgres"
	"seedscraper/internal/platform/redis"
)

type Dependencies struct {
	Job      *job.Service
	Schedule *schedule.Service
	Sellers  seller.Store
	Redis    *redis.Service
	Postgres *postgres.Service
}

// RegisterRoutes wires the admin surface. Every route is a thin wrapper over
// a scheduler or lifecycle operation.
func RegisterRoutes(app *fiber.App, d Dependencies) *health.Handler {
	healthHandler := health.NewHandler(d.Redis, d.Postgres)
	app.Get("/v1/health", health.Limiter(), healthHandler.HandleHealth)

	api := app.Group("/v1")

	scheduleHandler := schedule.NewHandler(d.Schedule, d.Sellers)
	api.Post("/scrape/manual", scheduleHandler.HandleCreateManual)
	api.Post("/scrape/auto", scheduleHandler.HandleScheduleAuto)
	api.Delete("/scrape/auto/:sellerId", scheduleHandler.HandleUnscheduleAuto)
	api.Post("/jobs/:jobId/stop", scheduleHandler.HandleStopJob)

	jobHandler := job.NewHandler(d.Job)
	api.Get("/jobs/:jobId", jobHandler.HandleGetJob)
	api.Get("/jobs", jobHandler.HandleListJobs)

	return healthHandler
}
