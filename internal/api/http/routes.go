package httpapi

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/bike-tracker/internal/ingest"
	"github.com/i474232898/bike-tracker/internal/tracking"
)

var validate = validator.New()

// StatusSource reports ingestion status; *ingest.Ingestor implements it.
type StatusSource interface {
	Snapshot() ingest.Snapshot
}

// RegisterRoutes wires the read-only HTTP handlers into the Fiber app.
// status may be nil when ingestion runs elsewhere.
func RegisterRoutes(app *fiber.App, service *tracking.Service, status StatusSource) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := app.Group("/api/v1")

	v1.Get("/readings/latest", func(c *fiber.Ctx) error {
		latest, ok, err := service.GetLatest(c.UserContext())
		if err != nil {
			return storeError(err, "failed to fetch latest reading")
		}
		if !ok {
			return c.JSON(fiber.Map{"latest": nil})
		}
		return c.JSON(fiber.Map{"latest": latest})
	})

	v1.Get("/readings", func(c *fiber.Ctx) error {
		readings, err := service.GetLatestDeduped(c.UserContext())
		if err != nil {
			return storeError(err, "failed to fetch readings")
		}
		return c.JSON(fiber.Map{
			"count":    len(readings),
			"readings": readings,
		})
	})

	v1.Get("/readings/history", func(c *fiber.Ctx) error {
		req := historyQuery{Offset: 0, Limit: service.HistoryCap()}
		if err := req.bind(c, service.HistoryCap()); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		readings, err := service.GetHistory(c.UserContext(), req.Offset, req.Limit)
		if err != nil {
			return storeError(err, "failed to fetch reading history")
		}
		return c.JSON(fiber.Map{
			"offset":   req.Offset,
			"limit":    req.Limit,
			"count":    len(readings),
			"readings": readings,
		})
	})

	v1.Get("/ingest/status", func(c *fiber.Ctx) error {
		if status == nil {
			return fiber.NewError(fiber.StatusNotFound, "ingestion is not running in this process")
		}
		return c.JSON(status.Snapshot())
	})
}

// storeError maps a store failure to a response; outages are retryable.
func storeError(err error, msg string) error {
	if errors.Is(err, tracking.ErrStoreUnavailable) {
		return fiber.NewError(fiber.StatusServiceUnavailable, "store unavailable, retry later")
	}
	return fiber.NewError(fiber.StatusInternalServerError, msg)
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	Offset int `query:"offset" validate:"gte=0"`
	Limit  int `query:"limit" validate:"gte=1"`
}

func (h *historyQuery) bind(c *fiber.Ctx, historyCap int) error {
	if err := c.QueryParser(h); err != nil {
		return errors.New("offset and limit must be integers")
	}
	if err := validate.Struct(h); err != nil {
		return err
	}
	if h.Limit > historyCap {
		return fmt.Errorf("limit must not exceed %d", historyCap)
	}
	return nil
}
