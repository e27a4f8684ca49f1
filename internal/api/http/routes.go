package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/i474232898/jma-forecast/internal/area"
	"github.com/i474232898/jma-forecast/internal/forecast"
)

var validate = validator.New()

// ForecastService is the part of forecast.Service the API exposes.
type ForecastService interface {
	Sync(ctx context.Context, parentCode string) (forecast.SyncReport, error)
	ListDates(ctx context.Context, parentCode string) ([]string, error)
	ForecastsFor(ctx context.Context, parentCode, targetDate string) ([]forecast.ForecastRecord, error)
}

// Deps bundles what the handlers need.
type Deps struct {
	Service  ForecastService
	Taxonomy area.Taxonomy

	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// NewApp builds the Fiber app with the shared error handler and middleware.
func NewApp(name string, requestLogging bool) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               name,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          40 * time.Second,
		ErrorHandler:          errorHandler,
	})

	if requestLogging {
		app.Use(logger.New())
	}
	app.Use(recover.New())
	return app
}

// errorHandler renders every error as {"error": true, "message": ...}.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, name string, deps Deps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": name,
		})
	})

	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics))
	}

	v1 := app.Group("/api/v1")

	v1.Get("/regions", func(c *fiber.Ctx) error {
		centers := deps.Taxonomy.SortedCenters()
		out := make([]regionView, 0, len(centers))
		for _, center := range centers {
			offices, _ := deps.Taxonomy.OfficesOf(center.Code)
			out = append(out, newRegionView(center, offices))
		}
		return c.JSON(out)
	})

	v1.Get("/regions/:center/offices", func(c *fiber.Ctx) error {
		p := centerParam{Center: c.Params("center")}
		if err := validate.Struct(p); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		offices, ok := deps.Taxonomy.OfficesOf(p.Center)
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "unknown center "+p.Center)
		}
		return c.JSON(offices)
	})

	v1.Post("/forecasts/:office/sync", func(c *fiber.Ctx) error {
		p := officeParam{Office: c.Params("office")}
		if err := validate.Struct(p); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		report, err := deps.Service.Sync(c.UserContext(), p.Office)
		switch {
		case err == nil:
			return c.JSON(report)
		case errors.Is(err, forecast.ErrUpstreamFetch):
			return c.Status(fiber.StatusBadGateway).JSON(report)
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(report)
		}
	})

	v1.Get("/forecasts/:office/dates", func(c *fiber.Ctx) error {
		p := officeParam{Office: c.Params("office")}
		if err := validate.Struct(p); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		dates, err := deps.Service.ListDates(c.UserContext(), p.Office)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to list forecast dates")
		}
		return c.JSON(fiber.Map{
			"office": p.Office,
			"dates":  dates,
		})
	})

	v1.Get("/forecasts/:office/:date", func(c *fiber.Ctx) error {
		p := forecastParams{Office: c.Params("office"), Date: c.Params("date")}
		if err := validate.Struct(p); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		records, err := deps.Service.ForecastsFor(c.UserContext(), p.Office, p.Date)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load forecasts")
		}
		if len(records) == 0 {
			return fiber.NewError(fiber.StatusNotFound, "no forecasts for requested office and date")
		}
		return c.JSON(fiber.Map{
			"office":    p.Office,
			"date":      p.Date,
			"forecasts": records,
		})
	})
}

type centerParam struct {
	Center string `validate:"required,numeric,len=6"`
}

type officeParam struct {
	Office string `validate:"required,numeric,len=6"`
}

type forecastParams struct {
	Office string `validate:"required,numeric,len=6"`
	Date   string `validate:"required,datetime=2006-01-02"`
}

type regionView struct {
	area.Center
	Offices []area.Office `json:"offices"`
}

func newRegionView(c area.Center, offices []area.Office) regionView {
	return regionView{Center: c, Offices: offices}
}
