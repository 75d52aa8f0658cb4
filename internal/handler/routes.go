package handler

import (
	"errors"
	"strings"
	"time"

	"speakout-gateway/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
)

type AppConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BodyLimit    int
	// CORSOrigins enables CORS for the listed origins. Empty means no CORS
	// headers are sent.
	CORSOrigins []string
	// RateLimiter guards /redeem and /admin/generate. Nil disables limiting.
	RateLimiter *middleware.RateLimiter
}

// NewApp wires the routes onto a fiber app.
func NewApp(h *Handler, cfg AppConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "speakout-gateway",
		DisableStartupMessage: true,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		BodyLimit:             cfg.BodyLimit,
		ErrorHandler:          errorHandler,
	})

	// 中间件
	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(middleware.AccessLog())
	if len(cfg.CORSOrigins) > 0 {
		app.Use(cors.New(cors.Config{
			AllowOrigins: strings.Join(cfg.CORSOrigins, ","),
			AllowMethods: "POST,OPTIONS",
			AllowHeaders: "Authorization,Content-Type",
		}))
	}

	limited := func(c *fiber.Ctx) error { return c.Next() }
	if cfg.RateLimiter != nil {
		limited = cfg.RateLimiter.Handler()
	}

	app.Options("/*", HandlePreflight)
	app.Get("/healthz", h.HandleHealth)

	// 许可证路由
	app.Post("/verify", middleware.LicenseAuth(), h.HandleLicenseVerify)
	app.Post("/report", middleware.LicenseAuth(), h.HandleUsageReport)
	app.Post("/redeem", limited, middleware.LicenseAuth(), h.HandleRedeem)

	// 管理员路由
	app.Post("/admin/generate", limited, h.HandleGenerateCodes)

	return app
}

// errorHandler renders errors that escaped a handler. Internal details are
// logged by AccessLog and never returned to the client.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{
			"error": fe.Message,
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal Server Error",
	})
}
