package handler

import (
	"context"
	"strings"

	"speakout-gateway/internal/middleware"
	"speakout-gateway/internal/service"

	"github.com/gofiber/fiber/v2"
)

// HandleLicenseVerify 校验许可证并返回等级和余额
func (h *Handler) HandleLicenseVerify(c *fiber.Ctx) error {
	res, err := h.ledger.Verify(c.UserContext(), middleware.LicenseKey(c))
	if err != nil {
		return fail(c, err, "Invalid License Key")
	}

	return c.JSON(fiber.Map{
		"valid":   true,
		"type":    res.Tier,
		"balance": res.Balance,
	})
}

// HandleUsageReport 扣减客户端上报的使用时长
func (h *Handler) HandleUsageReport(c *fiber.Ctx) error {
	body, ok := decodeBody(c)
	if !ok {
		return badBody(c)
	}

	res, err := h.ledger.ReportUsage(c.UserContext(), middleware.LicenseKey(c), truncatedSeconds(body["total_seconds"]))
	if err != nil {
		return fail(c, err, "Invalid License")
	}
	if !res.Applied {
		return c.JSON(fiber.Map{"success": true})
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"remaining": res.Remaining,
	})
}

// HandleRedeem 兑换充值码
func (h *Handler) HandleRedeem(c *fiber.Ctx) error {
	body, ok := decodeBody(c)
	if !ok {
		return badBody(c)
	}

	code, ok := jsonString(body["code"])
	if !ok || strings.TrimSpace(code) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing code",
		})
	}

	key := middleware.LicenseKey(c)
	res, err := h.ledger.Redeem(c.UserContext(), key, code)
	if err != nil {
		return fail(c, err, "Invalid License")
	}

	h.export("redeemed", func(ctx context.Context, exporter service.CodeExporter) error {
		return exporter.ExportRedeemed(ctx, key, res)
	})

	return c.JSON(fiber.Map{
		"success":     true,
		"added":       res.Added,
		"new_balance": res.NewBalance,
	})
}
