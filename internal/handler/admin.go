package handler

import (
	"context"
	"math"

	"speakout-gateway/internal/middleware"
	"speakout-gateway/internal/service"

	"github.com/gofiber/fiber/v2"
)

// HandleGenerateCodes 管理员批量生成充值码
func (h *Handler) HandleGenerateCodes(c *fiber.Ctx) error {
	secret := middleware.AdminKey(c)
	if err := h.issuance.Authorize(secret); err != nil {
		return fail(c, err, "Unauthorized")
	}

	body, ok := decodeBody(c)
	if !ok {
		return badBody(c)
	}

	// values of the wrong type become zero and fail validation
	var req service.GenerateRequest
	if amount, ok := wholeNumber(body["amount"]); ok {
		req.Amount = amount
	}
	if count, ok := wholeNumber(body["count"]); ok {
		req.Count = int(min(max(count, math.MinInt32), math.MaxInt32))
	}
	if prefix, ok := jsonString(body["prefix"]); ok {
		req.Prefix = prefix
	}

	issued, err := h.issuance.GenerateCodes(c.UserContext(), secret, req)
	if err != nil {
		return fail(c, err, "Unauthorized")
	}

	h.export("issued", func(ctx context.Context, exporter service.CodeExporter) error {
		return exporter.ExportIssued(ctx, issued)
	})

	codes := make([]string, 0, len(issued))
	for _, code := range issued {
		codes = append(codes, code.Code)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"codes":   codes,
	})
}
