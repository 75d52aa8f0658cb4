package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"speakout-gateway/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const (
	exportTimeout = 30 * time.Second
	healthTimeout = 2 * time.Second
)

// Pinger is the part of the store the health check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds the services behind the HTTP routes.
type Handler struct {
	ledger   *service.LedgerService
	issuance *service.IssuanceService
	exporter service.CodeExporter
	store    Pinger
}

// New builds a Handler. exporter may be nil.
func New(ledger *service.LedgerService, issuance *service.IssuanceService, exporter service.CodeExporter, store Pinger) *Handler {
	return &Handler{
		ledger:   ledger,
		issuance: issuance,
		exporter: exporter,
		store:    store,
	}
}

// HandleHealth reports whether the store answers.
func (h *Handler) HandleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("health check: store unreachable")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unavailable",
		})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// HandlePreflight answers every OPTIONS request with an empty 204.
func HandlePreflight(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

// export runs fn off the request path. The ledger write has already
// committed, so failures are only logged.
func (h *Handler) export(what string, fn func(ctx context.Context, exporter service.CodeExporter) error) {
	if h.exporter == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
		defer cancel()
		if err := fn(ctx, h.exporter); err != nil {
			log.Warn().Err(err).Str("export", what).Msg("code export failed")
		}
	}()
}

var fieldMessages = map[string]string{
	"amount": "Invalid amount",
	"count":  "Invalid count (1-100)",
	"prefix": "Invalid prefix",
	"code":   "Invalid Code",
}

// fail writes the JSON error for err. invalidLicense is the message used
// when the license key is unknown; it differs between routes.
func fail(c *fiber.Ctx, err error, invalidLicense string) error {
	status, message := classify(err, invalidLicense)
	if status >= fiber.StatusInternalServerError {
		log.Error().Err(err).
			Str("path", c.Path()).
			Interface("request_id", c.Locals("requestid")).
			Msg("request failed")
	}
	return c.Status(status).JSON(fiber.Map{"error": message})
}

func classify(err error, invalidLicense string) (int, string) {
	var verr *service.ValidationError
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return fiber.StatusForbidden, invalidLicense
	case errors.Is(err, service.ErrLicenseExpired):
		return fiber.StatusForbidden, "License Expired"
	case errors.Is(err, service.ErrInvalidCode):
		return fiber.StatusBadRequest, "Invalid Code"
	case errors.Is(err, service.ErrAlreadyUsed):
		return fiber.StatusConflict, "Code Already Used"
	case errors.Is(err, service.ErrUnauthorized):
		return fiber.StatusUnauthorized, "Unauthorized"
	case errors.As(err, &verr):
		if msg, ok := fieldMessages[verr.Field]; ok {
			return fiber.StatusBadRequest, msg
		}
		return fiber.StatusBadRequest, "Bad Request"
	case errors.Is(err, service.ErrBadRequest):
		return fiber.StatusBadRequest, "Bad Request"
	case errors.Is(err, service.ErrContention):
		return fiber.StatusServiceUnavailable, "Busy, please retry"
	default:
		return fiber.StatusInternalServerError, "Internal Server Error"
	}
}

// decodeBody reads a JSON object without fixing field types, so handlers can
// apply the lenient coercion clients rely on.
func decodeBody(c *fiber.Ctx) (map[string]json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(c.Body(), &fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

func badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "Invalid JSON body",
	})
}

// jsonNumber returns raw as a number when it is a JSON number literal.
// Quoted numbers are rejected.
func jsonNumber(raw json.RawMessage) (json.Number, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !(raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9')) {
		return "", false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false
	}
	return n, true
}

// truncatedSeconds converts raw to whole seconds, truncating fractions.
// Anything that is not a number counts as zero.
func truncatedSeconds(raw json.RawMessage) int64 {
	n, ok := jsonNumber(raw)
	if !ok {
		return 0
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	f, err := n.Float64()
	if err != nil {
		return 0
	}
	switch {
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

// wholeNumber accepts integral JSON numbers only, e.g. 36000 or 36000.0.
func wholeNumber(raw json.RawMessage) (int64, bool) {
	n, ok := jsonNumber(raw)
	if !ok {
		return 0, false
	}
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f >= math.MaxInt64 || f <= math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

func jsonString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
