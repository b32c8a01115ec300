package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-social-api/internal/observability"
)

const apiPrefix = "/api/v2"

// Observability records Prometheus metrics and one log line per /api/v2 request.
// Websocket upgrades are skipped because their duration is the socket lifetime.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()

	return func(c *fiber.Ctx) error {
		started := time.Now()
		err := c.Next()

		if !strings.HasPrefix(c.Path(), apiPrefix) || websocketUpgrade(c) {
			return err
		}

		sample := requestSample{
			route:   routeTemplate(c),
			method:  c.Method(),
			status:  c.Response().StatusCode(),
			elapsed: time.Since(started),
		}
		sample.observe()
		sample.log(logger, c, err)
		return err
	}
}

type requestSample struct {
	route   string
	method  string
	status  int
	elapsed time.Duration
}

func (s requestSample) observe() {
	status := strconv.Itoa(s.status)
	observability.HTTPRequests().WithLabelValues(s.method, s.route, status).Inc()
	observability.HTTPLatency().WithLabelValues(s.method, s.route).Observe(s.elapsed.Seconds())
	if s.status >= fiber.StatusBadRequest {
		observability.HTTPErrors().WithLabelValues(s.method, s.route, status).Inc()
	}
}

func (s requestSample) log(logger zerolog.Logger, c *fiber.Ctx, err error) {
	var event *zerolog.Event
	message := "request served"
	switch {
	case s.status >= fiber.StatusInternalServerError:
		event, message = logger.Error().Err(err), "request failed"
	case s.status >= fiber.StatusBadRequest:
		event, message = logger.Warn(), "request rejected"
	default:
		event = logger.Info()
	}

	event = event.
		Str("correlation_id", GetCorrelationID(c)).
		Str("surface", surface(s.route)).
		Str("route", s.route).
		Str("method", s.method).
		Int("status", s.status).
		Float64("latency_ms", float64(s.elapsed)/float64(time.Millisecond))

	// Unset on public routes and on requests the JWT layer rejected.
	if userID := userIDLocal(c); userID != 0 {
		event = event.Uint("user_id", userID)
	}
	if role, ok := c.Locals("user_role").(string); ok && role != "" {
		event = event.Str("role", role)
	}
	event.Msg(message)
}

// websocketUpgrade reports long-lived socket requests.
func websocketUpgrade(c *fiber.Ctx) bool {
	return strings.EqualFold(c.Get(fiber.HeaderUpgrade), "websocket")
}

func routeTemplate(c *fiber.Ctx) string {
	if c.Route() != nil && c.Route().Path != "" {
		return c.Route().Path
	}
	return c.Path()
}

// surface names the first segment under /api/v2, e.g. "conversations" or "notifications".
func surface(route string) string {
	rest := strings.TrimPrefix(strings.TrimPrefix(route, apiPrefix), "/")
	if head, _, found := strings.Cut(rest, "/"); found {
		return head
	}
	if rest == "" {
		return "root"
	}
	return rest
}
