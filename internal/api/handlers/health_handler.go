package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/instant-tutor/backend/pkg/config"
	"github.com/instant-tutor/backend/pkg/logger"
)

const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusDemo         = "demo_mode"
	StatusDisabled     = "disabled"

	healthTimeout = 3 * time.Second
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// Service is one entry of the health report. A nil Pinger means the
// service is not configured.
type Service struct {
	Name   string
	Pinger Pinger
	// DemoOnly services report demo_mode instead of disabled in demo mode.
	DemoOnly bool
}

type HealthHandler struct {
	mode     string
	services []Service
	now      func() time.Time
}

func NewHealthHandler(mode string, services []Service) *HealthHandler {
	return &HealthHandler{
		mode:     mode,
		services: services,
		now:      time.Now,
	}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
	defer cancel()

	var (
		mu       sync.Mutex
		statuses = make(map[string]string, len(h.services))
	)

	// static entries are filled before any ping goroutine touches the map
	var pinged []Service
	for _, svc := range h.services {
		if svc.Pinger != nil {
			pinged = append(pinged, svc)
			continue
		}
		status := StatusDisabled
		if svc.DemoOnly && h.mode == config.ModeDemo {
			status = StatusDemo
		}
		statuses[svc.Name] = status
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range pinged {
		g.Go(func() error {
			status := StatusConnected
			if err := svc.Pinger.Ping(gctx); err != nil {
				logger.Warn("Health check failed", zap.String("service", svc.Name), zap.Error(err))
				status = StatusDisconnected
			}
			mu.Lock()
			statuses[svc.Name] = status
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": h.now().UTC().Format(time.RFC3339),
		"mode":      h.mode,
		"services":  statuses,
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ready",
	})
}
