package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/instant-tutor/backend/internal/apperr"
	"github.com/instant-tutor/backend/internal/kerala"
	"github.com/instant-tutor/backend/internal/middleware/validation"
)

// KeralaHandler serves the static regional content. None of it needs
// authentication.
type KeralaHandler struct{}

func NewKeralaHandler() *KeralaHandler {
	return &KeralaHandler{}
}

func (h *KeralaHandler) Register(router fiber.Router) {
	router.Get("/features", h.static(kerala.Features))
	router.Get("/curriculum/:type", h.Curriculum)
	router.Get("/languages", h.static(kerala.Languages))
	router.Get("/pricing", h.static(kerala.PricingInfo))
	router.Get("/ksum", h.static(kerala.KSUM))
	router.Get("/local-content", h.static(kerala.LocalContent))
	router.Get("/market-analysis", h.static(kerala.MarketAnalysis))
	router.Post("/translate", h.Translate)
}

func (h *KeralaHandler) static(content func() map[string]any) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(content())
	}
}

func (h *KeralaHandler) Curriculum(c *fiber.Ctx) error {
	kind := c.Params("type")
	info, ok := kerala.CurriculumInfo(kind)
	if !ok {
		return apperr.NotFound("curriculum type '%s' not found, available: %s",
			kind, strings.Join(kerala.CurriculumTypes(), ", "))
	}
	return c.JSON(info)
}

func (h *KeralaHandler) Translate(c *fiber.Ctx) error {
	var req kerala.TranslateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	req.Text = validation.Sanitize(req.Text)
	if err := validation.Struct(req); err != nil {
		return err
	}
	return c.JSON(kerala.Translate(req))
}
