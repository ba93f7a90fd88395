package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/instant-tutor/backend/internal/auth"
	"github.com/instant-tutor/backend/internal/query"
)

// Answerer is the query engine as seen by the HTTP layer.
type Answerer interface {
	Answer(ctx context.Context, req query.Request) (*query.Response, error)
	Mode() string
}

type QueryHandler struct {
	engine Answerer
}

func NewQueryHandler(engine Answerer) *QueryHandler {
	return &QueryHandler{
		engine: engine,
	}
}

func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	var req query.Request
	if err := parseBody(c, &req); err != nil {
		return err
	}

	withPrincipal(c, &req)

	resp, err := h.engine.Answer(c.UserContext(), req)
	if err != nil {
		return err
	}

	return c.JSON(resp)
}

// withPrincipal defaults the request's user id to the authenticated user.
func withPrincipal(c *fiber.Ctx, req *query.Request) {
	if req.UserID != "" {
		return
	}
	if p := auth.PrincipalFrom(c); p != nil {
		req.UserID = p.UserID
	}
}
