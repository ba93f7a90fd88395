package handlers

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/instant-tutor/backend/internal/apperr"
	"github.com/instant-tutor/backend/internal/metrics"
	"github.com/instant-tutor/backend/internal/middleware/validation"
	"github.com/instant-tutor/backend/internal/storage/models"
	"github.com/instant-tutor/backend/internal/storage/sqldb"
	"github.com/instant-tutor/backend/pkg/logger"
)

type FeedbackStore interface {
	UpdateRating(ctx context.Context, queryID int64, rating int, comment string) error
}

type AnalyticsStore interface {
	CourseAnalytics(ctx context.Context, courseID string) (*models.CourseAnalytics, error)
}

type FeedbackRequest struct {
	QueryID int64  `json:"query_id" validate:"required,min=1"`
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

type FeedbackHandler struct {
	feedback  FeedbackStore
	analytics AnalyticsStore
	now       func() time.Time
}

// NewFeedbackHandler serves ratings and course analytics. Without stores
// both endpoints answer with demo data.
func NewFeedbackHandler(feedback FeedbackStore, analytics AnalyticsStore) *FeedbackHandler {
	return &FeedbackHandler{
		feedback:  feedback,
		analytics: analytics,
		now:       time.Now,
	}
}

func (h *FeedbackHandler) SubmitFeedback(c *fiber.Ctx) error {
	var req FeedbackRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	req.Comment = validation.Sanitize(req.Comment)
	if err := validation.Struct(req); err != nil {
		return err
	}

	resp := fiber.Map{
		"message":  "Feedback submitted successfully",
		"query_id": req.QueryID,
		"rating":   req.Rating,
	}

	if h.feedback == nil {
		logger.Info("Feedback received", zap.Int64("query_id", req.QueryID), zap.Int("rating", req.Rating))
		resp["note"] = "Demo mode - feedback would be stored in database"
		return c.JSON(resp)
	}

	err := h.feedback.UpdateRating(c.UserContext(), req.QueryID, req.Rating, req.Comment)
	if errors.Is(err, sqldb.ErrNotFound) {
		return apperr.NotFound("query %d not found", req.QueryID)
	}
	if err != nil {
		return apperr.Internal("failed to submit feedback", err)
	}

	metrics.FeedbackRating.Observe(float64(req.Rating))
	return c.JSON(resp)
}

func (h *FeedbackHandler) CourseAnalytics(c *fiber.Ctx) error {
	courseID := validation.Sanitize(c.Params("course_id"))
	if courseID == "" || len(courseID) > 100 {
		return apperr.Validation("course_id must be 1-100 characters")
	}

	if h.analytics == nil {
		return c.JSON(fiber.Map{
			"course_id":            courseID,
			"total_queries":        42,
			"avg_response_time_ms": 1500,
			"avg_user_rating":      4.2,
			"knowledge_base": fiber.Map{
				"total_content_chunks": 156,
				"last_updated":         h.now().UTC().Format(time.RFC3339),
			},
			"note": "Demo analytics - real data would come from database",
		})
	}

	a, err := h.analytics.CourseAnalytics(c.UserContext(), courseID)
	if err != nil {
		return apperr.Internal("failed to retrieve analytics", err)
	}

	var lastUpdated any
	if a.LastUpdated != nil {
		lastUpdated = a.LastUpdated.Format(time.RFC3339)
	}

	return c.JSON(fiber.Map{
		"course_id":            a.CourseID,
		"total_queries":        a.TotalQueries,
		"avg_response_time_ms": math.Round(a.AvgResponseTimeMS),
		"avg_user_rating":      math.Round(a.AvgUserRating*100) / 100,
		"rated_queries":        a.RatedQueries,
		"knowledge_base": fiber.Map{
			"total_content_chunks": a.TotalChunks,
			"last_updated":         lastUpdated,
		},
	})
}
