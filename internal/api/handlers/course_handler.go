package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/instant-tutor/backend/internal/apperr"
	"github.com/instant-tutor/backend/internal/ingestion"
	"github.com/instant-tutor/backend/internal/middleware/validation"
	"github.com/instant-tutor/backend/internal/storage/models"
	"github.com/instant-tutor/backend/internal/storage/sqldb"
	"github.com/instant-tutor/backend/pkg/logger"
)

const demoUploadNote = "Demo mode - videos would be processed with Whisper and stored in vector database"

type CourseStore interface {
	UpsertCourse(ctx context.Context, course *models.Course) error
}

type JobQueue interface {
	Enqueue(ctx context.Context, courseID string, locators []string) (*models.IngestionJob, error)
	Job(ctx context.Context, id string) (*models.IngestionJob, error)
}

type CourseUploadRequest struct {
	CourseID       string   `json:"course_id" validate:"required,max=100"`
	CourseTitle    string   `json:"course_title" validate:"required,max=200"`
	VideoURLs      []string `json:"video_urls" validate:"required,min=1,max=100,dive,required,locator"`
	InstructorName string   `json:"instructor_name" validate:"max=200"`
	Language       string   `json:"language" validate:"max=50"`
	Difficulty     string   `json:"difficulty" validate:"oneof=beginner intermediate advanced"`
}

// CourseHandler registers course metadata and schedules ingestion. Store
// and queue are nil when the service has no database or pipeline.
type CourseHandler struct {
	store CourseStore
	queue JobQueue
}

func NewCourseHandler(store CourseStore, queue JobQueue) *CourseHandler {
	return &CourseHandler{
		store: store,
		queue: queue,
	}
}

func (h *CourseHandler) UploadCourse(c *fiber.Ctx) error {
	var req CourseUploadRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	req.CourseID = validation.Sanitize(req.CourseID)
	req.CourseTitle = validation.Sanitize(req.CourseTitle)
	if req.Language == "" {
		req.Language = "english"
	}
	if req.Difficulty == "" {
		req.Difficulty = "intermediate"
	}
	if err := validation.Struct(req); err != nil {
		return err
	}

	ctx := c.UserContext()
	logger.Info("Course upload initiated",
		zap.String("course_id", req.CourseID),
		zap.String("title", req.CourseTitle),
		zap.Int("videos", len(req.VideoURLs)),
	)

	if h.store != nil {
		err := h.store.UpsertCourse(ctx, &models.Course{
			CourseID:       req.CourseID,
			Title:          req.CourseTitle,
			InstructorName: req.InstructorName,
			Language:       req.Language,
			Difficulty:     req.Difficulty,
			VideoCount:     len(req.VideoURLs),
		})
		if err != nil {
			return apperr.Internal("failed to store course", err)
		}
	}

	resp := fiber.Map{
		"message":     fmt.Sprintf("Course '%s' upload initiated", req.CourseTitle),
		"course_id":   req.CourseID,
		"status":      "processing",
		"video_count": len(req.VideoURLs),
	}

	if h.queue == nil {
		resp["note"] = demoUploadNote
		return c.JSON(resp)
	}

	job, err := h.queue.Enqueue(ctx, req.CourseID, req.VideoURLs)
	switch {
	case errors.Is(err, ingestion.ErrQueueFull):
		return apperr.Unavailable("ingestion queue is full")
	case errors.Is(err, ingestion.ErrQueueClosed):
		return apperr.Unavailable("ingestion is shutting down")
	case err != nil:
		return apperr.Internal("failed to schedule ingestion", err)
	}

	resp["job_id"] = job.ID
	return c.JSON(resp)
}

func (h *CourseHandler) GetJob(c *fiber.Ctx) error {
	id := c.Params("job_id")
	if h.queue == nil {
		return apperr.NotFound("ingestion job %s not found", id)
	}

	job, err := h.queue.Job(c.UserContext(), id)
	if errors.Is(err, sqldb.ErrNotFound) || errors.Is(err, ingestion.ErrJobNotFound) {
		return apperr.NotFound("ingestion job %s not found", id)
	}
	if err != nil {
		return apperr.Internal("failed to load ingestion job", err)
	}

	return c.JSON(job)
}
