package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/instant-tutor/backend/internal/auth"
	"github.com/instant-tutor/backend/internal/metrics"
	"github.com/instant-tutor/backend/internal/middleware/ratelimit"
	"github.com/instant-tutor/backend/internal/middleware/security"
	"github.com/instant-tutor/backend/internal/middleware/validation"
	"github.com/instant-tutor/backend/pkg/config"
	"github.com/instant-tutor/backend/pkg/logger"
)

// RouterDeps carries everything the HTTP surface needs. Optional stores
// and the queue are nil when not configured.
type RouterDeps struct {
	Config    *config.Config
	Verifier  auth.Verifier
	Engine    Answerer
	Courses   CourseStore
	Jobs      JobQueue
	Feedback  FeedbackStore
	Analytics AnalyticsStore
	Services  []Service
}

// NewApp builds the fiber app. The returned stop function releases the
// rate limiter.
func NewApp(deps RouterDeps) (*fiber.App, func()) {
	cfg := deps.Config

	app := fiber.New(fiber.Config{
		AppName:      "instant-tutor",
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
		ErrorHandler: ErrorHandler,
	})

	allowOrigins := "*"
	if len(cfg.Server.AllowedOrigins) > 0 {
		allowOrigins = strings.Join(cfg.Server.AllowedOrigins, ",")
	}

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Logger:               logger.GetLogger(),
	})
	requireAuth := auth.Middleware(deps.Verifier)
	limit := limiter.Middleware()
	// runs after auth: a request without a valid token is a 403 whatever its body
	jsonOnly := validation.Middleware(validation.Config{})

	health := NewHealthHandler(cfg.Mode, deps.Services)
	app.Get("/health", health.Health)
	app.Get("/ready", health.Ready)
	app.Get("/metrics", metrics.MetricsHandler())

	queryHandler := NewQueryHandler(deps.Engine)
	wsHandler := NewWebSocketHandler(deps.Engine)
	courseHandler := NewCourseHandler(deps.Courses, deps.Jobs)
	feedbackHandler := NewFeedbackHandler(deps.Feedback, deps.Analytics)

	api := app.Group("/api")

	api.Post("/query", requireAuth, limit, jsonOnly, queryHandler.HandleQuery)
	api.Get("/query/stream", requireAuth, limit, wsHandler.Upgrade, websocket.New(wsHandler.HandleConnection))

	api.Post("/courses/upload", requireAuth, limit, jsonOnly, courseHandler.UploadCourse)
	api.Get("/courses/jobs/:job_id", requireAuth, limit, courseHandler.GetJob)

	api.Post("/feedback", requireAuth, limit, jsonOnly, feedbackHandler.SubmitFeedback)
	api.Get("/analytics/course/:course_id", requireAuth, limit, feedbackHandler.CourseAnalytics)

	NewKeralaHandler().Register(api.Group("/kerala", limit, jsonOnly))

	return app, limiter.Stop
}
