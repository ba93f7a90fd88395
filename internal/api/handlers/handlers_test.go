package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instant-tutor/backend/internal/auth"
	"github.com/instant-tutor/backend/internal/ingestion"
	"github.com/instant-tutor/backend/internal/query"
	"github.com/instant-tutor/backend/internal/storage/models"
	"github.com/instant-tutor/backend/internal/storage/sqldb"
	"github.com/instant-tutor/backend/pkg/config"
)

const testToken = "test-token"

func testConfig() *config.Config {
	cfg := &config.Config{Mode: config.ModeDemo}
	cfg.Server.Development = true
	cfg.RateLimit.RequestsPerMinute = 1000
	return cfg
}

func newTestApp(t *testing.T, mutate func(*RouterDeps)) *fiber.App {
	t.Helper()
	deps := RouterDeps{
		Config:   testConfig(),
		Verifier: auth.NewStaticVerifier([]string{testToken}),
		Engine:   query.NewEngine(query.Deps{Mode: config.ModeDemo}),
	}
	if mutate != nil {
		mutate(&deps)
	}
	app, stop := NewApp(deps)
	t.Cleanup(stop)
	return app
}

func newStore(t *testing.T) *sqldb.Client {
	t.Helper()
	store, err := sqldb.NewClient("sqlite3", ":memory:")
	require.NoError(t, err)
	require.NoError(t, store.InitSchema(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store
}

func do(t *testing.T, app *fiber.App, method, path string, body any, token string) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func TestQueryDerivativeExample(t *testing.T) {
	app := newTestApp(t, nil)

	resp, body := do(t, app, "POST", "/api/query", map[string]any{
		"query":     "What is the derivative of x squared?",
		"course_id": "MATH_101",
	}, testToken)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body["answer"], "derivative of x²")

	sources := body["sources"].([]any)
	require.NotEmpty(t, sources)
	assert.Equal(t, "Derivatives", sources[0].(map[string]any)["topic"])
	assert.LessOrEqual(t, body["confidence"].(float64), 1.0)
	assert.Len(t, body["suggested_followups"], 3)
}

func TestQueryRequiresToken(t *testing.T) {
	app := newTestApp(t, nil)
	valid := map[string]any{"query": "What is the derivative of x squared?", "course_id": "MATH_101"}

	resp, body := do(t, app, "POST", "/api/query", valid, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "authorization_error", body["error"])

	resp, _ = do(t, app, "POST", "/api/query", valid, "wrong-token")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// auth is checked before the body
	resp, _ = do(t, app, "POST", "/api/query", map[string]any{"query": "hi"}, "wrong-token")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// and before the content type
	for _, path := range []string{"/api/query", "/api/feedback", "/api/courses/upload"} {
		req := httptest.NewRequest("POST", path, bytes.NewBufferString("hello"))
		req.Header.Set("Content-Type", "text/plain")

		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, path)
	}
}

func TestQueryValidation(t *testing.T) {
	app := newTestApp(t, nil)

	resp, body := do(t, app, "POST", "/api/query", map[string]any{"query": "why", "course_id": "MATH_101"}, testToken)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "validation_error", body["error"])

	resp, _ = do(t, app, "POST", "/api/query", `{"query": `, testToken)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = do(t, app, "POST", "/api/query", map[string]any{"query": "What is a force?"}, testToken)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestQueryRejectsNonJSON(t *testing.T) {
	app := newTestApp(t, nil)

	req := httptest.NewRequest("POST", "/api/query", bytes.NewBufferString("query=hello"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+testToken)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestFeedbackUnknownQuery(t *testing.T) {
	store := newStore(t)
	app := newTestApp(t, func(d *RouterDeps) {
		d.Feedback = store
		d.Analytics = store
	})

	resp, body := do(t, app, "POST", "/api/feedback", map[string]any{"query_id": 999999, "rating": 5}, testToken)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["error"])
}

func TestFeedbackAndAnalyticsRoundTrip(t *testing.T) {
	store := newStore(t)
	app := newTestApp(t, func(d *RouterDeps) {
		d.Engine = query.NewEngine(query.Deps{Mode: config.ModeDemo, Logs: store})
		d.Feedback = store
		d.Analytics = store
	})

	resp, body := do(t, app, "POST", "/api/query", map[string]any{
		"query":     "Explain Newton's second law",
		"course_id": "PHY_101",
	}, testToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	queryID := body["query_id"].(float64)
	require.Positive(t, queryID)

	resp, body = do(t, app, "POST", "/api/feedback", map[string]any{
		"query_id": queryID,
		"rating":   4,
		"comment":  "clear",
	}, testToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Feedback submitted successfully", body["message"])
	assert.Nil(t, body["note"])

	resp, body = do(t, app, "GET", "/api/analytics/course/PHY_101", nil, testToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1.0, body["total_queries"])
	assert.Equal(t, 4.0, body["avg_user_rating"])
	assert.Equal(t, 1.0, body["rated_queries"])
}

func TestFeedbackValidation(t *testing.T) {
	app := newTestApp(t, nil)

	resp, _ := do(t, app, "POST", "/api/feedback", map[string]any{"query_id": 1, "rating": 6}, testToken)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = do(t, app, "POST", "/api/feedback", map[string]any{"query_id": 0, "rating": 3}, testToken)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, body := do(t, app, "POST", "/api/feedback", map[string]any{"query_id": 7, "rating": 3}, testToken)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["note"])
}

func TestDemoAnalytics(t *testing.T) {
	app := newTestApp(t, nil)

	resp, body := do(t, app, "GET", "/api/analytics/course/MATH_101", nil, testToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 42.0, body["total_queries"])
	assert.Equal(t, 4.2, body["avg_user_rating"])
	kb := body["knowledge_base"].(map[string]any)
	assert.Equal(t, 156.0, kb["total_content_chunks"])
}

type fakeCourses struct {
	courses []models.Course
}

func (f *fakeCourses) UpsertCourse(_ context.Context, course *models.Course) error {
	f.courses = append(f.courses, *course)
	return nil
}

type fakeQueue struct {
	err  error
	jobs map[string]*models.IngestionJob
}

func (f *fakeQueue) Enqueue(_ context.Context, courseID string, locators []string) (*models.IngestionJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	job := &models.IngestionJob{ID: "job-1", CourseID: courseID, Status: models.JobPending, TotalItems: len(locators)}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeQueue) Job(_ context.Context, id string) (*models.IngestionJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, ingestion.ErrJobNotFound
	}
	return job, nil
}

func TestUploadCourseEnqueuesJob(t *testing.T) {
	courses := &fakeCourses{}
	queue := &fakeQueue{jobs: map[string]*models.IngestionJob{}}
	app := newTestApp(t, func(d *RouterDeps) {
		d.Courses = courses
		d.Jobs = queue
	})

	resp, body := do(t, app, "POST", "/api/courses/upload", map[string]any{
		"course_id":    "MATH_101",
		"course_title": "Calculus I",
		"video_urls":   []string{"https://cdn.example.com/lecture1.mp4", "/data/lecture2.mp4"},
	}, testToken)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Course 'Calculus I' upload initiated", body["message"])
	assert.Equal(t, "processing", body["status"])
	assert.Equal(t, 2.0, body["video_count"])
	assert.Equal(t, "job-1", body["job_id"])

	require.Len(t, courses.courses, 1)
	assert.Equal(t, "english", courses.courses[0].Language)
	assert.Equal(t, "intermediate", courses.courses[0].Difficulty)

	resp, body = do(t, app, "GET", "/api/courses/jobs/job-1", nil, testToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pending", body["status"])

	resp, _ = do(t, app, "GET", "/api/courses/jobs/missing", nil, testToken)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadCourseQueueFull(t *testing.T) {
	app := newTestApp(t, func(d *RouterDeps) {
		d.Jobs = &fakeQueue{err: ingestion.ErrQueueFull}
	})

	resp, body := do(t, app, "POST", "/api/courses/upload", map[string]any{
		"course_id":    "MATH_101",
		"course_title": "Calculus I",
		"video_urls":   []string{"https://cdn.example.com/lecture1.mp4"},
	}, testToken)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "ingestion queue is full", body["detail"])
}

func TestUploadCourseValidation(t *testing.T) {
	app := newTestApp(t, nil)

	cases := map[string]map[string]any{
		"no videos":      {"course_id": "C1", "course_title": "T", "video_urls": []string{}},
		"bad locator":    {"course_id": "C1", "course_title": "T", "video_urls": []string{"ftp://host/a.mp4"}},
		"bad difficulty": {"course_id": "C1", "course_title": "T", "video_urls": []string{"a.mp4"}, "difficulty": "expert"},
		"no title":       {"course_id": "C1", "video_urls": []string{"a.mp4"}},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp, _ := do(t, app, "POST", "/api/courses/upload", body, testToken)
			assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		})
	}
}

func TestUploadCourseDemo(t *testing.T) {
	app := newTestApp(t, nil)

	resp, body := do(t, app, "POST", "/api/courses/upload", map[string]any{
		"course_id":    "MATH_101",
		"course_title": "Calculus I",
		"video_urls":   []string{"lecture1.mp4"},
	}, testToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, demoUploadNote, body["note"])
	assert.Nil(t, body["job_id"])
}

func TestKeralaRoutesArePublic(t *testing.T) {
	app := newTestApp(t, nil)

	for _, path := range []string{
		"/api/kerala/features",
		"/api/kerala/curriculum/scert",
		"/api/kerala/languages",
		"/api/kerala/pricing",
		"/api/kerala/ksum",
		"/api/kerala/local-content",
		"/api/kerala/market-analysis",
	} {
		resp, _ := do(t, app, "GET", path, nil, "")
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp, _ := do(t, app, "GET", "/api/kerala/curriculum/ib", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := do(t, app, "POST", "/api/kerala/translate", map[string]any{"text": "Photosynthesis"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[Malayalam Translation] Photosynthesis", body["translated_text"])

	resp, _ = do(t, app, "POST", "/api/kerala/translate", map[string]any{"text": ""}, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, func(d *RouterDeps) {
		d.Services = []Service{
			{Name: "database", Pinger: PingFunc(func(context.Context) error { return nil })},
			{Name: "vector_db", DemoOnly: true},
			{Name: "cache", Pinger: PingFunc(func(context.Context) error { return errors.New("refused") })},
			{Name: "topic_graph"},
		}
	})

	resp, body := do(t, app, "GET", "/health", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "demo", body["mode"])

	services := body["services"].(map[string]any)
	assert.Equal(t, StatusConnected, services["database"])
	assert.Equal(t, StatusDemo, services["vector_db"])
	assert.Equal(t, StatusDisconnected, services["cache"])
	assert.Equal(t, StatusDisabled, services["topic_graph"])

	resp, _ = do(t, app, "GET", "/ready", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthRepeatedWithMixedServices(t *testing.T) {
	ok := PingFunc(func(context.Context) error { return nil })
	app := newTestApp(t, func(d *RouterDeps) {
		d.Services = []Service{
			{Name: "database", Pinger: ok},
			{Name: "vector_db", DemoOnly: true},
			{Name: "llm", DemoOnly: true},
			{Name: "cache"},
			{Name: "queue", Pinger: ok},
			{Name: "topic_graph"},
		}
	})

	for i := 0; i < 100; i++ {
		resp, body := do(t, app, "GET", "/health", nil, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		services := body["services"].(map[string]any)
		require.Len(t, services, 6)
		assert.Equal(t, StatusConnected, services["database"])
		assert.Equal(t, StatusConnected, services["queue"])
		assert.Equal(t, StatusDemo, services["llm"])
		assert.Equal(t, StatusDisabled, services["cache"])
	}
}

func TestUnknownRoute(t *testing.T) {
	app := newTestApp(t, nil)

	resp, body := do(t, app, "GET", "/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["error"])
}

func TestSplitIntoWords(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "\n", "c"}, splitIntoWords("a  b\nc"))
	assert.Empty(t, splitIntoWords(""))
}
