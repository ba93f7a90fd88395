package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/instant-tutor/backend/internal/storage/models"
	"github.com/instant-tutor/backend/pkg/logger"
)

// InsertQueryLog stores a served answer and returns the new row id.
func (c *Client) InsertQueryLog(ctx context.Context, log *models.QueryLog) (int64, error) {
	query := `
		INSERT INTO query_logs (user_id, course_id, query_text, response_text, confidence,
			response_time_ms, mode, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`

	createdAt := log.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var id int64
	err := c.queryRow(ctx, query,
		log.UserID,
		log.CourseID,
		log.QueryText,
		log.ResponseText,
		log.Confidence,
		log.ResponseTimeMS,
		log.Mode,
		createdAt.Unix(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert query log: %w", mapError(err))
	}

	logger.Debug("Query logged",
		zap.Int64("query_id", id),
		zap.String("course_id", log.CourseID),
		zap.Float64("confidence", log.Confidence),
	)

	return id, nil
}

func (c *Client) GetQueryLog(ctx context.Context, id int64) (*models.QueryLog, error) {
	query := `
		SELECT id, user_id, course_id, query_text, response_text, confidence, response_time_ms,
			mode, user_rating, feedback_comment, created_at, rated_at
		FROM query_logs WHERE id = ?
	`

	var (
		l         models.QueryLog
		userID    sql.NullString
		response  sql.NullString
		mode      sql.NullString
		rating    sql.NullInt64
		comment   sql.NullString
		createdAt int64
		ratedAt   sql.NullInt64
	)

	err := c.queryRow(ctx, query, id).Scan(
		&l.ID, &userID, &l.CourseID, &l.QueryText, &response, &l.Confidence,
		&l.ResponseTimeMS, &mode, &rating, &comment, &createdAt, &ratedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get query log %d: %w", id, mapError(err))
	}

	l.UserID = userID.String
	l.ResponseText = response.String
	l.Mode = mode.String
	l.CreatedAt = time.Unix(createdAt, 0)
	if rating.Valid {
		r := int(rating.Int64)
		l.UserRating = &r
	}
	if comment.Valid {
		l.FeedbackComment = &comment.String
	}
	if ratedAt.Valid {
		t := time.Unix(ratedAt.Int64, 0)
		l.RatedAt = &t
	}

	return &l, nil
}

// UpdateRating attaches feedback to an existing query log row. It returns
// ErrNotFound when no row has the id.
func (c *Client) UpdateRating(ctx context.Context, queryID int64, rating int, comment string) error {
	query := `UPDATE query_logs SET user_rating = ?, feedback_comment = ?, rated_at = ? WHERE id = ?`

	var commentArg any
	if comment != "" {
		commentArg = comment
	}

	res, err := c.exec(ctx, query, rating, commentArg, time.Now().Unix(), queryID)
	if err != nil {
		return fmt.Errorf("failed to update rating: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	logger.Info("Feedback stored", zap.Int64("query_id", queryID), zap.Int("rating", rating))
	return nil
}

func (c *Client) UpsertCourse(ctx context.Context, course *models.Course) error {
	query := `
		INSERT INTO courses (course_id, title, instructor_name, language, difficulty, video_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(course_id) DO UPDATE SET
			title = excluded.title,
			instructor_name = excluded.instructor_name,
			language = excluded.language,
			difficulty = excluded.difficulty,
			video_count = excluded.video_count,
			updated_at = excluded.updated_at
	`

	now := time.Now().Unix()
	_, err := c.exec(ctx, query,
		course.CourseID,
		course.Title,
		course.InstructorName,
		course.Language,
		course.Difficulty,
		course.VideoCount,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert course: %w", err)
	}

	logger.Debug("Course upserted", zap.String("course_id", course.CourseID))
	return nil
}

func (c *Client) GetCourse(ctx context.Context, courseID string) (*models.Course, error) {
	query := `
		SELECT course_id, title, instructor_name, language, difficulty, video_count, created_at, updated_at
		FROM courses WHERE course_id = ?
	`

	var (
		course               models.Course
		instructor           sql.NullString
		createdAt, updatedAt int64
	)
	err := c.queryRow(ctx, query, courseID).Scan(
		&course.CourseID, &course.Title, &instructor, &course.Language, &course.Difficulty,
		&course.VideoCount, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get course: %w", mapError(err))
	}

	course.InstructorName = instructor.String
	course.CreatedAt = time.Unix(createdAt, 0)
	course.UpdatedAt = time.Unix(updatedAt, 0)
	return &course, nil
}

// UpsertChunks mirrors ingested chunks. Ids are deterministic so
// re-ingesting a locator overwrites its rows.
func (c *Client) UpsertChunks(ctx context.Context, chunks []models.ContentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, c.rebind(`
		INSERT INTO content_chunks (id, course_id, media_locator, chunk_index, text, start_time, end_time, topic, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			topic = excluded.topic,
			created_at = excluded.created_at
	`))
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, ch := range chunks {
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.CourseID, ch.MediaLocator, ch.ChunkIndex, ch.Text,
			ch.StartTime, ch.EndTime, ch.Topic, now,
		); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", ch.ID, mapError(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

// SearchChunksByTerms returns up to limit chunks of the course whose text
// contains at least one of terms, case-insensitively.
func (c *Client) SearchChunksByTerms(ctx context.Context, courseID string, terms []string, limit int) ([]models.ContentChunk, error) {
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}

	conds := make([]string, 0, len(terms))
	args := make([]any, 0, len(terms)+2)
	args = append(args, courseID)
	for _, term := range terms {
		conds = append(conds, "LOWER(text) LIKE ?")
		args = append(args, "%"+strings.ToLower(term)+"%")
	}
	args = append(args, limit)

	query := `
		SELECT id, course_id, media_locator, chunk_index, text, start_time, end_time, topic, created_at
		FROM content_chunks
		WHERE course_id = ? AND (` + strings.Join(conds, " OR ") + `)
		ORDER BY created_at DESC, chunk_index ASC
		LIMIT ?
	`

	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.ContentChunk
	for rows.Next() {
		var (
			ch        models.ContentChunk
			topic     sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&ch.ID, &ch.CourseID, &ch.MediaLocator, &ch.ChunkIndex, &ch.Text,
			&ch.StartTime, &ch.EndTime, &topic, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		ch.Topic = topic.String
		ch.CreatedAt = time.Unix(createdAt, 0)
		chunks = append(chunks, ch)
	}

	return chunks, rows.Err()
}

func (c *Client) CourseAnalytics(ctx context.Context, courseID string) (*models.CourseAnalytics, error) {
	a := &models.CourseAnalytics{CourseID: courseID}

	var avgTime, avgRating sql.NullFloat64
	err := c.queryRow(ctx, `
		SELECT COUNT(*), AVG(response_time_ms), AVG(user_rating), COUNT(user_rating)
		FROM query_logs WHERE course_id = ?
	`, courseID).Scan(&a.TotalQueries, &avgTime, &avgRating, &a.RatedQueries)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate query logs: %w", mapError(err))
	}
	a.AvgResponseTimeMS = avgTime.Float64
	a.AvgUserRating = avgRating.Float64

	var lastUpdated sql.NullInt64
	err = c.queryRow(ctx, `
		SELECT COUNT(*), MAX(created_at) FROM content_chunks WHERE course_id = ?
	`, courseID).Scan(&a.TotalChunks, &lastUpdated)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", mapError(err))
	}
	if lastUpdated.Valid {
		t := time.Unix(lastUpdated.Int64, 0).UTC()
		a.LastUpdated = &t
	}

	return a, nil
}

func (c *Client) CreateJob(ctx context.Context, job *models.IngestionJob) error {
	locators, err := json.Marshal(job.Locators)
	if err != nil {
		return fmt.Errorf("failed to encode locators: %w", err)
	}

	_, err = c.exec(ctx, `
		INSERT INTO ingestion_jobs (id, course_id, status, locators, total_items, processed_items,
			failed_items, chunk_count, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID, job.CourseID, string(job.Status), string(locators), job.TotalItems,
		job.ProcessedItems, job.FailedItems, job.ChunkCount, job.Error,
		job.CreatedAt.Unix(), job.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (c *Client) UpdateJob(ctx context.Context, job *models.IngestionJob) error {
	res, err := c.exec(ctx, `
		UPDATE ingestion_jobs SET status = ?, processed_items = ?, failed_items = ?, chunk_count = ?,
			error = ?, updated_at = ?
		WHERE id = ?
	`,
		string(job.Status), job.ProcessedItems, job.FailedItems, job.ChunkCount, job.Error,
		job.UpdatedAt.Unix(), job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *Client) GetJob(ctx context.Context, id string) (*models.IngestionJob, error) {
	var (
		job                  models.IngestionJob
		status               string
		locators             sql.NullString
		jobErr               sql.NullString
		createdAt, updatedAt int64
	)

	err := c.queryRow(ctx, `
		SELECT id, course_id, status, locators, total_items, processed_items, failed_items,
			chunk_count, error, created_at, updated_at
		FROM ingestion_jobs WHERE id = ?
	`, id).Scan(
		&job.ID, &job.CourseID, &status, &locators, &job.TotalItems, &job.ProcessedItems,
		&job.FailedItems, &job.ChunkCount, &jobErr, &createdAt, &updatedAt,
	)
	if err != nil {
		err = mapError(err)
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	job.Status = models.JobStatus(status)
	job.Error = jobErr.String
	job.CreatedAt = time.Unix(createdAt, 0)
	job.UpdatedAt = time.Unix(updatedAt, 0)
	if locators.Valid && locators.String != "" {
		if err := json.Unmarshal([]byte(locators.String), &job.Locators); err != nil {
			return nil, fmt.Errorf("failed to decode locators of job %s: %w", id, err)
		}
	}

	return &job, nil
}
