package models

import "time"

type QueryLog struct {
	ID              int64
	UserID          string
	CourseID        string
	QueryText       string
	ResponseText    string
	Confidence      float64
	ResponseTimeMS  int64
	Mode            string
	UserRating      *int
	FeedbackComment *string
	CreatedAt       time.Time
	RatedAt         *time.Time
}

type Course struct {
	CourseID       string
	Title          string
	InstructorName string
	Language       string
	Difficulty     string
	VideoCount     int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ContentChunk mirrors a passage upserted to the vector store.
type ContentChunk struct {
	ID           string
	CourseID     string
	MediaLocator string
	ChunkIndex   int
	Text         string
	StartTime    float64
	EndTime      float64
	Topic        string
	CreatedAt    time.Time
}

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

type IngestionJob struct {
	ID             string    `json:"job_id"`
	CourseID       string    `json:"course_id"`
	Status         JobStatus `json:"status"`
	Locators       []string  `json:"-"`
	TotalItems     int       `json:"total_items"`
	ProcessedItems int       `json:"processed_items"`
	FailedItems    int       `json:"failed_items"`
	ChunkCount     int       `json:"chunk_count"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Done reports whether the job reached a terminal state.
func (j *IngestionJob) Done() bool {
	return j.Status == JobSucceeded || j.Status == JobFailed
}

type CourseAnalytics struct {
	CourseID          string
	TotalQueries      int64
	AvgResponseTimeMS float64
	AvgUserRating     float64
	RatedQueries      int64
	TotalChunks       int64
	LastUpdated       *time.Time
}
