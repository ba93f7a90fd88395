package query

// Request is a student question.
type Request struct {
	Query    string         `json:"query" validate:"required,min=5,max=500"`
	CourseID string         `json:"course_id" validate:"required,min=1,max=100"`
	UserID   string         `json:"user_id,omitempty" validate:"max=100"`
	Context  map[string]any `json:"context,omitempty"`
}

type Timestamp struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Source cites the course material an answer drew on.
type Source struct {
	ID             int       `json:"id"`
	ContentPreview string    `json:"content_preview"`
	VideoPath      string    `json:"video_path"`
	Timestamp      Timestamp `json:"timestamp"`
	RelevanceScore float64   `json:"relevance_score"`
	Topic          string    `json:"topic"`
}

type Response struct {
	Answer             string   `json:"answer"`
	Sources            []Source `json:"sources"`
	Confidence         float64  `json:"confidence"`
	ResponseTime       int64    `json:"response_time"`
	SuggestedFollowups []string `json:"suggested_followups"`
	QueryID            int64    `json:"query_id,omitempty"`
}

// Passage is a retrieved piece of course content with its blended score.
type Passage struct {
	ChunkID       string
	Text          string
	MediaLocator  string
	Start         float64
	End           float64
	Topic         string
	SemanticScore float64
	KeywordScore  float64
	Score         float64
}
