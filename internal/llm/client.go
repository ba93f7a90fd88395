package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/instant-tutor/backend/pkg/circuitbreaker"
	"github.com/instant-tutor/backend/pkg/config"
	"github.com/instant-tutor/backend/pkg/logger"
	"github.com/instant-tutor/backend/pkg/retry"
)

const (
	followupMaxTokens   = 150
	followupTemperature = 0.8
	embeddingBatchSize  = 100
)

// Segment is a timed piece of a transcript, in seconds.
type Segment struct {
	Start float64
	End   float64
	Text  string
}

type Client struct {
	client             *openai.Client
	model              string
	embeddingModel     string
	transcriptionModel string
	temperature        float32
	maxTokens          int
	timeout            time.Duration
	transcribeTimeout  time.Duration
	cb                 *circuitbreaker.CircuitBreaker
	retryConfig        retry.Config
}

func NewClient(cfg config.LLMConfig) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	cb := circuitbreaker.New("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		IsFailure:        IsRetryable,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Retryable:      IsRetryable,
		Logger:         logger.GetLogger(),
	}

	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transcribeTimeout := time.Duration(cfg.TranscriptionTimeoutSec) * time.Second
	if transcribeTimeout <= 0 {
		transcribeTimeout = 10 * time.Minute
	}

	logger.Info("LLM client initialized",
		zap.String("model", cfg.Model),
		zap.String("embedding_model", cfg.EmbeddingModel),
		zap.String("transcription_model", cfg.TranscriptionModel),
	)

	return &Client{
		client:             openai.NewClientWithConfig(clientConfig),
		model:              cfg.Model,
		embeddingModel:     cfg.EmbeddingModel,
		transcriptionModel: cfg.TranscriptionModel,
		temperature:        cfg.Temperature,
		maxTokens:          cfg.MaxTokens,
		timeout:            timeout,
		transcribeTimeout:  transcribeTimeout,
		cb:                 cb,
		retryConfig:        retryConfig,
	}
}

// IsRetryable reports whether err is worth retrying. Client errors (4xx
// other than 429) mean the request itself is wrong.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
		return false
	}
	return true
}

// call runs op under the breaker and retry policy. Each attempt gets its
// own timeout so a slow first try does not starve the retries.
func (c *Client) call(ctx context.Context, timeout time.Duration, op func(ctx context.Context) error) error {
	return c.cb.Execute(func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			attemptCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return op(attemptCtx)
		})
	})
}

func (c *Client) complete(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error) {
	var content string

	err := c.call(ctx, c.timeout, func(ctx context.Context) error {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
		if err != nil {
			return fmt.Errorf("failed to create completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return errors.New("completion returned no choices")
		}

		logger.Debug("LLM completion generated",
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		)

		content = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	})

	return content, err
}

// GenerateAnswer asks the model to answer question from the given course
// passages.
func (c *Client) GenerateAnswer(ctx context.Context, question string, passages []string) (string, error) {
	answer, err := c.complete(ctx, BuildAnswerPrompt(question, passages), c.temperature, c.maxTokens)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return "", errors.New("completion returned an empty answer")
	}
	return answer, nil
}

// SuggestFollowups asks for up to three follow-up questions.
func (c *Client) SuggestFollowups(ctx context.Context, question, answer string) ([]string, error) {
	content, err := c.complete(ctx, BuildFollowupPrompt(question, answer), followupTemperature, followupMaxTokens)
	if err != nil {
		return nil, err
	}
	return ParseFollowups(content, 3), nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, errors.New("embedding response was empty")
	}
	return embeddings[0], nil
}

// EmbedBatch embeds texts in request batches, preserving order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += embeddingBatchSize {
		end := i + embeddingBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]

		var out [][]float32
		err := c.call(ctx, c.timeout, func(ctx context.Context) error {
			resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Input: batch,
				Model: openai.EmbeddingModel(c.embeddingModel),
			})
			if err != nil {
				return fmt.Errorf("failed to generate embeddings: %w", err)
			}
			if len(resp.Data) != len(batch) {
				return fmt.Errorf("embedding count mismatch: got %d want %d", len(resp.Data), len(batch))
			}

			out = make([][]float32, len(resp.Data))
			for _, data := range resp.Data {
				if data.Index < 0 || data.Index >= len(out) {
					return fmt.Errorf("embedding index %d out of range", data.Index)
				}
				out[data.Index] = data.Embedding
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		embeddings = append(embeddings, out...)
	}

	logger.Debug("Embeddings generated", zap.Int("count", len(embeddings)))
	return embeddings, nil
}

// Transcribe runs speech-to-text on a local audio or video file and returns
// timed segments.
func (c *Client) Transcribe(ctx context.Context, path string) ([]Segment, error) {
	var segments []Segment

	err := c.call(ctx, c.transcribeTimeout, func(ctx context.Context) error {
		resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    c.transcriptionModel,
			FilePath: path,
			Format:   openai.AudioResponseFormatVerboseJSON,
		})
		if err != nil {
			return fmt.Errorf("failed to transcribe %s: %w", path, err)
		}

		segments = segments[:0]
		for _, s := range resp.Segments {
			text := strings.TrimSpace(s.Text)
			if text == "" {
				continue
			}
			segments = append(segments, Segment{Start: s.Start, End: s.End, Text: text})
		}
		if len(segments) == 0 && strings.TrimSpace(resp.Text) != "" {
			segments = append(segments, Segment{Start: 0, End: resp.Duration, Text: strings.TrimSpace(resp.Text)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Transcription completed", zap.String("path", path), zap.Int("segments", len(segments)))
	return segments, nil
}

// Ping lists models to check credentials and reachability.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.client.ListModels(ctx)
	return err
}
