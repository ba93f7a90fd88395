package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/instant-tutor/backend/internal/kg/builder"
	"github.com/instant-tutor/backend/pkg/circuitbreaker"
	"github.com/instant-tutor/backend/pkg/logger"
	"github.com/instant-tutor/backend/pkg/retry"
)

const opTimeout = 10 * time.Second

// Client stores the course topic graph: (Course)-[:COVERS]->(Topic) and
// (Topic)-[:RELATED {course_id}]-(Topic) for topics taught together.
type Client struct {
	driver      neo4j.DriverWithContext
	database    string
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewClient(ctx context.Context, uri, username, password, database string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		uri,
		neo4j.BasicAuth(username, password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	cb := circuitbreaker.New("neo4j", circuitbreaker.Config{
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          20 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	if database == "" {
		database = "neo4j"
	}

	logger.Info("Neo4j client initialized", zap.String("uri", uri), zap.String("database", database))

	return &Client{
		driver:      driver,
		database:    database,
		cb:          cb,
		retryConfig: retryConfig,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.driver.VerifyConnectivity(ctx)
}

func (c *Client) executeWithRetry(ctx context.Context, operation func(ctx context.Context, session neo4j.SessionWithContext) error) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return c.cb.Execute(func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
			defer session.Close(ctx)
			return operation(ctx, session)
		})
	})
}

// WriteCourseGraph merges the course node, its topics and the topic
// co-occurrence edges. Repeating the call with the same graph is a no-op.
func (c *Client) WriteCourseGraph(ctx context.Context, courseID string, graph builder.Graph) error {
	if len(graph.Topics) == 0 {
		return nil
	}

	topics := make([]any, 0, len(graph.Topics))
	for _, t := range graph.Topics {
		topics = append(topics, map[string]any{"name": t.Name, "chunks": t.Chunks})
	}

	pairs := make([]any, 0, len(graph.Edges))
	for _, e := range graph.Edges {
		pairs = append(pairs, map[string]any{"a": e.From, "b": e.To, "weight": e.Weight})
	}

	err := c.executeWithRetry(ctx, func(ctx context.Context, session neo4j.SessionWithContext) error {
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			if _, err := tx.Run(ctx, `
				MERGE (c:Course {id: $course_id})
				SET c.updated_at = timestamp()
				WITH c
				UNWIND $topics AS t
				MERGE (tp:Topic {name: t.name})
				MERGE (c)-[r:COVERS]->(tp)
				SET r.chunks = CASE WHEN r.chunks IS NULL OR r.chunks < t.chunks THEN t.chunks ELSE r.chunks END
			`, map[string]any{"course_id": courseID, "topics": topics}); err != nil {
				return nil, err
			}

			if len(pairs) == 0 {
				return nil, nil
			}

			_, err := tx.Run(ctx, `
				UNWIND $pairs AS p
				MATCH (a:Topic {name: p.a})
				MATCH (b:Topic {name: p.b})
				MERGE (a)-[r:RELATED {course_id: $course_id}]-(b)
				SET r.weight = CASE WHEN r.weight IS NULL OR r.weight < p.weight THEN p.weight ELSE r.weight END
			`, map[string]any{"course_id": courseID, "pairs": pairs})
			return nil, err
		})
		if err != nil {
			return fmt.Errorf("failed to write course graph: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("Course topic graph updated",
		zap.String("course_id", courseID),
		zap.Int("topics", len(topics)),
		zap.Int("relations", len(pairs)),
	)
	return nil
}

// RelatedTopics returns topics linked to topic within one course, strongest
// first.
func (c *Client) RelatedTopics(ctx context.Context, courseID, topic string, limit int) ([]string, error) {
	var related []string

	err := c.executeWithRetry(ctx, func(ctx context.Context, session neo4j.SessionWithContext) error {
		related = related[:0]

		result, err := session.Run(ctx, `
			MATCH (:Course {id: $course_id})-[:COVERS]->(t:Topic {name: $topic})-[r:RELATED {course_id: $course_id}]-(o:Topic)
			WHERE o.name <> $topic
			RETURN o.name AS name, r.weight AS weight
			ORDER BY weight DESC, name ASC
			LIMIT $limit
		`, map[string]any{"course_id": courseID, "topic": topic, "limit": limit})
		if err != nil {
			return fmt.Errorf("failed to query related topics: %w", err)
		}

		for result.Next(ctx) {
			name, _ := result.Record().Get("name")
			if s, ok := name.(string); ok && s != "" {
				related = append(related, s)
			}
		}
		if err := result.Err(); err != nil {
			return fmt.Errorf("error iterating results: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("Related topics resolved",
		zap.String("course_id", courseID),
		zap.String("topic", topic),
		zap.Int("results", len(related)),
	)
	return related, nil
}
