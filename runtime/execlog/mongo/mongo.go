// Package mongo is the MongoDB-backed Execution Log Manager, storing
// records as flat documents and approximating vector similarity search with
// a text-index query plus the same token-overlap scorer the in-memory
// backend uses, so the two backends are behaviorally identical.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"goa.design/conductor/runtime/agentset"
	"goa.design/conductor/runtime/execlog"
	"goa.design/conductor/runtime/telemetry"
)

type (
	// Options configures the Mongo-backed Store.
	Options struct {
		Client     *mongodriver.Client
		Database   string
		Collection string
		Timeout    time.Duration
		Logger     telemetry.Logger
	}

	// Store implements execlog.Store by delegating to a MongoDB
	// collection.
	Store struct {
		coll    *mongodriver.Collection
		timeout time.Duration
		logger  telemetry.Logger
	}

	entryDocument struct {
		ID        bson.ObjectID  `bson:"_id,omitempty"`
		RunID     string         `bson:"run_id"`
		Agent     string         `bson:"agent"`
		Task      string         `bson:"task"`
		Content   string         `bson:"content"`
		Success   bool           `bson:"success"`
		Duration  time.Duration  `bson:"duration"`
		TaskType  string         `bson:"task_type"`
		Metadata  map[string]any `bson:"metadata,omitempty"`
		Timestamp time.Time      `bson:"timestamp"`
	}
)

const (
	defaultCollection = "execution_log"
	defaultTimeout    = 5 * time.Second
)

// New builds a Mongo-backed Store, creating a text index on content if it
// does not already exist.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}

	coll := opts.Client.Database(opts.Database).Collection(collName)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	index := mongodriver.IndexModel{Keys: bson.D{{Key: "content", Value: "text"}}}
	if _, err := coll.Indexes().CreateOne(ctx, index); err != nil {
		return nil, err
	}

	return &Store{coll: coll, timeout: timeout, logger: logger}, nil
}

// RecordExecution inserts entry as a flat document. Errors are logged and
// swallowed per spec §4.7's failure policy.
func (s *Store) RecordExecution(ctx context.Context, entry execlog.Entry) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc := toDocument(entry)
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		s.logger.Error(ctx, "execlog: record execution failed", "error", err)
	}
}

// GetSimilarExecutions runs a $text query against content, applies the
// Agent/SuccessOnly post-filters, scores matches with the shared
// token-overlap metric, sorts by descending similarity, and returns up to
// q.TopK. Query errors are logged
// and swallowed, returning an empty slice.
func (s *Store) GetSimilarExecutions(ctx context.Context, queryText string, q execlog.Query) []execlog.ScoredEntry {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	filter := bson.M{"$text": bson.M{"$search": queryText}}
	if q.Agent != nil {
		filter["agent"] = string(*q.Agent)
	}
	if q.SuccessOnly {
		filter["success"] = true
	}

	docs, err := s.find(ctx, filter)
	if err != nil {
		s.logger.Error(ctx, "execlog: similarity query failed", "error", err)
		return nil
	}

	scored := make([]execlog.ScoredEntry, 0, len(docs))
	for _, d := range docs {
		e := fromDocument(d)
		distance := execlog.TokenOverlapDistance(queryText, e.Content)
		scored = append(scored, execlog.ScoredEntry{Entry: e, Similarity: execlog.SimilarityFromDistance(distance)})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Similarity > scored[j].Similarity })
	topK := q.TopK
	if topK <= 0 || topK > len(scored) {
		topK = len(scored)
	}
	return scored[:topK]
}

// GetErrorSolutions issues the four fixed phrasings against description,
// merges the results, de-duplicates by (agent, task, timestamp), and sorts
// the merged list by descending similarity before truncating to topK.
func (s *Store) GetErrorSolutions(ctx context.Context, description string, topK int) []execlog.ScoredEntry {
	seen := make(map[string]struct{})
	var merged []execlog.ScoredEntry
	for _, phrasing := range execlog.ErrorSolutionPhrasings(description) {
		for _, scored := range s.GetSimilarExecutions(ctx, phrasing, execlog.Query{}) {
			key := identityKey(scored.Entry)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, scored)
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Similarity > merged[j].Similarity })
	if topK > 0 && len(merged) > topK {
		merged = merged[:topK]
	}
	return merged
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]entryDocument, error) {
	cur, err := s.coll.Find(ctx, filter, options.Find().SetLimit(500))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []entryDocument
	for cur.Next(ctx) {
		var d entryDocument
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, cur.Err()
}

func toDocument(e execlog.Entry) entryDocument {
	return entryDocument{
		RunID:     e.RunID,
		Agent:     string(e.Agent),
		Task:      e.Task,
		Content:   e.Content,
		Success:   e.Success,
		Duration:  e.Duration,
		TaskType:  e.TaskType,
		Metadata:  stringifyMetadata(e.Metadata),
		Timestamp: e.Timestamp.UTC(),
	}
}

func fromDocument(d entryDocument) execlog.Entry {
	return execlog.Entry{
		RunID:     d.RunID,
		Agent:     agentset.Ident(d.Agent),
		Task:      d.Task,
		Content:   d.Content,
		Success:   d.Success,
		Duration:  d.Duration,
		TaskType:  d.TaskType,
		Metadata:  d.Metadata,
		Timestamp: d.Timestamp,
	}
}

func identityKey(e execlog.Entry) string {
	return string(e.Agent) + "|" + e.Task + "|" + e.Timestamp.String()
}

// stringifyMetadata coerces non-scalar values so the document stores only
// scalars, matching spec §6.3's "metadata values must be scalar" contract.
func stringifyMetadata(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch v.(type) {
		case string, bool, int, int32, int64, float32, float64:
			out[k] = v
		default:
			out[k] = toScalarString(v)
		}
	}
	return out
}

func toScalarString(v any) string {
	type stringer interface{ String() string }
	if s, ok := v.(stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", v)
}
