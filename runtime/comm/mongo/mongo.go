// Package mongo is the durable MongoDB-backed alternative to comm.Store,
// mirroring the teacher's memory/memory-mongo split so Communication Memory
// can survive process restarts (spec §4.6, §6.3 "comm gain a durable backend
// option"). It persists the same two record shapes the in-memory Store keeps
// (latest-per-worker context, append-only message log) and reproduces its
// filter/sort/suggestion semantics so the two backends are interchangeable.
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
	"goa.design/conductor/runtime/comm"
	"goa.design/conductor/runtime/telemetry"
)

type (
	// Options configures the Mongo-backed Store.
	Options struct {
		Client       *mongodriver.Client
		Database     string
		Collection   string // context collection; message collection gets "_messages" appended
		Timeout      time.Duration
		Logger       telemetry.Logger
		Mirror       comm.Mirror
		Dependencies map[agentset.Ident][]agentset.Ident
	}

	// Store implements the same method set as comm.Store, backed by two
	// MongoDB collections instead of in-process maps.
	Store struct {
		contexts     *mongodriver.Collection
		messages     *mongodriver.Collection
		timeout      time.Duration
		logger       telemetry.Logger
		mirror       comm.Mirror
		dependencies map[agentset.Ident][]agentset.Ident
	}

	contextDocument struct {
		ID             string         `bson:"_id"`
		CurrentTask    string         `bson:"current_task"`
		ExecutionState string         `bson:"execution_state"`
		RelevantInfo   string         `bson:"relevant_info"`
		Dependencies   []string       `bson:"dependencies,omitempty"`
		Outputs        map[string]any `bson:"outputs,omitempty"`
		Timestamp      time.Time      `bson:"timestamp"`
	}

	messageDocument struct {
		ID        bson.ObjectID  `bson:"_id,omitempty"`
		MessageID string         `bson:"message_id"`
		From      string         `bson:"from"`
		To        string         `bson:"to"`
		Type      string         `bson:"type"`
		Content   string         `bson:"content"`
		Metadata  map[string]any `bson:"metadata,omitempty"`
		Timestamp time.Time      `bson:"timestamp"`
		Read      bool           `bson:"read"`
	}
)

const (
	defaultCollection = "comm_contexts"
	defaultTimeout    = 5 * time.Second
)

// New builds a durable Store, creating the "to"+"timestamp" compound index
// GetMessagesForAgent relies on if it does not already exist.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("comm/mongo: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("comm/mongo: database name is required")
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

	db := opts.Client.Database(opts.Database)
	contexts := db.Collection(collName)
	messages := db.Collection(collName + "_messages")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	index := mongodriver.IndexModel{Keys: bson.D{{Key: "to", Value: 1}, {Key: "timestamp", Value: -1}}}
	if _, err := messages.Indexes().CreateOne(ctx, index); err != nil {
		return nil, err
	}

	return &Store{
		contexts: contexts, messages: messages, timeout: timeout, logger: logger,
		mirror: opts.Mirror, dependencies: opts.Dependencies,
	}, nil
}

// UpdateAgentContext upserts the context record for name, keyed by worker
// identity so each worker has at most one durable row (spec §4.6).
func (s *Store) UpdateAgentContext(
	ctx context.Context,
	name agentset.Ident,
	task string,
	state comm.ExecutionState,
	relevantInfo string,
	dependencies []agentset.Ident,
	outputs map[string]any,
) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	deps := make([]string, len(dependencies))
	for i, d := range dependencies {
		deps[i] = string(d)
	}
	doc := contextDocument{
		ID: string(name), CurrentTask: task, ExecutionState: string(state),
		RelevantInfo: relevantInfo, Dependencies: deps, Outputs: outputs, Timestamp: time.Now(),
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.contexts.ReplaceOne(cctx, bson.M{"_id": doc.ID}, doc, opts); err != nil {
		s.logger.Error(ctx, "comm/mongo: update context failed", "error", err)
		return
	}
	if s.mirror != nil {
		s.mirror.MirrorContext(ctx, comm.AgentContext{
			AgentName: name, CurrentTask: task, ExecutionState: state,
			RelevantInfo: relevantInfo, Dependencies: dependencies, Outputs: outputs, Timestamp: doc.Timestamp,
		})
	}
}

// SendMessage inserts a new message document and returns its generated id.
func (s *Store) SendMessage(
	ctx context.Context,
	from, to agentset.Ident,
	typ comm.MessageType,
	content string,
	metadata map[string]any,
) string {
	mctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc := messageDocument{
		MessageID: bson.NewObjectID().Hex(), From: string(from), To: string(to),
		Type: string(typ), Content: content, Metadata: metadata, Timestamp: time.Now(),
	}
	if _, err := s.messages.InsertOne(mctx, doc); err != nil {
		s.logger.Error(ctx, "comm/mongo: send message failed", "error", err)
		return doc.MessageID
	}
	if s.mirror != nil {
		s.mirror.MirrorMessage(ctx, comm.AgentMessage{
			ID: doc.MessageID, From: from, To: to, Type: typ, Content: content,
			Metadata: metadata, Timestamp: doc.Timestamp,
		})
	}
	return doc.MessageID
}

// GetMessagesForAgent mirrors the in-memory Store's filter/sort/truncate
// contract and marks returned documents read.
func (s *Store) GetMessagesForAgent(to agentset.Ident, typ *comm.MessageType, from *agentset.Ident, limit int) []comm.AgentMessage {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	filter := bson.M{"to": string(to)}
	if typ != nil {
		filter["type"] = string(*typ)
	}
	if from != nil {
		filter["from"] = string(*from)
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}
	cur, err := s.messages.Find(ctx, filter, findOpts)
	if err != nil {
		s.logger.Error(ctx, "comm/mongo: get messages failed", "error", err)
		return nil
	}
	defer cur.Close(ctx)

	var docs []messageDocument
	if err := cur.All(ctx, &docs); err != nil {
		s.logger.Error(ctx, "comm/mongo: decode messages failed", "error", err)
		return nil
	}

	out := make([]comm.AgentMessage, 0, len(docs))
	var ids []string
	for _, d := range docs {
		out = append(out, comm.AgentMessage{
			ID: d.MessageID, From: agentset.Ident(d.From), To: agentset.Ident(d.To),
			Type: comm.MessageType(d.Type), Content: d.Content, Metadata: d.Metadata, Timestamp: d.Timestamp,
		})
		if !d.Read {
			ids = append(ids, d.MessageID)
		}
	}
	if len(ids) > 0 {
		if _, err := s.messages.UpdateMany(ctx, bson.M{"message_id": bson.M{"$in": ids}}, bson.M{"$set": bson.M{"read": true}}); err != nil {
			s.logger.Error(ctx, "comm/mongo: mark read failed", "error", err)
		}
	}
	return out
}

// GetDependencyOutputs loads the latest context document for each of name's
// declared upstream dependencies and returns their outputs.
func (s *Store) GetDependencyOutputs(name agentset.Ident) map[agentset.Ident]map[string]any {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	out := make(map[agentset.Ident]map[string]any)
	for _, upstream := range s.dependencies[name] {
		var doc contextDocument
		err := s.contexts.FindOne(ctx, bson.M{"_id": string(upstream)}).Decode(&doc)
		if err != nil {
			continue
		}
		if doc.Outputs != nil {
			out[upstream] = doc.Outputs
		}
	}
	return out
}

// SuggestNextActions reproduces the in-memory Store's ordering: incomplete
// dependencies first, then unread error messages, then unread context
// messages, defaulting to ["continue current task"] (spec §4.6).
func (s *Store) SuggestNextActions(name agentset.Ident) []string {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var suggestions []string
	for _, upstream := range s.dependencies[name] {
		var doc contextDocument
		err := s.contexts.FindOne(ctx, bson.M{"_id": string(upstream)}).Decode(&doc)
		if err != nil || doc.ExecutionState != string(comm.StateCompleted) {
			suggestions = append(suggestions, fmt.Sprintf("wait for %s to complete", upstream))
		}
	}

	cur, err := s.messages.Find(ctx, bson.M{"to": string(name), "read": false},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err == nil {
		defer cur.Close(ctx)
		var docs []messageDocument
		if decodeErr := cur.All(ctx, &docs); decodeErr == nil {
			sort.SliceStable(docs, func(i, j int) bool { return docs[i].Timestamp.Before(docs[j].Timestamp) })
			var readIDs []string
			for _, typ := range []comm.MessageType{comm.MessageError, comm.MessageContext} {
				for _, d := range docs {
					if comm.MessageType(d.Type) != typ {
						continue
					}
					switch typ {
					case comm.MessageError:
						suggestions = append(suggestions, fmt.Sprintf("address error reported by %s: %s", d.From, d.Content))
					case comm.MessageContext:
						suggestions = append(suggestions, fmt.Sprintf("review context shared by %s", d.From))
					}
					readIDs = append(readIDs, d.MessageID)
				}
			}
			if len(readIDs) > 0 {
				_, _ = s.messages.UpdateMany(ctx, bson.M{"message_id": bson.M{"$in": readIDs}}, bson.M{"$set": bson.M{"read": true}})
			}
		}
	}

	if len(suggestions) == 0 {
		return []string{"continue current task"}
	}
	return suggestions
}

// Context returns the last recorded context for name, if any.
func (s *Store) Context(name agentset.Ident) (comm.AgentContext, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var doc contextDocument
	if err := s.contexts.FindOne(ctx, bson.M{"_id": string(name)}).Decode(&doc); err != nil {
		return comm.AgentContext{}, false
	}
	deps := make([]agentset.Ident, len(doc.Dependencies))
	for i, d := range doc.Dependencies {
		deps[i] = agentset.Ident(d)
	}
	return comm.AgentContext{
		AgentName: name, CurrentTask: doc.CurrentTask, ExecutionState: comm.ExecutionState(doc.ExecutionState),
		RelevantInfo: doc.RelevantInfo, Dependencies: deps, Outputs: doc.Outputs, Timestamp: doc.Timestamp,
	}, true
}
