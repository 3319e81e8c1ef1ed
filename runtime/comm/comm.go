// Package comm implements the Communication Memory (C6): typed messages
// between workers, a latest-per-worker context record, dependency-output
// lookup, and derived next-action suggestions (spec §4.6).
package comm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"goa.design/conductor/runtime/agentset"
)

// MessageType classifies an AgentMessage (spec §4.6).
type MessageType string

const (
	MessageContext MessageType = "context"
	MessageError   MessageType = "error"
	MessageResult  MessageType = "result"
	MessageRequest MessageType = "request"
	MessageAdvice  MessageType = "advice"
)

// ExecutionState is the lifecycle value carried by an AgentContext record.
type ExecutionState string

const (
	StateStarting   ExecutionState = "starting"
	StateInProgress ExecutionState = "in_progress"
	StateCompleted  ExecutionState = "completed"
	StateFailed     ExecutionState = "failed"
)

type (
	// AgentMessage is one append-only entry in the communication log.
	AgentMessage struct {
		ID        string
		From      agentset.Ident
		To        agentset.Ident
		Type      MessageType
		Content   string
		Metadata  map[string]any
		Timestamp time.Time

		// read marks whether GetMessagesForAgent has ever returned this
		// entry or SuggestNextActions has already surfaced it; it is how
		// SuggestNextActions finds "unread" error and context messages
		// (spec §4.6).
		read bool
	}

	// AgentContext is the latest-per-worker status record (spec §4.6).
	AgentContext struct {
		AgentName      agentset.Ident
		CurrentTask    string
		ExecutionState ExecutionState
		RelevantInfo   string
		Dependencies   []agentset.Ident
		Outputs        map[string]any
		Timestamp      time.Time
	}

	// Mirror receives a copy of every context update and message sent,
	// mimicking the vector-store mirroring the spec requires of both
	// operations. A nil Mirror is a legitimate no-op default.
	Mirror interface {
		MirrorContext(ctx context.Context, c AgentContext)
		MirrorMessage(ctx context.Context, m AgentMessage)
	}

	// Store holds the latest AgentContext per worker plus the append-only
	// message log, and answers the Communication Memory operations (spec
	// §4.6). It is safe for concurrent use.
	Store struct {
		mu sync.Mutex

		contexts     map[agentset.Ident]AgentContext
		messages     []AgentMessage
		dependencies map[agentset.Ident][]agentset.Ident
		mirror       Mirror
	}
)

// New builds a Store. dependencies is the agentDependencies map injected at
// driver startup, derived from the chosen chain configuration (spec §4.6).
// A nil mirror disables vector-store mirroring.
func New(dependencies map[agentset.Ident][]agentset.Ident, mirror Mirror) *Store {
	return &Store{
		contexts:     make(map[agentset.Ident]AgentContext),
		dependencies: dependencies,
		mirror:       mirror,
	}
}

// UpdateAgentContext overwrites the context record for name and mirrors it
// to the vector store.
func (s *Store) UpdateAgentContext(
	ctx context.Context,
	name agentset.Ident,
	task string,
	state ExecutionState,
	relevantInfo string,
	dependencies []agentset.Ident,
	outputs map[string]any,
) {
	record := AgentContext{
		AgentName:      name,
		CurrentTask:    task,
		ExecutionState: state,
		RelevantInfo:   relevantInfo,
		Dependencies:   append([]agentset.Ident(nil), dependencies...),
		Outputs:        outputs,
		Timestamp:      time.Now(),
	}

	s.mu.Lock()
	s.contexts[name] = record
	s.mu.Unlock()

	if s.mirror != nil {
		s.mirror.MirrorContext(ctx, record)
	}
}

// SendMessage appends a message and mirrors it to the vector store,
// returning the generated message id.
func (s *Store) SendMessage(
	ctx context.Context,
	from, to agentset.Ident,
	typ MessageType,
	content string,
	metadata map[string]any,
) string {
	msg := AgentMessage{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Type:      typ,
		Content:   content,
		Metadata:  metadata,
		Timestamp: time.Now(),
	}

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	if s.mirror != nil {
		s.mirror.MirrorMessage(ctx, msg)
	}
	return msg.ID
}

// GetMessagesForAgent filters the log to messages addressed to to, optionally
// narrowed by type and sender, sorts descending by timestamp, and truncates
// to limit (0 means unlimited). Returned entries are marked read, which
// affects SuggestNextActions.
func (s *Store) GetMessagesForAgent(to agentset.Ident, typ *MessageType, from *agentset.Ident, limit int) []AgentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []int
	for i, m := range s.messages {
		if m.To != to {
			continue
		}
		if typ != nil && m.Type != *typ {
			continue
		}
		if from != nil && m.From != *from {
			continue
		}
		matched = append(matched, i)
	}
	sort.Slice(matched, func(a, b int) bool {
		return s.messages[matched[a]].Timestamp.After(s.messages[matched[b]].Timestamp)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]AgentMessage, 0, len(matched))
	for _, i := range matched {
		s.messages[i].read = true
		out = append(out, s.messages[i])
	}
	return out
}

// GetDependencyOutputs returns, for each upstream worker declared in
// agentDependencies[name], that worker's last recorded context outputs (if
// any).
func (s *Store) GetDependencyOutputs(name agentset.Ident) map[agentset.Ident]map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[agentset.Ident]map[string]any)
	for _, upstream := range s.dependencies[name] {
		if ctx, ok := s.contexts[upstream]; ok && ctx.Outputs != nil {
			out[upstream] = ctx.Outputs
		}
	}
	return out
}

// SuggestNextActions returns one-line suggestions derived from incomplete
// dependencies, unread error messages, and unread context messages, in that
// order, defaulting to ["continue current task"] when nothing applies (spec
// §4.6).
func (s *Store) SuggestNextActions(name agentset.Ident) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var suggestions []string
	for _, upstream := range s.dependencies[name] {
		ctx, ok := s.contexts[upstream]
		if !ok || ctx.ExecutionState != StateCompleted {
			suggestions = append(suggestions, fmt.Sprintf("wait for %s to complete", upstream))
		}
	}

	for _, typ := range []MessageType{MessageError, MessageContext} {
		for i, m := range s.messages {
			if m.To != name || m.read || m.Type != typ {
				continue
			}
			switch typ {
			case MessageError:
				suggestions = append(suggestions, fmt.Sprintf("address error reported by %s: %s", m.From, m.Content))
			case MessageContext:
				suggestions = append(suggestions, fmt.Sprintf("review context shared by %s", m.From))
			}
			s.messages[i].read = true
		}
	}

	if len(suggestions) == 0 {
		return []string{"continue current task"}
	}
	return suggestions
}

// Context returns the last recorded context for name, if any.
func (s *Store) Context(name agentset.Ident) (AgentContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[name]
	return c, ok
}
