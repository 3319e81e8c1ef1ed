// Package selector implements the Next-Speaker Selector (C9): trivially
// returning a sole candidate, or consulting the LLM with a fixed
// five-question schema to pick among several (spec §4.9).
package selector

import (
	"context"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"goa.design/conductor/runtime/agentset"
	"goa.design/conductor/runtime/instruction"
	"goa.design/conductor/runtime/ledger"
	"goa.design/conductor/runtime/modelclient"
)

// answerSchema is the fixed five-question JSON schema the LLM prompt asks
// for (spec §4.9: "request satisfied? in loop? making progress? next
// speaker? instruction?").
const answerSchema = `{
  "type": "object",
  "required": ["request_satisfied", "in_loop", "making_progress", "next_speaker", "instruction_or_question"],
  "properties": {
    "request_satisfied": {"type": "object", "required": ["answer"], "properties": {"answer": {"type": "boolean"}}},
    "in_loop": {"type": "object", "required": ["answer"], "properties": {"answer": {"type": "boolean"}}},
    "making_progress": {"type": "object", "required": ["answer"], "properties": {"answer": {"type": "boolean"}}},
    "next_speaker": {"type": "object", "required": ["answer"], "properties": {"answer": {"type": "string"}}},
    "instruction_or_question": {"type": "object", "required": ["answer"], "properties": {"answer": {"type": "string"}}}
  }
}`

type boolAnswer struct {
	Answer bool `json:"answer"`
}

type stringAnswer struct {
	Answer string `json:"answer"`
}

// fiveQuestionAnswer is the parsed shape of the LLM's JSON reply.
type fiveQuestionAnswer struct {
	RequestSatisfied      boolAnswer   `json:"request_satisfied"`
	InLoop                boolAnswer   `json:"in_loop"`
	MakingProgress        boolAnswer   `json:"making_progress"`
	NextSpeaker           stringAnswer `json:"next_speaker"`
	InstructionOrQuestion stringAnswer `json:"instruction_or_question"`
}

// canned is the fallback instruction used on any LLM or parsing failure
// (spec §4.9).
const canned = "continue your specialty task"

// Selector picks the next worker to invoke from a candidate list.
type Selector struct {
	client  modelclient.Client
	model   string
	builder *instruction.Builder
	schema  *jsonschema.Schema
}

// New builds a Selector, compiling the fixed five-question schema once.
func New(client modelclient.Client, model string, builder *instruction.Builder) (*Selector, error) {
	var doc any
	if err := json.Unmarshal([]byte(answerSchema), &doc); err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("next-speaker.json", doc); err != nil {
		return nil, err
	}
	schema, err := c.Compile("next-speaker.json")
	if err != nil {
		return nil, err
	}
	return &Selector{client: client, model: model, builder: builder, schema: schema}, nil
}

// Pick selects a worker from candidates, generating and storing its
// instruction via the Instruction Builder (spec §4.9). candidates must be
// non-empty.
func (s *Selector) Pick(
	ctx context.Context,
	runID string,
	candidates []agentset.Ident,
	tl *ledger.TaskLedger,
	pl *ledger.ProgressLedger,
) agentset.Ident {
	if len(candidates) == 1 {
		w := candidates[0]
		s.builder.Build(ctx, runID, w, tl, pl)
		return w
	}

	answer, ok := s.askFiveQuestions(ctx, runID, candidates, tl, pl)
	if !ok {
		w := candidates[0]
		pl.SetInstruction(w, canned)
		return w
	}

	w := agentset.Ident(answer.NextSpeaker.Answer)
	if !containsCandidate(candidates, w) {
		w = candidates[0]
	}
	if answer.InstructionOrQuestion.Answer != "" {
		pl.SetInstruction(w, answer.InstructionOrQuestion.Answer)
	} else {
		s.builder.Build(ctx, runID, w, tl, pl)
	}
	return w
}

func (s *Selector) askFiveQuestions(
	ctx context.Context,
	runID string,
	candidates []agentset.Ident,
	tl *ledger.TaskLedger,
	pl *ledger.ProgressLedger,
) (fiveQuestionAnswer, bool) {
	prompt := buildPrompt(candidates, tl, pl)

	resp, err := s.client.Complete(ctx, &modelclient.Request{
		RunID: runID,
		Model: s.model,
		Messages: []modelclient.Message{
			{Role: modelclient.ConversationRoleSystem, Content: "Answer strictly as JSON matching the provided schema."},
			{Role: modelclient.ConversationRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return fiveQuestionAnswer{}, false
	}

	var answer fiveQuestionAnswer
	if err := modelclient.ExtractJSON(resp.Content, &answer); err != nil {
		return fiveQuestionAnswer{}, false
	}

	if err := s.validate(answer); err != nil {
		return fiveQuestionAnswer{}, false
	}
	return answer, true
}

func (s *Selector) validate(answer fiveQuestionAnswer) error {
	raw, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return s.schema.Validate(doc)
}

func buildPrompt(candidates []agentset.Ident, tl *ledger.TaskLedger, pl *ledger.ProgressLedger) string {
	prompt := "Task: " + tl.OriginalTask + "\n\nCandidates: "
	for i, c := range candidates {
		if i > 0 {
			prompt += ", "
		}
		prompt += string(c)
	}
	prompt += "\n\nAnswer: is the original request satisfied? are we in a loop? is progress being made? " +
		"who should speak next (must be one of the candidates)? what is their instruction or question?"
	return prompt
}

func containsCandidate(candidates []agentset.Ident, w agentset.Ident) bool {
	for _, c := range candidates {
		if c == w {
			return true
		}
	}
	return false
}
