package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"risi/internal/llm"
)

var (
	ErrMalformedResponse = errors.New("malformed router response")
	ErrUnrecognizedType  = errors.New("unrecognized response type")
)

// Decision is the router's classification of an utterance. The concrete
// types are InstantResponse, ToolInvocation and AdvancedReasoning.
type Decision interface {
	decision()
}

type InstantResponse struct {
	Text string
}

type ToolInvocation struct {
	Text        string
	ToolName    string
	ToolArgs    map[string]any
	Instruction string
}

type AdvancedReasoning struct {
	Text  string
	Query string
}

func (InstantResponse) decision()   {}
func (ToolInvocation) decision()    {}
func (AdvancedReasoning) decision() {}

type rawDecision struct {
	Type         string         `json:"type"`
	ResponseText string         `json:"response_text"`
	ToolName     string         `json:"tool_name"`
	ToolArgs     map[string]any `json:"tool_args"`
	Instruction  string         `json:"instruction"`
	UserRequest  string         `json:"user_request"`
	Query        string         `json:"query"`
}

// ParseDecision decodes the router model's JSON reply. Invalid JSON yields
// ErrMalformedResponse; a missing or unknown type yields ErrUnrecognizedType.
func ParseDecision(raw string) (Decision, error) {
	var r rawDecision
	if err := json.Unmarshal([]byte(llm.StripFences(raw)), &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	switch r.Type {
	case "instant_response":
		// the answer is the text itself; delegating types may skip the ack
		if strings.TrimSpace(r.ResponseText) == "" {
			return nil, fmt.Errorf("%w: instant_response without response_text", ErrMalformedResponse)
		}
		return InstantResponse{Text: r.ResponseText}, nil
	case "tool_invocation":
		instr := r.Instruction
		if instr == "" {
			instr = r.UserRequest
		}
		return ToolInvocation{
			Text:        r.ResponseText,
			ToolName:    r.ToolName,
			ToolArgs:    r.ToolArgs,
			Instruction: instr,
		}, nil
	case "advanced_reasoning":
		q := r.Query
		if q == "" {
			q = r.Instruction
		}
		return AdvancedReasoning{Text: r.ResponseText, Query: q}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnrecognizedType, r.Type)
	}
}

// TaskInstruction picks what the task agent is asked to do: an explicit
// tool call first, then the router's instruction, then the utterance.
func (t ToolInvocation) TaskInstruction(utterance string) string {
	if t.ToolName != "" && t.ToolArgs != nil {
		args, err := json.Marshal(t.ToolArgs)
		if err == nil {
			return fmt.Sprintf("Call the tool %s with arguments %s and report the outcome.", t.ToolName, args)
		}
	}
	if t.Instruction != "" {
		return t.Instruction
	}
	return utterance
}

// ReasoningQuery is the explicit query when the router gave one, else the
// utterance.
func (a AdvancedReasoning) ReasoningQuery(utterance string) string {
	if a.Query != "" {
		return a.Query
	}
	return utterance
}
