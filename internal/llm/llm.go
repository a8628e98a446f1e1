// Package llm is the vendor-neutral surface the agents talk to. Providers
// translate Requests into their own wire format and back.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ToolCall is a model's request to run a named tool.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

type ToolResult struct {
	ID       string
	Name     string
	Response map[string]any
}

// Message carries exactly one of Text, ToolCall or ToolResult.
type Message struct {
	Role       Role
	Text       string
	ToolCall   *ToolCall
	ToolResult *ToolResult
}

type ToolSpec struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

type Request struct {
	System   string
	Messages []Message
	Tools    []ToolSpec
	// JSON asks the provider for a bare JSON object reply.
	JSON bool
}

// Response holds either the model's text or the first tool call it made.
type Response struct {
	Text     string
	ToolCall *ToolCall
}

type Provider interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) (Response, error)

func (f ProviderFunc) Complete(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// ErrEmptyResponse means the vendor sent no candidate at all. A candidate
// with neither text nor a tool call is a valid, empty Response.
var ErrEmptyResponse = errors.New("empty model response")

// DecodeArgs parses tool-call arguments, repairing the truncated or sloppy
// JSON models sometimes emit.
func DecodeArgs(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}

	args := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		return args, nil
	}

	fixed, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, fmt.Errorf("repair tool args: %w", err)
	}
	args = map[string]any{}
	if err := json.Unmarshal([]byte(fixed), &args); err != nil {
		return nil, fmt.Errorf("decode tool args: %w", err)
	}
	return args, nil
}

// StripFences removes a markdown code fence around a JSON reply.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
