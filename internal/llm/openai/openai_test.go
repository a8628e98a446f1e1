package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/openai/openai-go/v3/option"

	"risi/internal/llm"
)

// chatServer answers every completion request with reply and records the
// last request body.
func chatServer(t *testing.T, reply string, last *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, last); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestComplete_ToolCall(t *testing.T) {
	reply := `{
		"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-5-mini",
		"choices": [{
			"index": 0, "finish_reason": "tool_calls",
			"message": {"role": "assistant", "content": null, "tool_calls": [{
				"id": "call_1", "type": "function",
				"function": {"name": "run_bash", "arguments": "{\"command\": \"ls -la\""}
			}]}
		}]
	}`
	var got map[string]any
	srv := chatServer(t, reply, &got)

	p, err := New("test-key", "gpt-5-mini", nil, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := p.Complete(context.Background(), llm.Request{
		System:   "sys",
		Messages: []llm.Message{{Role: llm.RoleUser, Text: "list"}},
		Tools: []llm.ToolSpec{{
			Name:       "run_bash",
			Parameters: &jsonschema.Schema{Type: "object", Properties: map[string]*jsonschema.Schema{"command": {Type: "string"}}},
		}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	// the truncated arguments are repaired
	if resp.ToolCall == nil || resp.ToolCall.ID != "call_1" || resp.ToolCall.Args["command"] != "ls -la" {
		t.Fatalf("tool call = %+v", resp.ToolCall)
	}

	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("sent %d messages, want 2", len(msgs))
	}
	tools, _ := got["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("sent %d tools, want 1", len(tools))
	}
}

func TestComplete_JSONText(t *testing.T) {
	reply := `{
		"id": "chatcmpl-2", "object": "chat.completion", "created": 1, "model": "gpt-5-mini",
		"choices": [{"index": 0, "finish_reason": "stop",
			"message": {"role": "assistant", "content": "{\"type\":\"instant_response\"}"}}]
	}`
	var got map[string]any
	srv := chatServer(t, reply, &got)

	p, _ := New("k", "", nil, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	resp, err := p.Complete(context.Background(), llm.Request{
		JSON: true,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Text: "q"},
			{Role: llm.RoleModel, ToolCall: &llm.ToolCall{ID: "c", Name: "system_info", Args: map[string]any{}}},
			{Role: llm.RoleUser, ToolResult: &llm.ToolResult{ID: "c", Name: "system_info", Response: map[string]any{"os": "linux"}}},
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != `{"type":"instant_response"}` {
		t.Fatalf("text = %q", resp.Text)
	}

	rf, _ := got["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Fatalf("response_format = %v", got["response_format"])
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("sent %d messages, want 3", len(msgs))
	}
	if tool, _ := msgs[2].(map[string]any); tool["role"] != "tool" || tool["tool_call_id"] != "c" {
		t.Fatalf("tool result message = %v", msgs[2])
	}
}

func TestComplete_EmptyContent(t *testing.T) {
	reply := `{
		"id": "chatcmpl-3", "object": "chat.completion", "created": 1, "model": "gpt-5-mini",
		"choices": [{"index": 0, "finish_reason": "stop",
			"message": {"role": "assistant", "content": ""}}]
	}`
	var got map[string]any
	srv := chatServer(t, reply, &got)

	p, _ := New("k", "", nil, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	resp, err := p.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Text: "q"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v, want an empty reply without error", err)
	}
	if resp.Text != "" || resp.ToolCall != nil {
		t.Fatalf("resp = %+v, want empty", resp)
	}
}

func TestComplete_NoChoices(t *testing.T) {
	reply := `{"id": "chatcmpl-4", "object": "chat.completion", "created": 1, "model": "gpt-5-mini", "choices": []}`
	var got map[string]any
	srv := chatServer(t, reply, &got)

	p, _ := New("k", "", nil, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	_, err := p.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Text: "q"}},
	})
	if !errors.Is(err, llm.ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestNew_RequiresKey(t *testing.T) {
	if _, err := New("", "", nil); err == nil {
		t.Fatal("expected error without api key")
	}
}
