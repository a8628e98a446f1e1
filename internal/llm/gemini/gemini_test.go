package gemini

import (
	"errors"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/genai"

	"risi/internal/llm"
)

func TestConvRequest_GroupsRolesAndTools(t *testing.T) {
	req := llm.Request{
		System: "be brief",
		JSON:   true,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Text: "list files"},
			{Role: llm.RoleModel, ToolCall: &llm.ToolCall{ID: "c1", Name: "run_bash", Args: map[string]any{"command": "ls"}}},
			{Role: llm.RoleUser, ToolResult: &llm.ToolResult{ID: "c1", Name: "run_bash", Response: map[string]any{"stdout": "a"}}},
			{Role: llm.RoleUser, Text: "and now?"},
		},
		Tools: []llm.ToolSpec{{
			Name:        "run_bash",
			Description: "run a command",
			Parameters: &jsonschema.Schema{
				Type:       "object",
				Properties: map[string]*jsonschema.Schema{"command": {Type: "string"}},
				Required:   []string{"command"},
			},
		}},
	}

	cfg, contents, err := convRequest(req)
	if err != nil {
		t.Fatalf("convRequest: %v", err)
	}

	if cfg.ResponseMIMEType != "application/json" {
		t.Errorf("mime = %q", cfg.ResponseMIMEType)
	}
	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "be brief" {
		t.Errorf("system instruction not set")
	}

	if len(contents) != 3 {
		t.Fatalf("got %d contents, want 3", len(contents))
	}
	if contents[1].Role != "model" || contents[1].Parts[0].FunctionCall == nil {
		t.Fatalf("second content is not the model call: %+v", contents[1])
	}
	if contents[2].Role != "user" || len(contents[2].Parts) != 2 {
		t.Fatalf("tool result and follow-up should share a user content: %+v", contents[2])
	}
	if contents[2].Parts[0].FunctionResponse == nil || contents[2].Parts[0].FunctionResponse.Name != "run_bash" {
		t.Fatalf("missing function response")
	}

	decl := cfg.Tools[0].FunctionDeclarations[0]
	if decl.Parameters.Type != genai.TypeObject || decl.Parameters.Properties["command"].Type != genai.TypeString {
		t.Fatalf("schema not converted: %+v", decl.Parameters)
	}
}

func TestConvRequest_Empty(t *testing.T) {
	if _, _, err := convRequest(llm.Request{System: "x"}); err == nil {
		t.Fatal("expected error for request without messages")
	}
}

func TestConvResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Role: "model", Parts: []*genai.Part{
			{FunctionCall: &genai.FunctionCall{Name: "system_info"}},
		}},
	}}}

	out, err := convResponse(resp)
	if err != nil {
		t.Fatalf("convResponse: %v", err)
	}
	if out.ToolCall == nil || out.ToolCall.Name != "system_info" {
		t.Fatalf("tool call = %+v", out.ToolCall)
	}
	if out.ToolCall.ID == "" || out.ToolCall.Args == nil {
		t.Fatalf("missing generated id or args: %+v", out.ToolCall)
	}

	text := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{{Text: "hel"}, {Text: "lo"}}},
	}}}
	if out, _ := convResponse(text); out.Text != "hello" {
		t.Fatalf("text = %q, want hello", out.Text)
	}

	if _, err := convResponse(&genai.GenerateContentResponse{}); !errors.Is(err, llm.ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}

	// blocked or blank candidates are empty replies for the agents to handle
	for name, resp := range map[string]*genai.GenerateContentResponse{
		"no content": {Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}},
		"no parts":   {Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model"}}}},
		"blank text": {Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: ""}}}}}},
	} {
		out, err := convResponse(resp)
		if err != nil {
			t.Fatalf("%s: err = %v, want nil", name, err)
		}
		if out.Text != "" || out.ToolCall != nil {
			t.Fatalf("%s: out = %+v, want empty", name, out)
		}
	}
}
