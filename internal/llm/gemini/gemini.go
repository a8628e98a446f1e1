// Package gemini implements llm.Provider on the Gemini API.
package gemini

import (
	"context"
	"fmt"
	log "log/slog"
	"net/http"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"google.golang.org/genai"

	"risi/internal/llm"
)

const DefaultModel = "gemini-2.5-flash"

const (
	roleUser  = "user"
	roleModel = "model"
)

var _ llm.Provider = (*Provider)(nil)

type Provider struct {
	client *genai.Client
	model  string
}

// New creates a Gemini provider. httpClient may be nil.
func New(ctx context.Context, apiKey, model string, httpClient *http.Client) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	return &Provider{client: client, model: model}, nil
}

func (p *Provider) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	cfg, contents, err := convRequest(req)
	if err != nil {
		return llm.Response{}, err
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return llm.Response{}, fmt.Errorf("gemini generate: %w", err)
	}

	out, err := convResponse(resp)
	if err != nil {
		return llm.Response{}, err
	}

	log.Debug("Gemini reply", "model", p.model, "text", out.Text, "tool_call", out.ToolCall != nil)
	return out, nil
}

func convRequest(req llm.Request) (*genai.GenerateContentConfig, []*genai.Content, error) {
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(req.System)}}
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  convSchema(t.Parameters),
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	var (
		contents []*genai.Content
		last     *genai.Content
	)
	for _, msg := range req.Messages {
		role, part, err := convMessage(msg)
		if err != nil {
			return nil, nil, err
		}
		// consecutive messages of one role share a Content
		if last != nil && last.Role == role {
			last.Parts = append(last.Parts, part)
			continue
		}
		last = &genai.Content{Role: role, Parts: []*genai.Part{part}}
		contents = append(contents, last)
	}
	if len(contents) == 0 {
		return nil, nil, fmt.Errorf("gemini: no contents")
	}

	return cfg, contents, nil
}

func convMessage(msg llm.Message) (string, *genai.Part, error) {
	role := roleUser
	if msg.Role == llm.RoleModel {
		role = roleModel
	}

	switch {
	case msg.ToolCall != nil:
		return roleModel, genai.NewPartFromFunctionCall(msg.ToolCall.Name, msg.ToolCall.Args), nil
	case msg.ToolResult != nil:
		return roleUser, genai.NewPartFromFunctionResponse(msg.ToolResult.Name, msg.ToolResult.Response), nil
	case msg.Text != "":
		return role, genai.NewPartFromText(msg.Text), nil
	default:
		return "", nil, fmt.Errorf("gemini: empty %s message", msg.Role)
	}
}

func convResponse(resp *genai.GenerateContentResponse) (llm.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return llm.Response{}, llm.ErrEmptyResponse
	}
	// a candidate without content is an empty reply, not a transport
	// failure; the agents decide what an empty reply means
	cand := resp.Candidates[0]
	if cand.Content == nil {
		log.Warn("Gemini reply has no content", "finish_reason", cand.FinishReason)
		return llm.Response{}, nil
	}

	var (
		out llm.Response
		sb  strings.Builder
	)
	for _, p := range cand.Content.Parts {
		switch {
		case p.FunctionCall != nil && out.ToolCall == nil:
			id := p.FunctionCall.ID
			if id == "" {
				id = uuid.NewString()
			}
			args := p.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			out.ToolCall = &llm.ToolCall{ID: id, Name: p.FunctionCall.Name, Args: args}
		case p.Text != "":
			sb.WriteString(p.Text)
		}
	}
	out.Text = sb.String()

	if out.ToolCall == nil && out.Text == "" {
		log.Warn("Gemini reply is empty", "finish_reason", cand.FinishReason)
	}
	return out, nil
}

func convSchema(schema *jsonschema.Schema) *genai.Schema {
	if schema == nil {
		return nil
	}

	gs := &genai.Schema{
		Format:      schema.Format,
		Description: schema.Description,
		Items:       convSchema(schema.Items),
		Required:    schema.Required,
	}
	for _, v := range schema.Enum {
		gs.Enum = append(gs.Enum, fmt.Sprintf("%v", v))
	}
	if len(schema.Properties) > 0 {
		gs.Properties = make(map[string]*genai.Schema, len(schema.Properties))
		for k, prop := range schema.Properties {
			gs.Properties[k] = convSchema(prop)
		}
	}

	switch schema.Type {
	case "object":
		gs.Type = genai.TypeObject
	case "array":
		gs.Type = genai.TypeArray
	case "string":
		gs.Type = genai.TypeString
	case "number":
		gs.Type = genai.TypeNumber
	case "integer":
		gs.Type = genai.TypeInteger
	case "boolean":
		gs.Type = genai.TypeBoolean
	}
	return gs
}
