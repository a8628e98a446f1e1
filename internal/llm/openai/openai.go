// Package openai implements llm.Provider on the OpenAI chat completions API.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	log "log/slog"
	"net/http"

	"github.com/google/jsonschema-go/jsonschema"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"risi/internal/llm"
)

const DefaultModel = openai.ChatModelGPT5Mini

var _ llm.Provider = (*Provider)(nil)

type Provider struct {
	client openai.Client
	model  string
}

// New creates an OpenAI provider. httpClient may be nil.
func New(apiKey, model string, httpClient *http.Client, opts ...option.RequestOption) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	return &Provider{client: openai.NewClient(opts...), model: model}, nil
}

func (p *Provider) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	params, err := convRequest(p.model, req)
	if err != nil {
		return llm.Response{}, err
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.Response{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llm.Response{}, llm.ErrEmptyResponse
	}

	msg := resp.Choices[0].Message
	log.Debug("OpenAI reply", "model", p.model, "text", msg.Content, "tool_calls", len(msg.ToolCalls))

	if len(msg.ToolCalls) > 0 {
		tc := msg.ToolCalls[0]
		args, err := llm.DecodeArgs(tc.Function.Arguments)
		if err != nil {
			return llm.Response{}, err
		}
		return llm.Response{
			Text:     msg.Content,
			ToolCall: &llm.ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args},
		}, nil
	}

	if msg.Content == "" {
		log.Warn("OpenAI reply is empty", "model", p.model, "finish_reason", resp.Choices[0].FinishReason)
	}
	return llm.Response{Text: msg.Content}, nil
}

func convRequest(model string, req llm.Request) (openai.ChatCompletionNewParams, error) {
	var msgs []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}

	for _, m := range req.Messages {
		mp, err := convMessage(m)
		if err != nil {
			return openai.ChatCompletionNewParams{}, err
		}
		msgs = append(msgs, mp)
	}
	if len(msgs) == 0 {
		return openai.ChatCompletionNewParams{}, fmt.Errorf("openai: no messages")
	}

	params := openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    model,
	}

	for _, t := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  convSchema(t.Parameters),
		}))
	}

	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	return params, nil
}

func convMessage(m llm.Message) (openai.ChatCompletionMessageParamUnion, error) {
	switch {
	case m.ToolCall != nil:
		args, err := json.Marshal(m.ToolCall.Args)
		if err != nil {
			return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("encode tool args: %w", err)
		}
		return openai.ChatCompletionMessageParamUnion{
			OfAssistant: &openai.ChatCompletionAssistantMessageParam{
				ToolCalls: []openai.ChatCompletionMessageToolCallUnionParam{{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: m.ToolCall.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      m.ToolCall.Name,
							Arguments: string(args),
						},
					},
				}},
			},
		}, nil

	case m.ToolResult != nil:
		body, err := json.Marshal(m.ToolResult.Response)
		if err != nil {
			return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("encode tool result: %w", err)
		}
		return openai.ToolMessage(string(body), m.ToolResult.ID), nil

	case m.Role == llm.RoleModel:
		return openai.AssistantMessage(m.Text), nil

	default:
		return openai.UserMessage(m.Text), nil
	}
}

// convSchema round-trips the schema through JSON into the SDK's map form.
func convSchema(s *jsonschema.Schema) openai.FunctionParameters {
	if s == nil {
		return openai.FunctionParameters{"type": "object", "properties": map[string]any{}}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var m openai.FunctionParameters
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}
