package agent

import (
	"context"
	"fmt"
	log "log/slog"

	"risi/internal/conversation"
	"risi/internal/llm"
	"risi/internal/tools"
)

const (
	DefaultMaxSteps = 15

	unexpectedFormat = "Error: Unexpected response format from model"
)

// TaskAgent completes a request by letting the model call tools until it
// answers in text or the step budget runs out. One run at a time.
type TaskAgent struct {
	llm      llm.Provider
	reg      *tools.Registry
	exec     *tools.Executor
	maxSteps int
}

type TaskOption func(*TaskAgent)

func WithMaxSteps(n int) TaskOption {
	return func(a *TaskAgent) {
		if n > 0 {
			a.maxSteps = n
		}
	}
}

func NewTaskAgent(p llm.Provider, reg *tools.Registry, exec *tools.Executor, opts ...TaskOption) *TaskAgent {
	a := &TaskAgent{llm: p, reg: reg, exec: exec, maxSteps: DefaultMaxSteps}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Execute runs the loop. Running out of steps and a reply with neither text
// nor a tool call are reported as text; only provider failures and
// cancellation return an error.
func (a *TaskAgent) Execute(ctx context.Context, request string) (string, error) {
	specs := a.reg.Specs()
	system, err := render("task.tmpl", NewPromptEnv(specs))
	if err != nil {
		return "", err
	}

	var trace conversation.Trace
	trace.AddText(llm.RoleUser, request)

	log.Info("Task started", "request", request)

	for step := 1; step <= a.maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		resp, err := a.llm.Complete(ctx, llm.Request{
			System:   system,
			Messages: trace.Messages(),
			Tools:    specs,
		})
		if err != nil {
			return "", fmt.Errorf("task step %d: %w", step, err)
		}

		switch {
		case resp.ToolCall != nil:
			call := *resp.ToolCall
			log.Info("Task step", "step", step, "tool", call.Name, "args", call.Args)

			result := a.exec.Execute(ctx, call.Name, call.Args)
			log.Debug("Tool result", "step", step, "tool", call.Name, "result", result)

			trace.AddToolExchange(call, llm.ToolResult{ID: call.ID, Name: call.Name, Response: result})

		case resp.Text != "":
			log.Info("Task complete", "steps", step)
			return resp.Text, nil

		default:
			log.Warn("Task reply had neither text nor tool call", "step", step)
			return unexpectedFormat, nil
		}
	}

	log.Warn("Task step budget exhausted", "max_steps", a.maxSteps)
	return exceededMessage(a.maxSteps), nil
}

func exceededMessage(n int) string {
	return fmt.Sprintf("Task exceeded max steps (%d). Stopping.", n)
}
