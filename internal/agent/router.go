// Package agent turns an utterance into a spoken and displayed answer: the
// router classifies it, the task agent acts on the machine, the reasoner
// handles hard questions.
package agent

import (
	"context"
	"fmt"
	log "log/slog"
	"strings"

	"risi/internal/llm"
)

const apology = "Sorry, something went wrong while handling that."

// Speaker queues text for speech. Say must not block on playback.
type Speaker interface {
	Say(text string)
}

type nopSpeaker struct{}

func (nopSpeaker) Say(string) {}

type Router struct {
	llm      llm.Provider
	task     *TaskAgent
	reasoner *Reasoner
	system   string

	speaker     Speaker
	display     func(markdown string)
	acknowledge bool
}

type RouterOption func(*Router)

func WithSpeaker(s Speaker) RouterOption {
	return func(r *Router) { r.speaker = s }
}

// WithDisplay sets where long-form reasoning output goes.
func WithDisplay(fn func(markdown string)) RouterOption {
	return func(r *Router) { r.display = fn }
}

// WithAcknowledge controls whether the router's response_text is spoken
// before delegating. On by default.
func WithAcknowledge(on bool) RouterOption {
	return func(r *Router) { r.acknowledge = on }
}

func NewRouter(p llm.Provider, task *TaskAgent, reasoner *Reasoner, opts ...RouterOption) (*Router, error) {
	r := &Router{
		llm:         p,
		task:        task,
		reasoner:    reasoner,
		speaker:     nopSpeaker{},
		display:     func(string) {},
		acknowledge: true,
	}
	for _, opt := range opts {
		opt(r)
	}

	var specs []llm.ToolSpec
	if task != nil {
		specs = task.reg.Specs()
	}
	system, err := render("router.tmpl", NewPromptEnv(specs))
	if err != nil {
		return nil, err
	}
	r.system = system

	return r, nil
}

// Run handles one utterance. history is the rendered conversation so far.
// On failure the user hears an apology and Run returns "" with the error.
func (r *Router) Run(ctx context.Context, utterance, history string) (string, error) {
	out, err := r.run(ctx, utterance, history)
	if err != nil {
		log.Error("Router failed", "err", err)
		r.speaker.Say(apology)
		return "", err
	}
	return out, nil
}

func (r *Router) run(ctx context.Context, utterance, history string) (string, error) {
	resp, err := r.llm.Complete(ctx, llm.Request{
		System:   r.system,
		Messages: []llm.Message{{Role: llm.RoleUser, Text: routerInput(utterance, history)}},
		JSON:     true,
	})
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}

	d, err := ParseDecision(resp.Text)
	if err != nil {
		return "", err
	}

	switch d := d.(type) {
	case InstantResponse:
		log.Info("Route", "type", "instant_response")
		r.speaker.Say(d.Text)
		return d.Text, nil

	case ToolInvocation:
		log.Info("Route", "type", "tool_invocation", "tool", d.ToolName)
		if r.task == nil {
			return "", fmt.Errorf("no task agent configured")
		}
		r.ack(d.Text)

		out, err := r.task.Execute(ctx, d.TaskInstruction(utterance))
		if err != nil {
			return "", err
		}
		r.speaker.Say(out)
		return out, nil

	case AdvancedReasoning:
		log.Info("Route", "type", "advanced_reasoning")
		if r.reasoner == nil {
			return "", fmt.Errorf("no reasoner configured")
		}
		r.ack(d.Text)

		res, err := r.reasoner.Reason(ctx, d.ReasoningQuery(utterance))
		if err != nil {
			return "", err
		}
		r.speaker.Say(res.VoiceSummary)
		r.display(res.DisplayContent)

		if res.DisplayContent != "" {
			return res.DisplayContent, nil
		}
		return res.Raw, nil

	default:
		return "", fmt.Errorf("unhandled decision %T", d)
	}
}

func (r *Router) ack(text string) {
	if r.acknowledge && text != "" {
		r.speaker.Say(text)
	}
}

func routerInput(utterance, history string) string {
	if strings.TrimSpace(history) == "" {
		return "USER: " + utterance
	}
	return "Conversation so far:\n" + history + "\n\nLatest utterance:\nUSER: " + utterance
}
