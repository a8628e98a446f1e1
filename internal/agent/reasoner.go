package agent

import (
	"context"
	"encoding/json"
	"fmt"
	log "log/slog"

	"risi/internal/llm"
)

const fallbackSummary = "Something went wrong and I could not find the details."

// Reasoning is the two-channel answer to a hard question.
type Reasoning struct {
	VoiceSummary   string
	DisplayContent string
	// Raw is the model's reply as received.
	Raw string
}

type Reasoner struct {
	llm llm.Provider
}

func NewReasoner(p llm.Provider) *Reasoner {
	return &Reasoner{llm: p}
}

// Reason makes a single model call. A reply that is not the expected JSON
// is kept whole as display content under a generic spoken summary.
func (r *Reasoner) Reason(ctx context.Context, query string) (Reasoning, error) {
	system, err := render("reasoner.tmpl", NewPromptEnv(nil))
	if err != nil {
		return Reasoning{}, err
	}

	log.Info("Reasoning", "query", query)

	resp, err := r.llm.Complete(ctx, llm.Request{
		System:   system,
		Messages: []llm.Message{{Role: llm.RoleUser, Text: query}},
		JSON:     true,
	})
	if err != nil {
		return Reasoning{}, fmt.Errorf("reason: %w", err)
	}

	out := Reasoning{Raw: resp.Text, VoiceSummary: fallbackSummary}
	if resp.Text == "" {
		return out, nil
	}

	var body struct {
		VoiceSummary   string `json:"voice_summary"`
		DisplayContent string `json:"display_content"`
	}
	if err := json.Unmarshal([]byte(llm.StripFences(resp.Text)), &body); err != nil {
		log.Warn("Reasoner reply is not JSON", "err", err)
		out.DisplayContent = resp.Text
		return out, nil
	}

	if body.VoiceSummary != "" {
		out.VoiceSummary = body.VoiceSummary
	}
	out.DisplayContent = body.DisplayContent
	return out, nil
}
