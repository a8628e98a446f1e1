package conversation

import "risi/internal/llm"

// Trace is the unbounded message log of a single task run. It is owned by
// one task loop and is not safe for concurrent use.
type Trace struct {
	msgs []llm.Message
}

func (t *Trace) AddMessage(msg llm.Message) {
	t.msgs = append(t.msgs, msg)
}

func (t *Trace) AddText(role llm.Role, text string) {
	t.AddMessage(llm.Message{Role: role, Text: text})
}

// AddToolExchange appends a call and its result as two consecutive entries.
func (t *Trace) AddToolExchange(call llm.ToolCall, result llm.ToolResult) {
	c := call
	r := result
	t.msgs = append(t.msgs,
		llm.Message{Role: llm.RoleModel, ToolCall: &c},
		llm.Message{Role: llm.RoleUser, ToolResult: &r},
	)
}

// Messages returns a copy of the log.
func (t *Trace) Messages() []llm.Message {
	return append([]llm.Message(nil), t.msgs...)
}

func (t *Trace) Len() int { return len(t.msgs) }

func (t *Trace) Clear() { t.msgs = nil }
