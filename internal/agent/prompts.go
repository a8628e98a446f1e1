package agent

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"risi/internal/llm"
	"risi/internal/tools"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

// PromptEnv is the data every system prompt is rendered with.
type PromptEnv struct {
	OS    string
	Cwd   string
	Date  string
	Tools []llm.ToolSpec
}

func render(name string, env PromptEnv) (string, error) {
	var sb strings.Builder
	if err := prompts.ExecuteTemplate(&sb, name, env); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(sb.String()), nil
}

func NewPromptEnv(specs []llm.ToolSpec) PromptEnv {
	info := tools.Environment()
	return PromptEnv{
		OS:    fmt.Sprint(info["os"]),
		Cwd:   fmt.Sprint(info["cwd"]),
		Date:  fmt.Sprint(info["date"]),
		Tools: specs,
	}
}
