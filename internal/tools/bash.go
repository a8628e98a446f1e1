package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

const bashTimeout = 10 * time.Second

type BashArgs struct {
	Command string `json:"command" jsonschema:"the shell command to run"`
}

// Bash runs a command through bash -c and reports its output and exit
// status. A non-zero exit is a normal result, not an error.
func Bash() Def {
	return MustNewDef("run_bash",
		"Execute a bash command on the user's machine and return stdout, stderr and the return code.",
		runBash)
}

func runBash(ctx context.Context, a BashArgs) (map[string]any, error) {
	if a.Command == "" {
		return nil, errors.New("command is required")
	}

	ctx, cancel := context.WithTimeout(ctx, bashTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "bash", "-c", a.Command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("command timed out after %s", bashTimeout)
	}

	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("run command: %w", err)
		}
		code = exitErr.ExitCode()
	}

	return map[string]any{
		"stdout":     stdout.String(),
		"stderr":     stderr.String(),
		"returncode": code,
	}, nil
}
