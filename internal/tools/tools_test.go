package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type echoArgs struct {
	Text string `json:"text"`
}

func echoDef(prefix string) Def {
	return MustNewDef("echo", "echo text back", func(_ context.Context, a echoArgs) (map[string]any, error) {
		return map[string]any{"text": prefix + a.Text}, nil
	})
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	reg := NewRegistry(echoDef("first:"))
	reg.Register(echoDef("second:"))

	if n := len(reg.Defs()); n != 1 {
		t.Fatalf("got %d defs, want 1", n)
	}

	res := NewExecutor(reg, 0).Execute(context.Background(), "echo", map[string]any{"text": "hi"})
	if res["text"] != "second:hi" {
		t.Fatalf("got %v, want second:hi", res)
	}
}

func TestRegistry_SpecsSortedWithSchema(t *testing.T) {
	reg := NewRegistry(Builtin()...)
	specs := reg.Specs()
	if len(specs) != 2 || specs[0].Name != "run_bash" || specs[1].Name != "system_info" {
		t.Fatalf("specs = %+v", specs)
	}

	p := specs[0].Parameters
	if p == nil || p.Type != "object" || p.Properties["command"] == nil {
		t.Fatalf("run_bash schema = %+v", p)
	}
	if len(p.Required) != 1 || p.Required[0] != "command" {
		t.Fatalf("required = %v, want [command]", p.Required)
	}
}

func TestExecutor_ContainsFailures(t *testing.T) {
	reg := NewRegistry(
		Def{Name: "fails", Func: func(context.Context, map[string]any) (map[string]any, error) {
			return nil, errors.New("disk full")
		}},
		Def{Name: "panics", Func: func(context.Context, map[string]any) (map[string]any, error) {
			panic("nil map")
		}},
		Def{Name: "slow", Func: func(ctx context.Context, _ map[string]any) (map[string]any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}},
		Def{Name: "empty", Func: func(context.Context, map[string]any) (map[string]any, error) {
			return nil, nil
		}},
	)
	ex := NewExecutor(reg, 50*time.Millisecond)
	ctx := context.Background()

	tests := []struct {
		tool string
		want string
	}{
		{"missing", "Tool 'missing' not found"},
		{"fails", "disk full"},
		{"panics", "tool panics panicked: nil map"},
		{"slow", "context deadline exceeded"},
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			res := ex.Execute(ctx, tt.tool, nil)
			if res["error"] != tt.want {
				t.Fatalf("got %v, want error %q", res, tt.want)
			}
		})
	}

	if res := ex.Execute(ctx, "empty", nil); res == nil || len(res) != 0 {
		t.Fatalf("empty result = %v", res)
	}
}

func TestExecutor_InvalidArguments(t *testing.T) {
	ex := NewExecutor(NewRegistry(echoDef("")), 0)
	res := ex.Execute(context.Background(), "echo", map[string]any{"text": 42})
	msg, _ := res["error"].(string)
	if !strings.Contains(msg, "invalid arguments for echo") {
		t.Fatalf("got %v", res)
	}
}

func TestRunBash(t *testing.T) {
	ex := NewExecutor(NewRegistry(Bash()), 0)
	ctx := context.Background()

	res := ex.Execute(ctx, "run_bash", map[string]any{"command": "echo out; echo err >&2; exit 3"})
	if res["stdout"] != "out\n" || res["stderr"] != "err\n" || res["returncode"] != 3 {
		t.Fatalf("got %v", res)
	}

	res = ex.Execute(ctx, "run_bash", map[string]any{})
	if res["error"] != "command is required" {
		t.Fatalf("got %v", res)
	}
}

func TestSystemInfo(t *testing.T) {
	res := NewExecutor(NewRegistry(SystemInfo()), 0).Execute(context.Background(), "system_info", nil)
	for _, k := range []string{"os", "cwd", "date"} {
		if res[k] == nil || res[k] == "" {
			t.Errorf("missing %s in %v", k, res)
		}
	}
}
