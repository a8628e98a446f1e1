package llm

import "testing"

func TestDecodeArgs(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		key  string
		want any
	}{
		{"valid", `{"command":"ls"}`, "command", "ls"},
		{"unterminated", `{"command":"ls"`, "command", "ls"},
		{"trailing comma", `{"command":"pwd",}`, "command", "pwd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := DecodeArgs(tt.raw)
			if err != nil {
				t.Fatalf("DecodeArgs(%q): %v", tt.raw, err)
			}
			if args[tt.key] != tt.want {
				t.Fatalf("got %v, want %v", args[tt.key], tt.want)
			}
		})
	}

	args, err := DecodeArgs("  ")
	if err != nil || len(args) != 0 {
		t.Fatalf("blank args = %v, %v", args, err)
	}
}

func TestStripFences(t *testing.T) {
	tests := map[string]string{
		`{"a":1}`:                 `{"a":1}`,
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}```":       `{"a":1}`,
		"  \n{\"a\":1}\n  ":       `{"a":1}`,
	}
	for in, want := range tests {
		if got := StripFences(in); got != want {
			t.Errorf("StripFences(%q) = %q, want %q", in, got, want)
		}
	}
}
