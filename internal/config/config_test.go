package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoadFileAndEnvFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "config.yaml")
	yml := `
log: warn
audio:
  block_size: 1024
  silence_seconds: 1.5
stt:
  provider: whisper
agent:
  max_steps: 5
  acknowledge: false
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("RISI_LOG=debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("RISI_LOG") })

	cfg, err := Load(path, envFile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Log != "debug" {
		t.Fatalf("Log = %q, want debug (env wins over file)", cfg.Log)
	}
	if cfg.Audio.BlockSize != 1024 || cfg.STT.Provider != "whisper" || cfg.Agent.MaxSteps != 5 || cfg.Agent.Acknowledge {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	// untouched keys keep their defaults
	if cfg.Audio.TargetRate != 16000 || cfg.Agent.MaxExchanges != 20 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if got := cfg.Audio.Pipeline().SilenceDuration; got != 1500*time.Millisecond {
		t.Fatalf("SilenceDuration = %v, want 1.5s", got)
	}
}

func TestLoadMissingFiles(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "nope.yaml"), filepath.Join(dir, "nope.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "gemini" {
		t.Fatalf("LLM.Provider = %q, want default", cfg.LLM.Provider)
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("audio: [1, 2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, ""); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"GEMINI_API_KEY":    "g-key",
		"DEEPGRAM_API_KEY":  "d-key",
		"GEMINI_MODEL":      "gemini-x",
		"OPENAI_MODEL":      "gpt-x",
		"RISI_TTS_PROVIDER": "none",
		"RISI_HOLD_MIC":     "true",
	}
	getenv := func(k string) string { return env[k] }

	cfg := Default()
	if err := cfg.applyEnv(getenv); err != nil {
		t.Fatalf("applyEnv: %v", err)
	}

	if cfg.Credentials.GeminiAPIKey != "g-key" || cfg.Credentials.DeepgramAPIKey != "d-key" {
		t.Fatalf("credentials = %+v", cfg.Credentials)
	}
	if cfg.LLM.Model != "gemini-x" {
		t.Fatalf("LLM.Model = %q, want the gemini override", cfg.LLM.Model)
	}
	if cfg.TTS.Provider != "none" || !cfg.TTS.HoldMic {
		t.Fatalf("TTS = %+v", cfg.TTS)
	}

	env["RISI_HOLD_MIC"] = "maybe"
	if err := cfg.applyEnv(getenv); err == nil {
		t.Fatal("expected an error for a non-boolean RISI_HOLD_MIC")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"rate", func(c *Config) { c.Audio.TargetRate = 0 }, "audio.target_rate"},
		{"stt", func(c *Config) { c.STT.Provider = "vosk" }, "stt.provider"},
		{"llm", func(c *Config) { c.LLM.Provider = "claude" }, "llm.provider"},
		{"duck", func(c *Config) { c.TTS.DuckFactor = 2 }, "duck_factor"},
		{"steps", func(c *Config) { c.Agent.MaxSteps = -1 }, "agent.max_steps"},
		{"log", func(c *Config) { c.Log = "trace" }, "log"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestCheckCredentials(t *testing.T) {
	cfg := Default()
	err := cfg.CheckCredentials()
	if err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY") || !strings.Contains(err.Error(), "DEEPGRAM_API_KEY") {
		t.Fatalf("CheckCredentials() = %v", err)
	}

	cfg.STT.Provider = "whisper"
	cfg.LLM.Provider = "openai"
	cfg.Credentials.OpenAIAPIKey = "o-key"
	if err := cfg.CheckCredentials(); err != nil {
		t.Fatalf("CheckCredentials() = %v, want nil", err)
	}
}

func TestFlagsOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("llm:\n  provider: openai\nlog: warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	fs := pflag.NewFlagSet("risi", pflag.ContinueOnError)
	RegisterFlags(fs)
	err := fs.Parse([]string{
		"--config", path,
		"--env", filepath.Join(dir, "missing.env"),
		"--llm", "gemini",
		"--hold-mic",
	})
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := FromFlags(fs)
	if err != nil {
		t.Fatalf("FromFlags: %v", err)
	}
	if cfg.LLM.Provider != "gemini" {
		t.Fatalf("LLM.Provider = %q, want the flag value", cfg.LLM.Provider)
	}
	if cfg.Log != "warn" {
		t.Fatalf("Log = %q, unset flag must not override the file", cfg.Log)
	}
	if !cfg.TTS.HoldMic {
		t.Fatal("HoldMic not applied")
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "risi")
	if err := EnsureDir(dir); err != nil {
		t.Fatal(err)
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Fatalf("Stat(%s) = %v, %v", dir, fi, err)
	}
}
