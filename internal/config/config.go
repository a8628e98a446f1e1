// Package config loads daemon settings. Later sources win: built-in
// defaults, the YAML file, the environment (including an optional .env
// file), then explicitly set command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"risi/internal/audio"
)

type AudioConfig struct {
	TargetRate       int     `yaml:"target_rate"`
	BlockSize        int     `yaml:"block_size"`
	NoiseFloor       float64 `yaml:"noise_floor"`
	Sensitivity      float64 `yaml:"sensitivity"`
	SilenceSeconds   float64 `yaml:"silence_seconds"`
	SilenceThreshold float64 `yaml:"silence_threshold"`
	Resampler        string  `yaml:"resampler"`
	// Input replays a recording instead of opening the microphone.
	Input string `yaml:"input"`
}

type STTConfig struct {
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model"`
	Language     string `yaml:"language"`
	WhisperModel string `yaml:"whisper_model"`
}

type TTSConfig struct {
	Provider   string  `yaml:"provider"`
	Voice      string  `yaml:"voice"`
	Duck       bool    `yaml:"duck"`
	DuckFactor float64 `yaml:"duck_factor"`
	// HoldMic keeps the microphone closed until queued speech has played.
	HoldMic bool `yaml:"hold_mic"`
}

type LLMConfig struct {
	Provider       string `yaml:"provider"`
	Model          string `yaml:"model"`
	ReasoningModel string `yaml:"reasoning_model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type AgentConfig struct {
	MaxExchanges       int  `yaml:"max_exchanges"`
	MaxSteps           int  `yaml:"max_steps"`
	ToolTimeoutSeconds int  `yaml:"tool_timeout_seconds"`
	Acknowledge        bool `yaml:"acknowledge"`
}

// Credentials never come from the YAML file.
type Credentials struct {
	GeminiAPIKey   string `yaml:"-"`
	OpenAIAPIKey   string `yaml:"-"`
	DeepgramAPIKey string `yaml:"-"`
}

type Config struct {
	Log    string `yaml:"log"`
	Socket string `yaml:"socket"`
	Proxy  string `yaml:"proxy"`
	Cue    string `yaml:"cue"`

	Audio AudioConfig `yaml:"audio"`
	STT   STTConfig   `yaml:"stt"`
	TTS   TTSConfig   `yaml:"tts"`
	LLM   LLMConfig   `yaml:"llm"`
	Agent AgentConfig `yaml:"agent"`

	Credentials Credentials `yaml:"-"`
}

func Default() Config {
	return Config{
		Log:    "info",
		Socket: "/tmp/risi.sock",
		Audio: AudioConfig{
			TargetRate:       16000,
			BlockSize:        512,
			NoiseFloor:       0.0095,
			Sensitivity:      40,
			SilenceSeconds:   1,
			SilenceThreshold: 0.01,
			Resampler:        "soxr",
		},
		STT: STTConfig{
			Provider:     "deepgram",
			Model:        "flux-general-en",
			Language:     "en",
			WhisperModel: "models/ggml-base.en.bin",
		},
		TTS: TTSConfig{
			Provider:   "espeak",
			Duck:       true,
			DuckFactor: 0.2,
		},
		LLM: LLMConfig{
			Provider:       "gemini",
			TimeoutSeconds: 60,
		},
		Agent: AgentConfig{
			MaxExchanges:       20,
			MaxSteps:           15,
			ToolTimeoutSeconds: 10,
			Acknowledge:        true,
		},
	}
}

// Dir is ~/.config/risi.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, ".config", "risi"), nil
}

func DefaultPath() string {
	dir, err := Dir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "config.yaml")
}

func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return nil
}

// Load reads path (a missing file is fine) and the environment. envFile is
// loaded first without overriding variables already set.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return cfg, err
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	c.Credentials = Credentials{
		GeminiAPIKey:   getenv("GEMINI_API_KEY"),
		OpenAIAPIKey:   getenv("OPENAI_API_KEY"),
		DeepgramAPIKey: getenv("DEEPGRAM_API_KEY"),
	}

	strs := map[string]*string{
		"RISI_LOG":          &c.Log,
		"RISI_SOCKET":       &c.Socket,
		"RISI_PROXY":        &c.Proxy,
		"RISI_CUE":          &c.Cue,
		"RISI_STT_PROVIDER": &c.STT.Provider,
		"RISI_TTS_PROVIDER": &c.TTS.Provider,
		"RISI_LLM_PROVIDER": &c.LLM.Provider,
	}
	for key, dst := range strs {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	// the model override only applies to the provider it names
	switch c.LLM.Provider {
	case "gemini":
		if v := getenv("GEMINI_MODEL"); v != "" {
			c.LLM.Model = v
		}
	case "openai":
		if v := getenv("OPENAI_MODEL"); v != "" {
			c.LLM.Model = v
		}
	}

	if v := getenv("RISI_HOLD_MIC"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RISI_HOLD_MIC: %w", err)
		}
		c.TTS.HoldMic = b
	}
	return nil
}

var (
	logLevels    = []string{"debug", "info", "warn", "error"}
	sttProviders = []string{"deepgram", "whisper"}
	ttsProviders = []string{"espeak", "deepgram", "none"}
	llmProviders = []string{"gemini", "openai"}
	resamplers   = []string{"soxr", "linear"}
)

func oneOf(field, v string, allowed []string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%s: unknown value %q (want one of %v)", field, v, allowed)
}

// Validate rejects values no component can work with.
func (c Config) Validate() error {
	var errs []error

	for _, chk := range []struct {
		field   string
		v       string
		allowed []string
	}{
		{"log", c.Log, logLevels},
		{"stt.provider", c.STT.Provider, sttProviders},
		{"tts.provider", c.TTS.Provider, ttsProviders},
		{"llm.provider", c.LLM.Provider, llmProviders},
		{"audio.resampler", c.Audio.Resampler, resamplers},
	} {
		if err := oneOf(chk.field, chk.v, chk.allowed); err != nil {
			errs = append(errs, err)
		}
	}

	positive := []struct {
		field string
		v     float64
	}{
		{"audio.target_rate", float64(c.Audio.TargetRate)},
		{"audio.block_size", float64(c.Audio.BlockSize)},
		{"audio.silence_seconds", c.Audio.SilenceSeconds},
		{"audio.sensitivity", c.Audio.Sensitivity},
		{"llm.timeout_seconds", float64(c.LLM.TimeoutSeconds)},
		{"agent.max_exchanges", float64(c.Agent.MaxExchanges)},
		{"agent.max_steps", float64(c.Agent.MaxSteps)},
		{"agent.tool_timeout_seconds", float64(c.Agent.ToolTimeoutSeconds)},
	}
	for _, p := range positive {
		if p.v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", p.field, p.v))
		}
	}

	if c.Audio.NoiseFloor < 0 || c.Audio.SilenceThreshold < 0 {
		errs = append(errs, errors.New("audio: noise_floor and silence_threshold must not be negative"))
	}
	if c.TTS.DuckFactor < 0 || c.TTS.DuckFactor > 1 {
		errs = append(errs, fmt.Errorf("tts.duck_factor must be within [0,1], got %v", c.TTS.DuckFactor))
	}

	return errors.Join(errs...)
}

// CheckCredentials reports the API keys the selected providers need but
// are missing.
func (c Config) CheckCredentials() error {
	var errs []error
	switch c.LLM.Provider {
	case "gemini":
		if c.Credentials.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY not set"))
		}
	case "openai":
		if c.Credentials.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY not set"))
		}
	}
	if (c.STT.Provider == "deepgram" || c.TTS.Provider == "deepgram") && c.Credentials.DeepgramAPIKey == "" {
		errs = append(errs, errors.New("DEEPGRAM_API_KEY not set"))
	}
	return errors.Join(errs...)
}

func (a AudioConfig) Pipeline() audio.Config {
	return audio.Config{
		TargetRate:       a.TargetRate,
		NoiseFloor:       a.NoiseFloor,
		Sensitivity:      a.Sensitivity,
		SilenceDuration:  time.Duration(a.SilenceSeconds * float64(time.Second)),
		SilenceThreshold: a.SilenceThreshold,
		Resampler:        a.Resampler,
	}
}

func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

func (a AgentConfig) ToolTimeout() time.Duration {
	return time.Duration(a.ToolTimeoutSeconds) * time.Second
}
