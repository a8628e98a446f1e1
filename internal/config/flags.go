package config

import (
	"github.com/spf13/pflag"
)

// RegisterFlags adds the overridable settings to fs. Defaults shown in
// help are the built-in ones; only flags the user sets are applied.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()

	fs.StringP("config", "c", DefaultPath(), "Config file path")
	fs.StringP("env", "e", ".env", "Env file path")
	fs.StringP("log", "l", d.Log, "Log level (debug|info|warn|error)")
	fs.StringP("socket", "s", d.Socket, "Control socket path")
	fs.StringP("proxy", "p", d.Proxy, "SOCKS5 proxy address, empty for direct")
	fs.String("cue", d.Cue, "Sound played when listening starts")
	fs.StringP("input", "i", d.Audio.Input, "Replay an audio file instead of the microphone")
	fs.String("stt", d.STT.Provider, "Speech-to-text provider (deepgram|whisper)")
	fs.String("tts", d.TTS.Provider, "Text-to-speech provider (espeak|deepgram|none)")
	fs.String("llm", d.LLM.Provider, "Language model provider (gemini|openai)")
	fs.String("model", d.LLM.Model, "Language model name")
	fs.Bool("hold-mic", d.TTS.HoldMic, "Keep the microphone closed while speaking")
}

// ApplyFlags copies every flag the user set onto c.
func ApplyFlags(fs *pflag.FlagSet, c *Config) error {
	strs := map[string]*string{
		"log":    &c.Log,
		"socket": &c.Socket,
		"proxy":  &c.Proxy,
		"cue":    &c.Cue,
		"input":  &c.Audio.Input,
		"stt":    &c.STT.Provider,
		"tts":    &c.TTS.Provider,
		"llm":    &c.LLM.Provider,
		"model":  &c.LLM.Model,
	}
	for name, dst := range strs {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	if fs.Changed("hold-mic") {
		v, err := fs.GetBool("hold-mic")
		if err != nil {
			return err
		}
		c.TTS.HoldMic = v
	}
	return nil
}

// FromFlags is Load followed by ApplyFlags, with paths taken from fs.
func FromFlags(fs *pflag.FlagSet) (Config, error) {
	path, err := fs.GetString("config")
	if err != nil {
		return Config{}, err
	}
	envFile, err := fs.GetString("env")
	if err != nil {
		return Config{}, err
	}

	cfg, err := Load(path, envFile)
	if err != nil {
		return cfg, err
	}
	if err := ApplyFlags(fs, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}
