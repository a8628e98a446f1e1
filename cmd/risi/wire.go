package main

import (
	"context"
	"fmt"
	log "log/slog"
	"net/http"
	"time"

	"risi/internal/agent"
	"risi/internal/audio"
	"risi/internal/audio/device"
	"risi/internal/config"
	"risi/internal/display"
	"risi/internal/llm"
	"risi/internal/llm/gemini"
	oai "risi/internal/llm/openai"
	"risi/internal/notify"
	"risi/internal/proxy"
	"risi/internal/tools"
	"risi/internal/tts"
	dgtts "risi/internal/tts/deepgram"
	"risi/internal/tts/espeak"
	"risi/pkg/stt"
	dgstt "risi/pkg/stt/deepgram"
	"risi/pkg/stt/whisper"
)

const duckFade = 300 * time.Millisecond

func newHTTPClient(cfg config.Config) (*http.Client, error) {
	hc, err := proxy.NewHTTPClient(cfg.Proxy, cfg.LLM.Timeout())
	if err != nil {
		return nil, fmt.Errorf("proxy %s: %w", cfg.Proxy, err)
	}
	return hc, nil
}

func newProvider(ctx context.Context, cfg config.Config, model string, hc *http.Client) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "gemini":
		return gemini.New(ctx, cfg.Credentials.GeminiAPIKey, model, hc)
	case "openai":
		return oai.New(cfg.Credentials.OpenAIAPIKey, model, hc)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

// echoSpeaker prints everything it queues for speech.
type echoSpeaker struct {
	queue   *tts.Queue
	console *display.Console
}

func (s echoSpeaker) Say(text string) {
	s.console.Reply(text)
	s.queue.Say(text)
}

func newRouter(ctx context.Context, cfg config.Config, hc *http.Client, speaker agent.Speaker, console *display.Console) (*agent.Router, error) {
	p, err := newProvider(ctx, cfg, cfg.LLM.Model, hc)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	reasoning := p
	if cfg.LLM.ReasoningModel != "" {
		if reasoning, err = newProvider(ctx, cfg, cfg.LLM.ReasoningModel, hc); err != nil {
			return nil, fmt.Errorf("reasoning llm: %w", err)
		}
	}

	reg := tools.NewRegistry(tools.Builtin()...)
	exec := tools.NewExecutor(reg, cfg.Agent.ToolTimeout())
	task := agent.NewTaskAgent(p, reg, exec, agent.WithMaxSteps(cfg.Agent.MaxSteps))

	return agent.NewRouter(p, task, agent.NewReasoner(reasoning),
		agent.WithSpeaker(speaker),
		agent.WithDisplay(console.Content),
		agent.WithAcknowledge(cfg.Agent.Acknowledge),
	)
}

type mute struct{}

func (mute) Speak(context.Context, string) error { return nil }

func newSpeech(cfg config.Config, player *notify.Player, hc *http.Client) (*tts.Queue, error) {
	var synth tts.Synthesizer
	switch cfg.TTS.Provider {
	case "espeak":
		synth = espeak.New(cfg.TTS.Voice, 0)
	case "deepgram":
		s, err := dgtts.New(cfg.Credentials.DeepgramAPIKey, cfg.TTS.Voice, player, dgtts.WithHTTPClient(hc))
		if err != nil {
			return nil, err
		}
		synth = s
	case "none":
		synth = mute{}
	default:
		return nil, fmt.Errorf("unknown tts provider %q", cfg.TTS.Provider)
	}

	var opts []tts.Option
	if cfg.TTS.Duck && cfg.TTS.Provider != "none" {
		opts = append(opts, tts.WithDucker(audio.NewDucker([]string{"risi"}, cfg.TTS.DuckFactor, duckFade)))
	}
	return tts.NewQueue(synth, opts...), nil
}

// newSessions returns a factory producing one transcription session per
// listening period.
func newSessions(cfg config.Config) (func() stt.Session, func(), error) {
	switch cfg.STT.Provider {
	case "deepgram":
		dialer, err := proxy.NewWebsocketDialer(cfg.Proxy)
		if err != nil {
			return nil, nil, err
		}
		dc := dgstt.Config{
			APIKey:     cfg.Credentials.DeepgramAPIKey,
			Model:      cfg.STT.Model,
			Language:   cfg.STT.Language,
			SampleRate: cfg.Audio.TargetRate,
			KeepAlive:  5 * time.Second,
			Dialer:     dialer,
		}
		// validate once up front so the factory cannot fail later
		if _, err := dgstt.New(dc); err != nil {
			return nil, nil, err
		}
		factory := func() stt.Session {
			s, _ := dgstt.New(dc)
			return s
		}
		return factory, func() {}, nil

	case "whisper":
		tr, err := whisper.NewTranscriber(cfg.STT.WhisperModel)
		if err != nil {
			return nil, nil, fmt.Errorf("whisper: %w", err)
		}
		opt := whisper.Options{Language: cfg.STT.Language}
		factory := func() stt.Session {
			return whisper.NewSession(tr, opt, cfg.Audio.TargetRate*60)
		}
		return factory, func() {
			if err := tr.Close(); err != nil {
				log.Warn("Failed to close whisper", "err", err)
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown stt provider %q", cfg.STT.Provider)
	}
}

// newCapture opens the microphone, or replays cfg.Audio.Input when set.
func newCapture(ctx context.Context, cfg config.Config) (*audio.Pipeline, func(), error) {
	if cfg.Audio.Input != "" {
		src, err := audio.NewFileSource(ctx, cfg.Audio.Input, cfg.Audio.TargetRate, cfg.Audio.BlockSize)
		if err != nil {
			return nil, nil, fmt.Errorf("input %s: %w", cfg.Audio.Input, err)
		}
		log.Info("Replaying recording", "path", cfg.Audio.Input)
		return audio.NewPipeline(src, cfg.Audio.Pipeline()), func() {}, nil
	}

	if err := device.Init(); err != nil {
		return nil, nil, fmt.Errorf("init audio: %w", err)
	}
	src, err := device.NewDefaultSource(cfg.Audio.BlockSize)
	if err != nil {
		device.Close()
		return nil, nil, err
	}
	return audio.NewPipeline(src, cfg.Audio.Pipeline()), device.Close, nil
}
