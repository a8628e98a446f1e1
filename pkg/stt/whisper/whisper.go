// Package whisper transcribes buffered audio locally with whisper.cpp.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"risi/pkg/stt"
)

type Options struct {
	Language      string // "auto", "en", ...
	TranslateToEn bool
	Threads       int    // <=0 => NumCPU()
	InitialPrompt string // optional prefix prompt
	BeamSize      int    // 0 = greedy
}

type Transcriber struct {
	model whisper.Model
}

func NewTranscriber(modelPath string) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("empty model path")
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return &Transcriber{model: m}, nil
}

func (t *Transcriber) Close() error {
	if t.model == nil {
		return nil
	}
	return t.model.Close()
}

// Transcribe runs the model over mono 16 kHz samples and joins the
// resulting segments.
func (t *Transcriber) Transcribe(ctx context.Context, pcm16k []float32, opt Options) (string, error) {
	if len(pcm16k) == 0 {
		return "", nil
	}

	wctx, err := t.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("new context: %w", err)
	}

	if opt.Language == "" {
		opt.Language = "auto"
	}
	if err := wctx.SetLanguage(opt.Language); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	wctx.SetTranslate(opt.TranslateToEn)

	threads := opt.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))

	if opt.BeamSize > 0 {
		wctx.SetBeamSize(opt.BeamSize)
	}
	if opt.InitialPrompt != "" {
		wctx.SetInitialPrompt(opt.InitialPrompt)
	}

	if err := wctx.Process(pcm16k, nil, nil, nil); err != nil {
		return "", fmt.Errorf("process: %w", err)
	}

	var parts []string
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		s, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("next segment: %w", err)
		}
		if txt := strings.TrimSpace(s.Text); txt != "" {
			parts = append(parts, txt)
		}
	}

	return strings.Join(parts, " "), nil
}

// NewSession returns a buffered session that runs this model on Flush,
// keeping at most maxSamples of audio.
func NewSession(t *Transcriber, opt Options, maxSamples int) *stt.Buffered {
	return stt.NewBuffered(func(ctx context.Context, pcm []float32) (string, error) {
		return t.Transcribe(ctx, pcm, opt)
	}, maxSamples)
}
