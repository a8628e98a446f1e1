// Package stt defines streaming speech-to-text sessions. Implementations
// live in the deepgram and whisper subpackages.
package stt

import "context"

type Transcript struct {
	Text string
	// Final marks the end of a speaker turn as judged by the engine.
	Final bool
}

// Session is one long-lived transcription session. Run blocks until ctx is
// cancelled or the session fails, and is meant to be driven by a bridge.
// Push and Transcripts may be used from other goroutines while Run is
// active; audio pushed while Run is not active is dropped.
type Session interface {
	Run(ctx context.Context) error
	// Push hands over mono target-rate samples. It never blocks.
	Push(samples []float32)
	Transcripts() <-chan Transcript
}

// Flusher is implemented by sessions that buffer audio and transcribe on
// demand.
type Flusher interface {
	Flush(ctx context.Context) error
}
