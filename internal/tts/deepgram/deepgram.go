// Package deepgram synthesizes speech with Deepgram's Aura voices.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const (
	DefaultURL   = "https://api.deepgram.com/v1/speak"
	DefaultVoice = "aura-2-thalia-en"
)

// Player plays a complete WAV file, blocking until it ends.
type Player interface {
	PlayWAV(ctx context.Context, data []byte) error
}

type Synth struct {
	apiKey string
	voice  string
	url    string
	client *http.Client
	player Player
}

type Option func(*Synth)

func WithURL(u string) Option { return func(s *Synth) { s.url = u } }

func WithHTTPClient(c *http.Client) Option {
	return func(s *Synth) {
		if c != nil {
			s.client = c
		}
	}
}

func New(apiKey, voice string, player Player, opts ...Option) (*Synth, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: api key is required")
	}
	if voice == "" {
		voice = DefaultVoice
	}
	s := &Synth{
		apiKey: apiKey,
		voice:  voice,
		url:    DefaultURL,
		client: http.DefaultClient,
		player: player,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Synthesize returns linear16 speech in a WAV container.
func (s *Synth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("model", s.voice)
	q.Set("encoding", "linear16")
	q.Set("container", "wav")
	u.RawQuery = q.Encode()

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram speak: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deepgram speak error %d: %s", resp.StatusCode, data)
	}
	return data, nil
}

func (s *Synth) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	audio, err := s.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	if s.player == nil {
		return errors.New("deepgram: no player configured")
	}
	return s.player.PlayWAV(ctx, audio)
}
