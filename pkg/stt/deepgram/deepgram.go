// Package deepgram streams audio to Deepgram's live transcription API over
// a websocket.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"risi/pkg/audioconv"
	"risi/pkg/stt"
)

const (
	DefaultURL   = "wss://api.deepgram.com/v2/listen"
	DefaultModel = "flux-general-en"
)

var _ stt.Session = (*Session)(nil)

type Config struct {
	APIKey     string
	URL        string
	Model      string
	Language   string
	SampleRate int
	// KeepAlive is the idle interval after which a KeepAlive frame is sent.
	// Zero disables it.
	KeepAlive time.Duration
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

type Session struct {
	cfg Config

	running     atomic.Bool
	audio       chan []byte
	transcripts chan stt.Transcript
}

func New(cfg Config) (*Session, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("deepgram: api key is required")
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audioconv.DefaultSampleRate
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}

	return &Session{
		cfg:         cfg,
		audio:       make(chan []byte, 64),
		transcripts: make(chan stt.Transcript, 16),
	}, nil
}

func (s *Session) Transcripts() <-chan stt.Transcript { return s.transcripts }

func (s *Session) Push(samples []float32) {
	if !s.running.Load() || len(samples) == 0 {
		return
	}
	select {
	case s.audio <- audioconv.Float32ToPCM16(samples):
	default:
		log.Warn("Deepgram send buffer full, dropping audio", "samples", len(samples))
	}
}

func (s *Session) endpoint() (string, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("model", s.cfg.Model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(s.cfg.SampleRate))
	if s.cfg.Language != "" {
		q.Set("language", s.cfg.Language)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run connects and streams until ctx is cancelled, returning ctx.Err() in
// that case. Server errors and dropped connections are returned as is.
func (s *Session) Run(ctx context.Context) error {
	endpoint, err := s.endpoint()
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+s.cfg.APIKey)

	conn, resp, err := s.cfg.Dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("deepgram connect (status %d): %s", resp.StatusCode, body)
		}
		return fmt.Errorf("deepgram connect: %w", err)
	}
	defer conn.Close()

	id := uuid.NewString()
	log.Info("Deepgram connected", "session", id, "model", s.cfg.Model)

	s.drain()
	s.running.Store(true)
	defer s.running.Store(false)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(gctx, conn) })
	g.Go(func() error { return s.writeLoop(gctx, conn) })

	err = g.Wait()
	log.Info("Deepgram disconnected", "session", id, "err", err)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// drain discards audio left over from a previous run.
func (s *Session) drain() {
	for {
		select {
		case <-s.audio:
		default:
			return
		}
	}
}

func (s *Session) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	var tick <-chan time.Time
	if s.cfg.KeepAlive > 0 {
		t := time.NewTicker(s.cfg.KeepAlive)
		defer t.Stop()
		tick = t.C
	}
	lastWrite := time.Now()

	for {
		select {
		case <-ctx.Done():
			s.closeStream(conn)
			return nil

		case pcm := <-s.audio:
			if err := conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
				return fmt.Errorf("send audio: %w", err)
			}
			lastWrite = time.Now()

		case <-tick:
			if time.Since(lastWrite) < s.cfg.KeepAlive {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`)); err != nil {
				return fmt.Errorf("send keepalive: %w", err)
			}
			lastWrite = time.Now()
		}
	}
}

// closeStream asks the server to finish and unblocks the reader.
func (s *Session) closeStream(conn *websocket.Conn) {
	deadline := time.Now().Add(time.Second)
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	_ = conn.Close()
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errors.New("deepgram closed the stream")
			}
			return fmt.Errorf("read: %w", err)
		}

		t, ok, err := parseEvent(msg)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		log.Debug("Transcript", "text", t.Text, "final", t.Final)
		select {
		case s.transcripts <- t:
		case <-ctx.Done():
			return nil
		}
	}
}

// parseEvent extracts a transcript from a v2 TurnInfo or v1 Results frame.
// Other frames report ok=false; Error frames become errors.
func parseEvent(msg []byte) (stt.Transcript, bool, error) {
	ev := gjson.ParseBytes(msg)

	switch ev.Get("type").String() {
	case "TurnInfo":
		text := ev.Get("transcript").String()
		if text == "" {
			return stt.Transcript{}, false, nil
		}
		return stt.Transcript{Text: text, Final: ev.Get("event").String() == "EndOfTurn"}, true, nil

	case "Results":
		text := ev.Get("channel.alternatives.0.transcript").String()
		if text == "" {
			return stt.Transcript{}, false, nil
		}
		return stt.Transcript{Text: text, Final: ev.Get("is_final").Bool()}, true, nil

	case "Error":
		desc := ev.Get("description").String()
		if desc == "" {
			desc = ev.Raw
		}
		return stt.Transcript{}, false, fmt.Errorf("deepgram: %s", desc)

	default:
		return stt.Transcript{}, false, nil
	}
}
