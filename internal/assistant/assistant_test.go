package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"risi/internal/audio"
	"risi/internal/ipc"
	"risi/pkg/stt"
)

const waitFor = 2 * time.Second

func recv[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitFor):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

type fakeCapture struct {
	mu       sync.Mutex
	h        audio.Handlers
	stops    int
	startErr error
	starts   chan struct{}
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{starts: make(chan struct{}, 16)}
}

func (f *fakeCapture) Start(h audio.Handlers) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.h = h
	f.mu.Unlock()
	f.starts <- struct{}{}
	return nil
}

func (f *fakeCapture) Stop() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}

func (f *fakeCapture) handlers() audio.Handlers {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.h
}

type fakeSession struct {
	transcripts chan stt.Transcript
}

func (s *fakeSession) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *fakeSession) Push([]float32)                     {}
func (s *fakeSession) Transcripts() <-chan stt.Transcript { return s.transcripts }

// flushSession transcribes on demand, like the whisper session.
type flushSession struct {
	fakeSession
	text string
}

func (s *flushSession) Flush(context.Context) error {
	if s.text != "" {
		s.transcripts <- stt.Transcript{Text: s.text, Final: true}
	}
	return nil
}

type call struct{ utterance, history string }

type fakeRouter struct {
	calls chan call
	reply func(utterance string) (string, error)
}

func newFakeRouter(reply func(string) (string, error)) *fakeRouter {
	return &fakeRouter{calls: make(chan call, 8), reply: reply}
}

func (r *fakeRouter) Run(_ context.Context, utterance, history string) (string, error) {
	r.calls <- call{utterance, history}
	return r.reply(utterance)
}

type recordingDisplay struct {
	transcripts chan string
	errs        chan error
}

func newRecordingDisplay() *recordingDisplay {
	return &recordingDisplay{transcripts: make(chan string, 16), errs: make(chan error, 16)}
}

func (d *recordingDisplay) Status(string)          {}
func (d *recordingDisplay) Activity(bool)          {}
func (d *recordingDisplay) Transcript(text string) { d.transcripts <- text }
func (d *recordingDisplay) Error(err error)        { d.errs <- err }

type harness struct {
	t        *testing.T
	c        *Controller
	capture  *fakeCapture
	router   *fakeRouter
	display  *recordingDisplay
	sessions chan *fakeSession
	cancel   context.CancelFunc
	errc     chan error
}

func start(t *testing.T, router *fakeRouter, newSession func() stt.Session, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		capture: newFakeCapture(),
		router:  router,
		display: newRecordingDisplay(),
		errc:    make(chan error, 1),
	}
	if newSession == nil {
		h.sessions = make(chan *fakeSession, 16)
		newSession = func() stt.Session {
			s := &fakeSession{transcripts: make(chan stt.Transcript, 4)}
			h.sessions <- s
			return s
		}
	}

	opts = append([]Option{WithDisplay(h.display)}, opts...)
	h.c = New(h.capture, newSession, router, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.errc <- h.c.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-h.errc:
		case <-time.After(waitFor):
			t.Errorf("Run did not return")
		}
	})
	return h
}

func (h *harness) status() ipc.ControlReply {
	h.t.Helper()
	return h.c.Handle(context.Background(), ipc.ControlMessage{Cmd: "status"})
}

// say delivers a final transcript and waits until the controller has
// taken it, then ends the utterance with silence.
func (h *harness) say(sess *fakeSession, text string) {
	h.t.Helper()
	sess.transcripts <- stt.Transcript{Text: text, Final: true}
	if got := recv(h.t, h.display.transcripts, "transcript"); got != text {
		h.t.Fatalf("displayed transcript %q, want %q", got, text)
	}
	h.capture.handlers().OnSilence()
}

func TestController_VoiceTurns(t *testing.T) {
	router := newFakeRouter(func(u string) (string, error) {
		if u == "what time is it" {
			return "noon", nil
		}
		return "sunny", nil
	})
	h := start(t, router, nil)

	recv(t, h.capture.starts, "first start")
	sess := recv(t, h.sessions, "first session")
	h.say(sess, "what time is it")

	c1 := recv(t, router.calls, "first dispatch")
	if c1.utterance != "what time is it" || c1.history != "" {
		t.Fatalf("first call = %+v", c1)
	}

	recv(t, h.capture.starts, "restart")
	sess = recv(t, h.sessions, "second session")
	if r := h.status(); r.State != string(StateListening) {
		t.Fatalf("state after turn = %q, want listening", r.State)
	}

	h.say(sess, "and tomorrow")
	c2 := recv(t, router.calls, "second dispatch")
	wantHistory := "USER: what time is it\nASSISTANT: noon"
	if c2.utterance != "and tomorrow" || c2.history != wantHistory {
		t.Fatalf("second call = %+v, want history %q", c2, wantHistory)
	}
	recv(t, h.capture.starts, "second restart")
}

func TestController_SilenceWithoutTranscriptKeepsListening(t *testing.T) {
	router := newFakeRouter(func(string) (string, error) { return "ok", nil })
	h := start(t, router, nil)

	recv(t, h.capture.starts, "start")
	sess := recv(t, h.sessions, "session")

	h.capture.handlers().OnSilence()
	if r := h.status(); r.State != string(StateListening) {
		t.Fatalf("state = %q, want listening", r.State)
	}

	h.say(sess, "hello")
	if c := recv(t, router.calls, "dispatch"); c.utterance != "hello" {
		t.Fatalf("utterance = %q", c.utterance)
	}
}

func TestController_FlushingSession(t *testing.T) {
	router := newFakeRouter(func(string) (string, error) { return "done", nil })

	texts := make(chan string, 4)
	texts <- ""
	texts <- "turn on the lights"
	newSession := func() stt.Session {
		var text string
		select {
		case text = <-texts:
		default:
		}
		return &flushSession{fakeSession: fakeSession{transcripts: make(chan stt.Transcript, 4)}, text: text}
	}

	h := start(t, router, newSession)

	// nothing transcribed: listen again without dispatching
	recv(t, h.capture.starts, "start")
	h.capture.handlers().OnSilence()
	recv(t, h.capture.starts, "restart after empty flush")

	h.capture.handlers().OnSilence()
	if c := recv(t, router.calls, "dispatch"); c.utterance != "turn on the lights" {
		t.Fatalf("utterance = %q", c.utterance)
	}
	if got := recv(t, h.display.transcripts, "transcript"); got != "turn on the lights" {
		t.Fatalf("displayed %q", got)
	}
}

func TestController_RouterErrorKeepsUserTurn(t *testing.T) {
	boom := errors.New("model unavailable")
	router := newFakeRouter(func(string) (string, error) { return "", boom })
	h := start(t, router, nil)

	recv(t, h.capture.starts, "start")
	sess := recv(t, h.sessions, "session")
	h.say(sess, "hello")

	recv(t, router.calls, "dispatch")
	if err := recv(t, h.display.errs, "error"); !errors.Is(err, boom) {
		t.Fatalf("displayed error %v, want %v", err, boom)
	}
	recv(t, h.capture.starts, "restart")

	h.cancel()
	h.errc <- recv(t, h.errc, "Run exit")

	turns := h.c.History().Snapshot()
	if len(turns) != 1 || turns[0].Content != "hello" {
		t.Fatalf("history = %+v, want just the user turn", turns)
	}
}

func TestController_Ask(t *testing.T) {
	router := newFakeRouter(func(u string) (string, error) { return "echo " + u, nil })
	h := start(t, router, nil)
	recv(t, h.capture.starts, "start")

	r := h.c.Handle(context.Background(), ipc.ControlMessage{Cmd: "ask", Text: "ping"})
	if !r.OK || r.Text != "echo ping" {
		t.Fatalf("ask reply = %+v", r)
	}
	if r.State != string(StateListening) {
		t.Fatalf("ask reply state = %q, want listening again", r.State)
	}
	if c := recv(t, router.calls, "dispatch"); c.utterance != "ping" {
		t.Fatalf("utterance = %q", c.utterance)
	}

	if r := h.c.Handle(context.Background(), ipc.ControlMessage{Cmd: "ask"}); r.OK || r.Error == "" {
		t.Fatalf("empty ask = %+v, want an error", r)
	}
}

func TestController_Commands(t *testing.T) {
	router := newFakeRouter(func(string) (string, error) { return "", nil })
	h := start(t, router, nil, WithAutoListen(false))

	send := func(cmd string) ipc.ControlReply {
		return h.c.Handle(context.Background(), ipc.ControlMessage{Cmd: cmd})
	}

	if r := send("status"); !r.OK || r.State != string(StateIdle) {
		t.Fatalf("status = %+v", r)
	}
	if r := send("start"); r.State != string(StateListening) {
		t.Fatalf("start = %+v", r)
	}
	recv(t, h.capture.starts, "start")

	if r := send("toggle"); r.State != string(StateIdle) {
		t.Fatalf("toggle off = %+v", r)
	}
	if r := send("toggle"); r.State != string(StateListening) {
		t.Fatalf("toggle on = %+v", r)
	}
	recv(t, h.capture.starts, "toggle start")

	if r := send("stop"); r.State != string(StateIdle) {
		t.Fatalf("stop = %+v", r)
	}
	if r := send("dance"); r.OK || r.Error == "" {
		t.Fatalf("unknown command = %+v", r)
	}
}

func TestController_CaptureFailure(t *testing.T) {
	router := newFakeRouter(func(string) (string, error) { return "", nil })
	h := start(t, router, nil)
	recv(t, h.capture.starts, "start")

	gone := errors.New("device unplugged")
	h.capture.handlers().OnFinished(gone)

	if err := recv(t, h.display.errs, "error"); !errors.Is(err, gone) {
		t.Fatalf("displayed %v", err)
	}
	if r := h.status(); r.State != string(StateIdle) {
		t.Fatalf("state = %q, want idle", r.State)
	}
}

func TestController_StartFailure(t *testing.T) {
	router := newFakeRouter(func(string) (string, error) { return "", nil })
	h := start(t, router, nil, WithAutoListen(false))
	h.capture.startErr = errors.New("no input device")

	r := h.c.Handle(context.Background(), ipc.ControlMessage{Cmd: "start"})
	if r.State != string(StateIdle) {
		t.Fatalf("start = %+v, want idle", r)
	}
	recv(t, h.display.errs, "error")
}

func TestController_ExitWhenSourceRunsDry(t *testing.T) {
	router := newFakeRouter(func(string) (string, error) { return "", nil })
	h := start(t, router, nil, WithExitOnCaptureEnd(true))
	recv(t, h.capture.starts, "start")

	h.capture.handlers().OnFinished(nil)
	err := recv(t, h.errc, "Run exit")
	// the cleanup waits for Run as well
	h.errc <- err
	if err != nil {
		t.Fatalf("Run = %v", err)
	}
}

type gate struct{ release chan struct{} }

func (g gate) Wait(ctx context.Context) error {
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestController_HoldMicWaitsForSpeech(t *testing.T) {
	router := newFakeRouter(func(string) (string, error) { return "a long answer", nil })
	g := gate{release: make(chan struct{})}
	h := start(t, router, nil, WithHoldMic(g))

	recv(t, h.capture.starts, "start")
	sess := recv(t, h.sessions, "session")
	h.say(sess, "tell me a story")
	recv(t, router.calls, "dispatch")

	if r := h.status(); r.State != string(StateProcessing) {
		t.Fatalf("state while speaking = %q, want processing", r.State)
	}

	close(g.release)
	recv(t, h.capture.starts, "restart after speech")
}

func TestController_CueOnEveryStart(t *testing.T) {
	router := newFakeRouter(func(string) (string, error) { return "ok", nil })
	cues := make(chan struct{}, 8)
	cue := func(context.Context) error {
		cues <- struct{}{}
		return errors.New("no speaker")
	}
	h := start(t, router, nil, WithCue(cue))

	recv(t, cues, "first cue")
	recv(t, h.capture.starts, "start")
	sess := recv(t, h.sessions, "session")
	h.say(sess, "hi")
	recv(t, router.calls, "dispatch")
	recv(t, cues, "second cue")
	recv(t, h.capture.starts, "restart")
}
