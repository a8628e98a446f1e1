// Package assistant is the daemon's controller. A single goroutine owns the
// listening state and conversation history; capture, transcription and
// control requests only post events to it.
package assistant

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"risi/internal/audio"
	"risi/internal/bridge"
	"risi/internal/conversation"
	"risi/internal/ipc"
	"risi/pkg/stt"
)

const activityThreshold = 0.01

type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateProcessing State = "processing"
)

var ErrBusy = errors.New("already processing a request")

type Capture interface {
	Start(h audio.Handlers) error
	Stop()
}

// Dispatcher answers one utterance given the rendered history.
type Dispatcher interface {
	Run(ctx context.Context, utterance, history string) (string, error)
}

type Display interface {
	Status(text string)
	Activity(active bool)
	Transcript(text string)
	Error(err error)
}

// Waiter blocks until queued speech has been played.
type Waiter interface {
	Wait(ctx context.Context) error
}

type Option func(*Controller)

func WithDisplay(d Display) Option {
	return func(c *Controller) { c.display = d }
}

// WithCue plays a sound every time listening starts.
func WithCue(cue func(ctx context.Context) error) Option {
	return func(c *Controller) { c.cue = cue }
}

// WithHoldMic keeps the microphone closed until w reports that speech
// has finished.
func WithHoldMic(w Waiter) Option {
	return func(c *Controller) { c.speech = w }
}

func WithHistory(h *conversation.History) Option {
	return func(c *Controller) { c.history = h }
}

// WithAutoListen starts listening as soon as Run begins. On by default.
func WithAutoListen(on bool) Option {
	return func(c *Controller) { c.autoListen = on }
}

// WithExitOnCaptureEnd makes Run return once the audio source runs dry and
// nothing is left to process. Used when replaying a recording.
func WithExitOnCaptureEnd(on bool) Option {
	return func(c *Controller) { c.exitOnCaptureEnd = on }
}

type Controller struct {
	capture    Capture
	newSession func() stt.Session
	router     Dispatcher

	display          Display
	cue              func(ctx context.Context) error
	speech           Waiter
	history          *conversation.History
	autoListen       bool
	exitOnCaptureEnd bool

	events   chan event
	done     chan struct{}
	inflight sync.WaitGroup

	// owned by the loop goroutine
	state       State
	want        bool // listen again once processing ends
	instruction string
	sess        *listening
	pending     chan ipc.ControlReply
	gen         uint64
}

func New(capture Capture, newSession func() stt.Session, router Dispatcher, opts ...Option) *Controller {
	c := &Controller{
		capture:    capture,
		newSession: newSession,
		router:     router,
		display:    nopDisplay{},
		cue:        func(context.Context) error { return nil },
		history:    conversation.NewHistory(conversation.DefaultMaxExchanges),
		autoListen: true,
		events:     make(chan event, 64),
		done:       make(chan struct{}),
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// History is the conversation so far. Only read it once Run has returned.
func (c *Controller) History() *conversation.History { return c.history }

// Run processes events until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if c.autoListen {
		c.want = true
		c.startListening(ctx)
	}

	for {
		var transcripts <-chan stt.Transcript
		if c.sess != nil {
			transcripts = c.sess.session.Transcripts()
		}

		select {
		case <-ctx.Done():
			c.shutdown(cancel)
			return nil

		case t := <-transcripts:
			c.onTranscript(t)

		case ev := <-c.events:
			if stop := c.handle(ctx, ev); stop {
				c.shutdown(cancel)
				return nil
			}
		}
	}
}

// Handle delivers a control command to the loop and waits for its answer.
// It has the signature of an ipc.Handler.
func (c *Controller) Handle(ctx context.Context, msg ipc.ControlMessage) ipc.ControlReply {
	reply := make(chan ipc.ControlReply, 1)

	select {
	case c.events <- commandEvent{msg: msg, reply: reply}:
	case <-c.done:
		return ipc.ControlReply{Error: "controller stopped"}
	case <-ctx.Done():
		return ipc.ControlReply{Error: ctx.Err().Error()}
	}

	select {
	case r := <-reply:
		return r
	case <-c.done:
		return ipc.ControlReply{Error: "controller stopped"}
	case <-ctx.Done():
		return ipc.ControlReply{Error: ctx.Err().Error()}
	}
}

func (c *Controller) handle(ctx context.Context, ev event) (stop bool) {
	switch ev := ev.(type) {
	case volumeEvent:
		if c.current(ev.gen) {
			c.display.Activity(ev.level > activityThreshold)
		}

	case silenceEvent:
		if c.current(ev.gen) {
			c.onSilence(ctx)
		}

	case captureEndedEvent:
		if !c.current(ev.gen) {
			return false
		}
		if ev.err != nil {
			log.Error("Capture failed", "err", ev.err)
			c.display.Error(ev.err)
		} else {
			log.Info("Audio source finished")
		}
		c.want = false
		c.stopListening(ctx, false)
		c.setState(StateIdle)
		return c.exitOnCaptureEnd

	case sessionErrorEvent:
		if c.current(ev.gen) {
			log.Error("Transcription failed", "err", ev.err)
			c.display.Error(ev.err)
			c.want = false
			c.stopListening(ctx, false)
			c.setState(StateIdle)
		}

	case sessionEndedEvent:
		if c.current(ev.gen) {
			log.Warn("Transcription session ended")
			c.want = false
			c.stopListening(ctx, false)
			c.setState(StateIdle)
		}

	case dispatchDoneEvent:
		c.onDispatchDone(ctx, ev)
		if c.exitOnCaptureEnd && !c.want && c.state == StateIdle {
			return true
		}

	case commandEvent:
		if r, later := c.command(ctx, ev.msg, ev.reply); !later {
			ev.reply <- r
		}
	}
	return false
}

func (c *Controller) current(gen uint64) bool {
	return c.sess != nil && c.sess.gen == gen
}

func (c *Controller) onTranscript(t stt.Transcript) {
	text := strings.TrimSpace(t.Text)
	if text == "" {
		return
	}
	// newer transcripts cover the whole utterance so far
	c.instruction = text
	if t.Final {
		c.display.Transcript(text)
	}
}

func (c *Controller) onSilence(ctx context.Context) {
	_, flushes := c.sess.session.(stt.Flusher)

	if c.instruction == "" && !flushes {
		// the streaming session has not produced text yet, keep listening
		log.Debug("Silence without transcript")
		return
	}

	c.stopListening(ctx, true)

	if c.instruction == "" {
		log.Debug("Nothing transcribed, listening again")
		c.startListening(ctx)
		return
	}

	text := c.instruction
	c.instruction = ""
	c.dispatch(ctx, text, nil)
}

// command applies one control request. later is set when the answer is
// sent by the dispatch the command started.
func (c *Controller) command(ctx context.Context, msg ipc.ControlMessage, reply chan ipc.ControlReply) (r ipc.ControlReply, later bool) {
	log.Debug("Command", "cmd", msg.Cmd, "state", c.state)

	switch msg.Cmd {
	case "start":
		c.want = true
		if c.state == StateIdle {
			c.startListening(ctx)
		}

	case "stop":
		c.want = false
		if c.state == StateListening {
			c.stopListening(ctx, false)
			c.setState(StateIdle)
		}

	case "toggle":
		if c.want {
			return c.command(ctx, ipc.ControlMessage{Cmd: "stop"}, reply)
		}
		return c.command(ctx, ipc.ControlMessage{Cmd: "start"}, reply)

	case "status":

	case "ask":
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			return c.fail(errors.New("ask needs text")), false
		}
		if c.state == StateProcessing {
			return c.fail(ErrBusy), false
		}
		if c.state == StateListening {
			c.stopListening(ctx, false)
		}
		c.instruction = ""
		c.dispatch(ctx, text, reply)
		return ipc.ControlReply{}, true

	default:
		return c.fail(fmt.Errorf("unknown command %q", msg.Cmd)), false
	}

	return ipc.ControlReply{OK: true, State: string(c.state)}, false
}

func (c *Controller) fail(err error) ipc.ControlReply {
	return ipc.ControlReply{Error: err.Error(), State: string(c.state)}
}

func (c *Controller) setState(s State) {
	if c.state != s {
		log.Debug("State", "from", c.state, "to", s)
	}
	c.state = s
}

func (c *Controller) startListening(ctx context.Context) {
	cueCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	if err := c.cue(cueCtx); err != nil {
		log.Warn("Failed to play cue", "err", err)
	}
	cancel()

	c.gen++
	l := &listening{
		id:      uuid.NewString(),
		gen:     c.gen,
		session: c.newSession(),
		quit:    make(chan struct{}),
	}

	// posts from capture and bridge goroutines give up once the session is
	// being torn down, so Stop never waits on a full queue
	post := func(ev event) {
		select {
		case c.events <- ev:
		case <-l.quit:
		}
	}

	l.bridge = bridge.New(
		func() bridge.Work { return l.session.Run },
		bridge.Events{
			OnError:    func(err error) { post(sessionErrorEvent{gen: l.gen, err: err}) },
			OnFinished: func() { post(sessionEndedEvent{gen: l.gen}) },
		},
	)
	if err := l.bridge.Start(); err != nil {
		c.listenFailed(fmt.Errorf("start transcription: %w", err))
		return
	}

	err := c.capture.Start(audio.Handlers{
		OnVolume: func(level float64) {
			select {
			case c.events <- volumeEvent{gen: l.gen, level: level}:
			default:
			}
		},
		OnAudio:    func(ch audio.Chunk) { l.session.Push(ch.Samples) },
		OnSilence:  func() { post(silenceEvent{gen: l.gen}) },
		OnFinished: func(err error) { post(captureEndedEvent{gen: l.gen, err: err}) },
	})
	if err != nil {
		close(l.quit)
		l.bridge.Stop()
		c.listenFailed(fmt.Errorf("start capture: %w", err))
		return
	}

	c.sess = l
	c.instruction = ""
	c.setState(StateListening)
	c.display.Status("Listening")
	log.Info("Listening", "session", l.id)
}

func (c *Controller) listenFailed(err error) {
	log.Error("Failed to start listening", "err", err)
	c.display.Error(err)
	c.want = false
	c.setState(StateIdle)
}

// stopListening tears down the current session. With flush, a session that
// buffers audio is asked to transcribe it first; this blocks the loop for
// the duration of the transcription.
func (c *Controller) stopListening(ctx context.Context, flush bool) {
	l := c.sess
	if l == nil {
		return
	}
	c.sess = nil

	close(l.quit)
	c.capture.Stop()

	if f, ok := l.session.(stt.Flusher); ok && flush {
		fctx, cancel := context.WithTimeout(ctx, time.Minute)
		if err := f.Flush(fctx); err != nil {
			log.Error("Failed to transcribe", "err", err)
			c.display.Error(err)
		}
		cancel()
	}

	for drained := false; !drained; {
		select {
		case t := <-l.session.Transcripts():
			c.onTranscript(t)
		default:
			drained = true
		}
	}

	l.bridge.Stop()
	c.display.Activity(false)
	log.Debug("Stopped listening", "session", l.id)
}

func (c *Controller) dispatch(ctx context.Context, text string, reply chan ipc.ControlReply) {
	c.setState(StateProcessing)
	c.pending = reply
	c.display.Status("Processing: " + text)

	history := c.history.Format()

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()

		out, err := c.router.Run(ctx, text, history)
		if c.speech != nil {
			if werr := c.speech.Wait(ctx); werr != nil && ctx.Err() == nil {
				log.Warn("Failed waiting for speech", "err", werr)
			}
		}

		select {
		case c.events <- dispatchDoneEvent{text: text, out: out, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (c *Controller) onDispatchDone(ctx context.Context, ev dispatchDoneEvent) {
	c.history.AddUser(ev.text)
	if ev.err == nil && ev.out != "" {
		c.history.AddAssistant(ev.out)
	}
	if ev.err != nil {
		c.display.Error(ev.err)
	}

	c.setState(StateIdle)

	if c.want {
		c.startListening(ctx)
	} else {
		c.display.Status("Idle")
	}

	if c.pending != nil {
		r := ipc.ControlReply{OK: ev.err == nil, Text: ev.out, State: string(c.state)}
		if ev.err != nil {
			r.Error = ev.err.Error()
		}
		c.pending <- r
		c.pending = nil
	}
}

func (c *Controller) shutdown(cancel context.CancelFunc) {
	c.want = false
	c.stopListening(context.Background(), false)

	cancel()
	c.inflight.Wait()

	if c.pending != nil {
		c.pending <- ipc.ControlReply{Error: "shutting down", State: string(StateIdle)}
		c.pending = nil
	}
	c.setState(StateIdle)
	log.Info("Controller stopped")
}

type listening struct {
	id      string
	gen     uint64
	session stt.Session
	bridge  *bridge.Bridge
	quit    chan struct{}
}

type event interface{ isEvent() }

type (
	volumeEvent struct {
		gen   uint64
		level float64
	}
	silenceEvent      struct{ gen uint64 }
	captureEndedEvent struct {
		gen uint64
		err error
	}
	sessionErrorEvent struct {
		gen uint64
		err error
	}
	sessionEndedEvent struct{ gen uint64 }
	dispatchDoneEvent struct {
		text string
		out  string
		err  error
	}
	commandEvent struct {
		msg   ipc.ControlMessage
		reply chan ipc.ControlReply
	}
)

func (volumeEvent) isEvent()       {}
func (silenceEvent) isEvent()      {}
func (captureEndedEvent) isEvent() {}
func (sessionErrorEvent) isEvent() {}
func (sessionEndedEvent) isEvent() {}
func (dispatchDoneEvent) isEvent() {}
func (commandEvent) isEvent()      {}

type nopDisplay struct{}

func (nopDisplay) Status(string)     {}
func (nopDisplay) Activity(bool)     {}
func (nopDisplay) Transcript(string) {}
func (nopDisplay) Error(error)       {}
