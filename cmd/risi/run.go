package main

import (
	"context"
	log "log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"risi/internal/assistant"
	"risi/internal/conversation"
	"risi/internal/display"
	"risi/internal/ipc"
	"risi/internal/notify"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the assistant daemon",
	Long: `Run listens continuously and answers every utterance. It is controlled
through the unix socket with risi-ctl (start, stop, toggle, status, ask).`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	if err := cfg.CheckCredentials(); err != nil {
		return err
	}

	log.Info("Booting up")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hc, err := newHTTPClient(cfg)
	if err != nil {
		return err
	}

	console := display.NewConsole(os.Stdout, 100)
	player := notify.NewPlayer()

	speech, err := newSpeech(cfg, player, hc)
	if err != nil {
		return err
	}
	defer speech.Close()

	router, err := newRouter(ctx, cfg, hc, echoSpeaker{queue: speech, console: console}, console)
	if err != nil {
		return err
	}

	sessions, closeSTT, err := newSessions(cfg)
	if err != nil {
		return err
	}
	defer closeSTT()

	capture, closeCapture, err := newCapture(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCapture()

	opts := []assistant.Option{
		assistant.WithDisplay(console),
		assistant.WithHistory(conversation.NewHistory(cfg.Agent.MaxExchanges)),
		assistant.WithCue(func(ctx context.Context) error { return player.Cue(ctx, cfg.Cue) }),
		assistant.WithExitOnCaptureEnd(cfg.Audio.Input != ""),
	}
	if cfg.TTS.HoldMic {
		opts = append(opts, assistant.WithHoldMic(speech))
	}
	ctrl := assistant.New(capture, sessions, router, opts...)

	srv, err := ipc.Listen(cfg.Socket, ctrl.Handle)
	if err != nil {
		return err
	}
	defer srv.Close()

	log.Info("Boot up - successful", "stt", cfg.STT.Provider, "tts", cfg.TTS.Provider, "llm", cfg.LLM.Provider)

	return ctrl.Run(ctx)
}
