package main

import (
	"context"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"risi/internal/display"
	"risi/internal/notify"
)

var askCmd = &cobra.Command{
	Use:   "ask <text>",
	Short: "Answer one request without listening",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	// ask never transcribes, so no speech-to-text key is needed
	cfg.STT.Provider = ""
	if err := cfg.CheckCredentials(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	hc, err := newHTTPClient(cfg)
	if err != nil {
		return err
	}

	console := display.NewConsole(os.Stdout, 100)
	speech, err := newSpeech(cfg, notify.NewPlayer(), hc)
	if err != nil {
		return err
	}
	// Close lets queued speech finish
	defer speech.Close()

	router, err := newRouter(ctx, cfg, hc, echoSpeaker{queue: speech, console: console}, console)
	if err != nil {
		return err
	}

	text := strings.Join(args, " ")
	console.Status("Processing: " + text)
	_, err = router.Run(ctx, text, "")
	return err
}
