package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	cli "github.com/spf13/pflag"

	"risi/internal/ipc"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: risi-ctl [flags] start|stop|toggle|status|ask <text>\n\n")
	cli.PrintDefaults()
}

func main() {
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath, "Control socket path")
	timeout := cli.DurationP("timeout", "t", 5*time.Minute, "How long to wait for an answer")
	cli.Usage = usage
	cli.Parse()

	args := cli.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	reply, err := ipc.Send(ctx, *socket, ipc.ControlMessage{
		Cmd:  args[0],
		Text: strings.Join(args[1:], " "),
	})
	if err != nil {
		fmt.Println("risi not running:", err)
		os.Exit(1)
	}

	if reply.Error != "" {
		fmt.Fprintln(os.Stderr, "error:", reply.Error)
		os.Exit(1)
	}
	if reply.Text != "" {
		fmt.Println(reply.Text)
	}
	if reply.State != "" {
		fmt.Println("state:", reply.State)
	}
}
