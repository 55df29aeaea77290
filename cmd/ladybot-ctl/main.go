package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	cli "github.com/spf13/pflag"

	"ladybot/internal/ipc"
)

const usage = `usage: ladybot-ctl [flags] <command>

commands:
  listen          start speech recognition
  stop            stop speech recognition
  send <text>     type a message and print the reply
  file <path>     transcribe a voice message and run it as a turn
  status          print whether ladybot is listening
  exit            close ladybot
`

func main() {
	socket := cli.StringP("socket", "s", envOr("LADYBOT_SOCKET", ipc.DefaultSocketPath()), "Control socket path")
	timeout := cli.DurationP("timeout", "t", 2*time.Minute, "How long to wait for a reply")
	cli.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		cli.PrintDefaults()
	}
	cli.Parse()

	req, err := request(cli.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		cli.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	res, err := ipc.Send(ctx, *socket, req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ladybot-ctl:", err)
		os.Exit(1)
	}

	switch {
	case req.Cmd == ipc.CmdStatus:
		fmt.Println("listening:", res.Listening)
	case res.Text != "":
		fmt.Println(res.Text)
	}
}

func request(args []string) (ipc.Request, error) {
	if len(args) == 0 {
		return ipc.Request{}, fmt.Errorf("missing command")
	}
	cmd, rest := args[0], strings.Join(args[1:], " ")
	switch cmd {
	case ipc.CmdListen, ipc.CmdStop, ipc.CmdExit, ipc.CmdStatus:
		return ipc.Request{Cmd: cmd}, nil
	case ipc.CmdSend:
		if strings.TrimSpace(rest) == "" {
			return ipc.Request{}, fmt.Errorf("send: missing text")
		}
		return ipc.Request{Cmd: cmd, Text: rest}, nil
	case ipc.CmdFile:
		if rest == "" {
			return ipc.Request{}, fmt.Errorf("file: missing path")
		}
		abs, err := filepath.Abs(rest)
		if err != nil {
			return ipc.Request{}, err
		}
		return ipc.Request{Cmd: cmd, Path: abs}, nil
	default:
		return ipc.Request{}, fmt.Errorf("unknown command %q", cmd)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
