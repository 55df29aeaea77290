package ipc

import (
	"context"
	"errors"
	"strings"
)

// Engine is what control commands act on; assistant.Engine satisfies it.
type Engine interface {
	Ask(ctx context.Context, text string) (string, error)
	StartListening(ctx context.Context) error
	StopListening()
	IsListening() bool
	TranscribeFile(ctx context.Context, path string) (string, error)
	Exit()
}

// Dispatcher maps requests onto engine calls. Listening is started on base so
// it outlives the control connection.
func Dispatcher(base context.Context, e Engine) Handler {
	return func(ctx context.Context, req Request) Response {
		switch strings.ToLower(strings.TrimSpace(req.Cmd)) {
		case CmdListen:
			if err := e.StartListening(base); err != nil {
				return fail(err)
			}
			return Response{OK: true, Listening: true}
		case CmdStop:
			e.StopListening()
			return Response{OK: true}
		case CmdSend:
			reply, err := e.Ask(ctx, req.Text)
			if err != nil {
				return fail(err)
			}
			return Response{OK: true, Text: reply}
		case CmdFile:
			if req.Path == "" {
				return fail(errors.New("file: missing path"))
			}
			text, err := e.TranscribeFile(ctx, req.Path)
			if err != nil {
				return fail(err)
			}
			return Response{OK: true, Text: text}
		case CmdExit:
			go e.Exit()
			return Response{OK: true}
		case CmdStatus:
			return Response{OK: true, Listening: e.IsListening()}
		default:
			return Response{Error: "unknown command " + req.Cmd}
		}
	}
}

func fail(err error) Response {
	return Response{Error: err.Error()}
}
