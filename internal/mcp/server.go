// Package mcp exposes the running assistant to MCP clients over stdio by
// forwarding tool calls to the control socket.
package mcp

import (
	"context"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"ladybot/internal/config"
	"ladybot/internal/ipc"
)

// Sender delivers one control request; ipc.Send bound to a socket path.
type Sender func(ctx context.Context, req ipc.Request) (ipc.Response, error)

func SocketSender(path string) Sender {
	return func(ctx context.Context, req ipc.Request) (ipc.Response, error) {
		return ipc.Send(ctx, path, req)
	}
}

type Server struct {
	send Sender
	srv  *sdk.Server
}

func NewServer(send Sender) *Server {
	s := &Server{
		send: send,
		srv: sdk.NewServer(&sdk.Implementation{
			Name:    "ladybot",
			Version: config.Version,
		}, nil),
	}
	s.registerTools()
	return s
}

// Run serves on stdin/stdout until the client disconnects or ctx ends.
func (s *Server) Run(ctx context.Context) error {
	return s.srv.Run(ctx, &sdk.StdioTransport{})
}

type SendMessageArgs struct {
	Text string `json:"text" jsonschema:"the message to send to Ladybot"`
}

type TranscribeFileArgs struct {
	Path string `json:"path" jsonschema:"absolute path of a wav, mp3, ogg or opus voice message"`
}

type NoArgs struct{}

func (s *Server) registerTools() {
	sdk.AddTool(s.srv, &sdk.Tool{
		Name:        "send_message",
		Description: "Send a typed message to Ladybot and return its spoken reply",
	}, s.handleSendMessage)

	sdk.AddTool(s.srv, &sdk.Tool{
		Name:        "start_listening",
		Description: "Start the microphone recognition loop",
	}, s.handleStartListening)

	sdk.AddTool(s.srv, &sdk.Tool{
		Name:        "stop_listening",
		Description: "Stop the microphone recognition loop",
	}, s.handleStopListening)

	sdk.AddTool(s.srv, &sdk.Tool{
		Name:        "transcribe_file",
		Description: "Transcribe a recorded voice message and run it as a turn",
	}, s.handleTranscribeFile)

	sdk.AddTool(s.srv, &sdk.Tool{
		Name:        "status",
		Description: "Report whether Ladybot is listening",
	}, s.handleStatus)
}

func (s *Server) handleSendMessage(ctx context.Context, _ *sdk.CallToolRequest, args SendMessageArgs) (*sdk.CallToolResult, any, error) {
	res, err := s.send(ctx, ipc.Request{Cmd: ipc.CmdSend, Text: args.Text})
	if err != nil {
		return nil, nil, fmt.Errorf("send_message: %w", err)
	}
	return text(res.Text), nil, nil
}

func (s *Server) handleStartListening(ctx context.Context, _ *sdk.CallToolRequest, _ NoArgs) (*sdk.CallToolResult, any, error) {
	if _, err := s.send(ctx, ipc.Request{Cmd: ipc.CmdListen}); err != nil {
		return nil, nil, fmt.Errorf("start_listening: %w", err)
	}
	return text("listening"), nil, nil
}

func (s *Server) handleStopListening(ctx context.Context, _ *sdk.CallToolRequest, _ NoArgs) (*sdk.CallToolResult, any, error) {
	if _, err := s.send(ctx, ipc.Request{Cmd: ipc.CmdStop}); err != nil {
		return nil, nil, fmt.Errorf("stop_listening: %w", err)
	}
	return text("stopped"), nil, nil
}

func (s *Server) handleTranscribeFile(ctx context.Context, _ *sdk.CallToolRequest, args TranscribeFileArgs) (*sdk.CallToolResult, any, error) {
	res, err := s.send(ctx, ipc.Request{Cmd: ipc.CmdFile, Path: args.Path})
	if err != nil {
		return nil, nil, fmt.Errorf("transcribe_file: %w", err)
	}
	return text(res.Text), nil, nil
}

func (s *Server) handleStatus(ctx context.Context, _ *sdk.CallToolRequest, _ NoArgs) (*sdk.CallToolResult, any, error) {
	res, err := s.send(ctx, ipc.Request{Cmd: ipc.CmdStatus})
	if err != nil {
		return nil, nil, fmt.Errorf("status: %w", err)
	}
	return text(fmt.Sprintf("listening: %v", res.Listening)), nil, nil
}

func text(s string) *sdk.CallToolResult {
	return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: s}}}
}
