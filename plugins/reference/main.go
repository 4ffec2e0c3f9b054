package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	pluginrpc "appguard/internal/modules/monitor/adapter/out/rpc"

	"github.com/hashicorp/go-plugin"
)

// LogEnv names the file the reference presenter appends alerts to.
const LogEnv = "APPGUARD_REFERENCE_LOG"

type server struct{}

func (s *server) GetMetadata(_ context.Context, _ *pluginrpc.Empty) (*pluginrpc.Metadata, error) {
	return &pluginrpc.Metadata{
		Name:    "reference",
		Version: "1.0.0",
		Kinds:   []string{"text", "image"},
	}, nil
}

func (s *server) Present(_ context.Context, in *pluginrpc.PresentRequest) (*pluginrpc.PresentResponse, error) {
	path := strings.TrimSpace(os.Getenv(LogEnv))
	if path == "" {
		return &pluginrpc.PresentResponse{Delivered: false, Detail: LogEnv + " is not set"}, nil
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode alert: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()
	if _, err := file.Write(append(raw, '\n')); err != nil {
		return nil, fmt.Errorf("write log: %w", err)
	}
	return &pluginrpc.PresentResponse{Delivered: true, Detail: "logged"}, nil
}

func main() {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: pluginrpc.HandshakeConfig,
		Plugins:         pluginrpc.PluginMap(&server{}),
		GRPCServer:      plugin.DefaultGRPCServer,
	})
}
