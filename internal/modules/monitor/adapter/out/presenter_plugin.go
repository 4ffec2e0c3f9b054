package out

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	pluginrpc "appguard/internal/modules/monitor/adapter/out/rpc"
	"appguard/internal/modules/monitor/domain"
)

const defaultPluginStartTimeout = 3 * time.Second

// PluginPresenter runs an out-of-process presenter over go-plugin gRPC. The
// plugin process is started on first use and kept until Close.
type PluginPresenter struct {
	name   string
	binary string
	// sha256 pins the binary when set.
	sha256 string

	mu     sync.Mutex
	client *plugin.Client
	rpc    pluginrpc.PresenterClient
	kinds  map[domain.PayloadKind]bool
}

func NewPluginPresenter(name, binary, sha256 string) *PluginPresenter {
	return &PluginPresenter{name: name, binary: binary, sha256: sha256}
}

func (p *PluginPresenter) Name() string {
	return "plugin:" + p.name
}

// Supports is optimistic until the plugin has reported its kinds.
func (p *PluginPresenter) Supports(kind domain.PayloadKind) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.kinds == nil {
		return true
	}
	return p.kinds[kind]
}

func (p *PluginPresenter) Present(ctx context.Context, alert domain.Alert) error {
	client, err := p.connect(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPresentationFailure, err)
	}
	if !p.Supports(alert.Kind) {
		return fmt.Errorf("%w: plugin %s does not handle %s alerts", domain.ErrPresentationFailure, p.name, alert.Kind)
	}
	resp, err := client.Present(ctx, &pluginrpc.PresentRequest{
		AlertID:          alert.ID,
		AppID:            alert.AppID,
		Kind:             string(alert.Kind),
		Content:          alert.Content,
		Message:          alert.Message,
		ThresholdSeconds: int64(alert.Threshold / time.Second),
		ElapsedSeconds:   int64(alert.Elapsed / time.Second),
		StartedAtUnix:    alert.StartedAt.Unix(),
	})
	if err != nil {
		p.reset()
		return fmt.Errorf("%w: plugin %s: %v", domain.ErrPresentationFailure, p.name, err)
	}
	if !resp.Delivered {
		return fmt.Errorf("%w: plugin %s declined: %s", domain.ErrPresentationFailure, p.name, resp.Detail)
	}
	return nil
}

// Close stops the plugin process.
func (p *PluginPresenter) Close() {
	p.reset()
}

func (p *PluginPresenter) connect(ctx context.Context) (pluginrpc.PresenterClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rpc != nil && p.client != nil && !p.client.Exited() {
		return p.rpc, nil
	}
	if p.sha256 != "" {
		if err := checksumMatches(p.binary, p.sha256); err != nil {
			return nil, err
		}
	}

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  pluginrpc.HandshakeConfig,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolGRPC},
		Plugins:          pluginrpc.PluginMap(nil),
		Cmd:              exec.Command(p.binary),
		Managed:          true,
		StartTimeout:     defaultPluginStartTimeout,
		Logger:           hclog.New(&hclog.LoggerOptions{Output: io.Discard, Level: hclog.NoLevel}),
	})
	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("start plugin client: %w", err)
	}
	raw, err := rpcClient.Dispense(pluginrpc.PluginMapKey)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("dispense plugin: %w", err)
	}
	typed, ok := raw.(pluginrpc.PresenterClient)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("plugin rpc client type mismatch")
	}
	meta, err := typed.GetMetadata(ctx)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("get metadata: %w", err)
	}
	kinds := make(map[domain.PayloadKind]bool, len(meta.Kinds))
	for _, k := range meta.Kinds {
		kinds[domain.PayloadKind(k)] = true
	}

	p.client = client
	p.rpc = typed
	p.kinds = kinds
	return typed, nil
}

func (p *PluginPresenter) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Kill()
	}
	p.client = nil
	p.rpc = nil
}

func checksumMatches(path, expected string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read plugin binary: %w", err)
	}
	hash := sha256.Sum256(payload)
	if hex.EncodeToString(hash[:]) != expected {
		return fmt.Errorf("plugin checksum mismatch: %s", filepath.Base(path))
	}
	return nil
}
