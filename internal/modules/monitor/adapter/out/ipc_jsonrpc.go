package out

import (
	"context"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"path/filepath"
	"time"

	"appguard/internal/modules/monitor/domain"
	monitorout "appguard/internal/modules/monitor/port/out"
)

const rpcService = "Monitor"

type JSONRPCServer struct{}

type JSONRPCClient struct{}

func NewJSONRPCServer() *JSONRPCServer {
	return &JSONRPCServer{}
}

func NewJSONRPCClient() *JSONRPCClient {
	return &JSONRPCClient{}
}

type rpcHandler struct {
	h monitorout.IPCHandler
}

type statusResp struct {
	Status monitorout.LoopStatus
}

type activityReq struct {
	Since time.Time
	Limit int
}

type activityResp struct {
	Events []domain.ActivityEvent
}

type empty struct{}

func (s *rpcHandler) Status(_ empty, resp *statusResp) error {
	status, err := s.h.Status(context.Background())
	if err != nil {
		return err
	}
	resp.Status = status
	return nil
}

func (s *rpcHandler) Resume(_ empty, _ *empty) error {
	return s.h.Resume(context.Background())
}

func (s *rpcHandler) ActivityTail(req activityReq, resp *activityResp) error {
	events, err := s.h.ActivityTail(context.Background(), monitorout.ActivityQuery{Since: req.Since, Limit: req.Limit})
	if err != nil {
		return err
	}
	resp.Events = events
	return nil
}

func (s *rpcHandler) Stop(_ empty, _ *empty) error {
	// Reply before the listener goes away.
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = s.h.Stop(context.Background())
	}()
	return nil
}

func (s *JSONRPCServer) Serve(ctx context.Context, socketPath string, handler monitorout.IPCHandler) error {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return fmt.Errorf("create ipc dir: %w", err)
	}
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale ipc socket: %w", err)
	}
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen ipc socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("chmod ipc socket: %w", err)
	}
	defer ln.Close()

	rpcSrv := rpc.NewServer()
	if err := rpcSrv.RegisterName(rpcService, &rpcHandler{h: handler}); err != nil {
		return fmt.Errorf("register ipc handler: %w", err)
	}

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-stop:
		}
	}()
	defer close(stop)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}
		go rpcSrv.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

func (c *JSONRPCClient) Status(ctx context.Context, socketPath string) (monitorout.LoopStatus, error) {
	client, err := dialClient(ctx, socketPath)
	if err != nil {
		return monitorout.LoopStatus{}, err
	}
	defer client.Close()
	resp := statusResp{}
	if err := client.Call(rpcService+".Status", empty{}, &resp); err != nil {
		return monitorout.LoopStatus{}, err
	}
	return resp.Status, nil
}

func (c *JSONRPCClient) Resume(ctx context.Context, socketPath string) error {
	client, err := dialClient(ctx, socketPath)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Call(rpcService+".Resume", empty{}, &empty{})
}

func (c *JSONRPCClient) ActivityTail(ctx context.Context, socketPath string, query monitorout.ActivityQuery) ([]domain.ActivityEvent, error) {
	client, err := dialClient(ctx, socketPath)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	resp := activityResp{}
	if err := client.Call(rpcService+".ActivityTail", activityReq{Since: query.Since, Limit: query.Limit}, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *JSONRPCClient) Stop(ctx context.Context, socketPath string) error {
	client, err := dialClient(ctx, socketPath)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Call(rpcService+".Stop", empty{}, &empty{})
}

func dialClient(ctx context.Context, socketPath string) (*rpc.Client, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, err
	}
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	return rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn)), nil
}
