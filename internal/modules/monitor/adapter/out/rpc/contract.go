package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const (
	PluginMapKey      = "presenter"
	serviceName       = "appguard.presenter.v1.Presenter"
	jsonCodecName     = "json"
	methodGetMetadata = "/" + serviceName + "/GetMetadata"
	methodPresent     = "/" + serviceName + "/Present"
)

var HandshakeConfig = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "APPGUARD_PRESENTER",
	MagicCookieValue: "appguard",
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return jsonCodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type Empty struct{}

// Metadata lists the alert kinds the plugin can show.
type Metadata struct {
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Kinds   []string `json:"kinds"`
}

type PresentRequest struct {
	AlertID          string `json:"alert_id"`
	AppID            string `json:"app_id"`
	Kind             string `json:"kind"`
	Content          string `json:"content"`
	Message          string `json:"message"`
	ThresholdSeconds int64  `json:"threshold_seconds"`
	ElapsedSeconds   int64  `json:"elapsed_seconds"`
	StartedAtUnix    int64  `json:"started_at_unix"`
}

type PresentResponse struct {
	Delivered bool   `json:"delivered"`
	Detail    string `json:"detail"`
}

type PresenterServer interface {
	GetMetadata(ctx context.Context, in *Empty) (*Metadata, error)
	Present(ctx context.Context, in *PresentRequest) (*PresentResponse, error)
}

type PresenterClient interface {
	GetMetadata(ctx context.Context) (*Metadata, error)
	Present(ctx context.Context, in *PresentRequest) (*PresentResponse, error)
}

type presenterClient struct {
	conn *grpc.ClientConn
}

func NewPresenterClient(conn *grpc.ClientConn) PresenterClient {
	return &presenterClient{conn: conn}
}

func (c *presenterClient) GetMetadata(ctx context.Context) (*Metadata, error) {
	out := &Metadata{}
	if err := c.conn.Invoke(ctx, methodGetMetadata, &Empty{}, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *presenterClient) Present(ctx context.Context, in *PresentRequest) (*PresentResponse, error) {
	out := &PresentResponse{}
	if err := c.conn.Invoke(ctx, methodPresent, in, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func RegisterPresenterServer(server grpc.ServiceRegistrar, impl PresenterServer) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*PresenterServer)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "GetMetadata",
				Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
					in := &Empty{}
					if err := dec(in); err != nil {
						return nil, err
					}
					if interceptor == nil {
						return impl.GetMetadata(ctx, in)
					}
					info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetMetadata}
					handler := func(ctx context.Context, req any) (any, error) {
						empty, ok := req.(*Empty)
						if !ok {
							return nil, fmt.Errorf("invalid request type")
						}
						return impl.GetMetadata(ctx, empty)
					}
					return interceptor(ctx, in, info, handler)
				},
			},
			{
				MethodName: "Present",
				Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
					in := &PresentRequest{}
					if err := dec(in); err != nil {
						return nil, err
					}
					if interceptor == nil {
						return impl.Present(ctx, in)
					}
					info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodPresent}
					handler := func(ctx context.Context, req any) (any, error) {
						inReq, ok := req.(*PresentRequest)
						if !ok {
							return nil, fmt.Errorf("invalid request type")
						}
						return impl.Present(ctx, inReq)
					}
					return interceptor(ctx, in, info, handler)
				},
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "presenter-rpc-v1",
	}, impl)
}

type GRPCPlugin struct {
	plugin.NetRPCUnsupportedPlugin
	Impl PresenterServer
}

func (p *GRPCPlugin) GRPCServer(_ *plugin.GRPCBroker, server *grpc.Server) error {
	RegisterPresenterServer(server, p.Impl)
	return nil
}

func (p *GRPCPlugin) GRPCClient(_ context.Context, _ *plugin.GRPCBroker, conn *grpc.ClientConn) (any, error) {
	return NewPresenterClient(conn), nil
}

func PluginMap(impl PresenterServer) map[string]plugin.Plugin {
	return map[string]plugin.Plugin{
		PluginMapKey: &GRPCPlugin{Impl: impl},
	}
}
