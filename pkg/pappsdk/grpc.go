// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package pappsdk

import (
	"context"
	"encoding/base64"
	"errors"

	hashiplug "github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the gRPC service a papp process serves.
const ServiceName = "papphost.pappsdk.v1.Papp"

// Compile-time interface checks.
var (
	_ hashiplug.GRPCPlugin = (*Plugin)(nil)
	_ Papp                 = (*GRPCClient)(nil)
	_ pappServer           = (*GRPCServer)(nil)
)

// Plugin implements go-plugin's GRPCPlugin interface.
type Plugin struct {
	hashiplug.NetRPCUnsupportedPlugin
	// Impl is used by the papp side, not by the host.
	Impl Papp
}

// GRPCServer registers the papp service (called by the papp process).
func (p *Plugin) GRPCServer(_ *hashiplug.GRPCBroker, s *grpc.Server) error {
	if p.Impl == nil {
		return errors.New("pappsdk: papp implementation is nil")
	}
	s.RegisterService(&serviceDesc, &GRPCServer{impl: p.Impl})
	return nil
}

// GRPCClient returns a papp client (called by the host process).
func (p *Plugin) GRPCClient(_ context.Context, _ *hashiplug.GRPCBroker, c *grpc.ClientConn) (any, error) {
	return NewGRPCClient(c), nil
}

// pappServer is the server side of the Papp service. Messages are protobuf
// well-known types, so the service needs no generated code.
type pappServer interface {
	Info(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	Start(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Stop(ctx context.Context, req *emptypb.Empty) (*emptypb.Empty, error)
	Handle(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*pappServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Info", newEmpty, pappServer.Info),
		unary("Start", newStruct, pappServer.Start),
		unary("Stop", newEmpty, pappServer.Stop),
		unary("Handle", newStruct, pappServer.Handle),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pappsdk",
}

func newEmpty() *emptypb.Empty    { return new(emptypb.Empty) }
func newStruct() *structpb.Struct { return new(structpb.Struct) }

func unary[Req, Resp proto.Message](method string, newReq func() Req, call func(pappServer, context.Context, Req) (Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(pappServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(Req))
			})
		},
	}
}

// GRPCServer exposes a Papp over gRPC.
type GRPCServer struct {
	impl Papp
}

// Info serves Papp.Info.
func (s *GRPCServer) Info(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	info, err := s.impl.Info(ctx)
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]any{
		"title":        info.Title,
		"admin_module": info.AdminModule,
	})
}

// Start serves Papp.Start.
func (s *GRPCServer) Start(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	regs, err := s.impl.Start(ctx, req.GetFields()["name"].GetStringValue())
	if err != nil {
		return nil, err
	}
	return encodeRegistrations(regs)
}

// Stop serves Papp.Stop.
func (s *GRPCServer) Stop(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.impl.Stop(ctx); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

// Handle serves Papp.Handle.
func (s *GRPCServer) Handle(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	p, err := decodePayload(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.impl.Handle(ctx, p); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

// GRPCClient is the host-side Papp backed by a papp process.
type GRPCClient struct {
	conn grpc.ClientConnInterface
}

// NewGRPCClient wraps a gRPC connection to a papp.
func NewGRPCClient(conn grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{conn: conn}
}

// invoke calls method. Errors returned by the papp come back with their
// original message; a done ctx is reported as ctx.Err().
func (c *GRPCClient) invoke(ctx context.Context, method string, in, out proto.Message) error {
	err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.Unknown {
		return errors.New(st.Message())
	}
	return err
}

// Info implements Papp.
func (c *GRPCClient) Info(ctx context.Context) (Info, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "Info", &emptypb.Empty{}, out); err != nil {
		return Info{}, err
	}
	fields := out.GetFields()
	return Info{
		Title:       fields["title"].GetStringValue(),
		AdminModule: fields["admin_module"].GetStringValue(),
	}, nil
}

// Start implements Papp.
func (c *GRPCClient) Start(ctx context.Context, name string) (Registrations, error) {
	in, err := structpb.NewStruct(map[string]any{"name": name})
	if err != nil {
		return Registrations{}, err
	}
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "Start", in, out); err != nil {
		return Registrations{}, err
	}
	return decodeRegistrations(out), nil
}

// Stop implements Papp.
func (c *GRPCClient) Stop(ctx context.Context) error {
	return c.invoke(ctx, "Stop", &emptypb.Empty{}, new(emptypb.Empty))
}

// Handle implements Papp.
func (c *GRPCClient) Handle(ctx context.Context, p Payload) error {
	in, err := encodePayload(p)
	if err != nil {
		return err
	}
	return c.invoke(ctx, "Handle", in, new(emptypb.Empty))
}

func encodeRegistrations(regs Registrations) (*structpb.Struct, error) {
	endpoints := make([]any, len(regs.Endpoints))
	for i, f := range regs.Endpoints {
		endpoints[i] = stringMap(f)
	}
	tuples := make([]any, len(regs.Tuples))
	for i, name := range regs.Tuples {
		tuples[i] = name
	}
	return structpb.NewStruct(map[string]any{"endpoints": endpoints, "tuples": tuples})
}

func decodeRegistrations(s *structpb.Struct) Registrations {
	var regs Registrations
	for _, v := range s.GetFields()["endpoints"].GetListValue().GetValues() {
		regs.Endpoints = append(regs.Endpoints, fromStruct(v.GetStructValue()))
	}
	for _, v := range s.GetFields()["tuples"].GetListValue().GetValues() {
		regs.Tuples = append(regs.Tuples, v.GetStringValue())
	}
	return regs
}

// Bodies travel base64 encoded since protobuf strings must be valid UTF-8.
func encodePayload(p Payload) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"filter": stringMap(p.Filter),
		"body":   base64.StdEncoding.EncodeToString(p.Body),
	})
}

func decodePayload(s *structpb.Struct) (Payload, error) {
	fields := s.GetFields()
	body, err := base64.StdEncoding.DecodeString(fields["body"].GetStringValue())
	if err != nil {
		return Payload{}, err
	}
	if len(body) == 0 {
		body = nil
	}
	return Payload{Filter: fromStruct(fields["filter"].GetStructValue()), Body: body}, nil
}

func stringMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func fromStruct(s *structpb.Struct) map[string]string {
	out := make(map[string]string, len(s.GetFields()))
	for k, v := range s.GetFields() {
		out[k] = v.GetStringValue()
	}
	return out
}
