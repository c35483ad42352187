package api

import (
	"encoding/json"
	"log"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

// jsonCodec позволяет использовать gRPC с JSON-пейлоадом вместо protobuf,
// чтобы переиспользовать существующую структуру Message без генерации кодеков.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}
func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// ControlServer описывает bidirectional stream, аналогичный WebSocket каналу.
type ControlServer interface {
	Stream(Control_StreamServer) error
}

type UnimplementedControlServer struct{}

func (UnimplementedControlServer) Stream(Control_StreamServer) error {
	return status.Errorf(codes.Unimplemented, "method Stream not implemented")
}

type Control_StreamServer interface {
	Send(*Message) error
	Recv() (*Message, error)
	grpc.ServerStream
}

type controlStreamServer struct {
	grpc.ServerStream
}

func (x *controlStreamServer) Send(m *Message) error {
	return x.ServerStream.SendMsg(m)
}

func (x *controlStreamServer) Recv() (*Message, error) {
	m := new(Message)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _Control_Stream_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(ControlServer).Stream(&controlStreamServer{stream})
}

var _Control_serviceDesc = grpc.ServiceDesc{
	ServiceName: "netnote.Control",
	HandlerType: (*ControlServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Stream",
			Handler:       _Control_Stream_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "internal/api/control.proto",
}

func RegisterControlServer(s *grpc.Server, srv ControlServer) {
	s.RegisterService(&_Control_serviceDesc, srv)
}

// grpcClient клиент control stream, зеркалит wsClient
type grpcClient struct {
	stream Control_StreamServer
}

func (c *grpcClient) Send(msg Message) error {
	return c.stream.Send(&msg)
}

func (c *grpcClient) Close() error {
	// gRPC поток закрывается на стороне клиента или через контекст
	return nil
}

// Stream реализует ControlServer: регистрирует клиента и гоняет команды
func (s *Server) Stream(stream Control_StreamServer) error {
	client := &grpcClient{stream: stream}
	s.addClient(client)
	defer s.removeClient(client)

	for {
		msg, err := stream.Recv()
		if err != nil {
			return nil
		}
		s.dispatch(client, *msg)
	}
}

func (s *Server) startGRPCServer() {
	addr := s.Config.GRPCAddr
	if addr == "" {
		return
	}

	lis, err := listenGRPC(addr)
	if err != nil {
		log.Printf("Failed to listen gRPC on %s: %v", addr, err)
		return
	}

	server := grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	RegisterControlServer(server, s)

	log.Printf("gRPC control server listening on %s", addr)
	if err := server.Serve(lis); err != nil {
		log.Printf("gRPC server stopped: %v", err)
	}
}
