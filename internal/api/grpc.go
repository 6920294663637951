package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/stinkmap/stinkmap/internal/engine"
	"github.com/stinkmap/stinkmap/internal/services"
	"github.com/stinkmap/stinkmap/internal/utils"
)

// DashboardServiceName is the gRPC service exposing dashboard reads.
const DashboardServiceName = "stinkmap.v1.Dashboard"

// DashboardServer answers dashboard reads with loosely typed structs so the
// service needs no generated code.
type DashboardServer interface {
	Stats(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Trend(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var dashboardServiceDesc = grpc.ServiceDesc{
	ServiceName: DashboardServiceName,
	HandlerType: (*DashboardServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Stats", Handler: unaryHandler("Stats", DashboardServer.Stats)},
		{MethodName: "Trend", Handler: unaryHandler("Trend", DashboardServer.Trend)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stinkmap/v1/dashboard.proto",
}

type dashboardMethod func(DashboardServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, method dashboardMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + DashboardServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return method(srv.(DashboardServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return method(srv.(DashboardServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type dashboardService struct {
	session *services.Session
}

// NewDashboardServer serves dashboard reads from session.
func NewDashboardServer(session *services.Session) DashboardServer {
	return &dashboardService{session: session}
}

func (d *dashboardService) Stats(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return toStruct(d.session.Stats())
}

func (d *dashboardService) Trend(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var spec *engine.RangeSpec
	fields := req.GetFields()
	if value := fields["range"].GetStringValue(); value != "" {
		spec = &engine.RangeSpec{
			Value: value,
			Start: fields["start"].GetStringValue(),
			End:   fields["end"].GetStringValue(),
		}
	}
	chart, _, err := d.session.Trend(ctx, spec)
	if err != nil {
		var appErr *utils.AppError
		if errors.As(err, &appErr) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return toStruct(chart)
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// GRPCServer wraps the gRPC server and its lifecycle helpers.
type GRPCServer struct {
	grpcServer      *grpc.Server
	listener        net.Listener
	health          *health.Server
	gracefulTimeout time.Duration
}

// NewGRPCServer listens on address and registers the dashboard, health and
// reflection services.
func NewGRPCServer(address string, dashboard DashboardServer, gracefulTimeout time.Duration, opts ...grpc.ServerOption) (*GRPCServer, error) {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", address, err)
	}
	return newGRPCServer(lis, dashboard, gracefulTimeout, opts...), nil
}

func newGRPCServer(lis net.Listener, dashboard DashboardServer, gracefulTimeout time.Duration, opts ...grpc.ServerOption) *GRPCServer {
	grpc_prometheus.EnableHandlingTimeHistogram()
	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	}
	serverOpts = append(serverOpts, opts...)
	grpcServer := grpc.NewServer(serverOpts...)

	grpcServer.RegisterService(&dashboardServiceDesc, dashboard)
	grpc_prometheus.Register(grpcServer)

	// NOT_SERVING until the first refresh succeeds.
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthSrv.SetServingStatus(DashboardServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthSrv)

	reflection.Register(grpcServer)

	return &GRPCServer{
		grpcServer:      grpcServer,
		listener:        lis,
		health:          healthSrv,
		gracefulTimeout: gracefulTimeout,
	}
}

// SetServing mirrors the outcome of the latest refresh into the health service.
func (s *GRPCServer) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(DashboardServiceName, st)
}

// Start serves incoming gRPC requests until Shutdown is invoked.
func (s *GRPCServer) Start() error {
	if s.grpcServer == nil || s.listener == nil {
		return fmt.Errorf("server not initialised")
	}
	return s.grpcServer.Serve(s.listener)
}

// Shutdown attempts a graceful shutdown, falling back to Stop after ctx expires.
func (s *GRPCServer) Shutdown(ctx context.Context) {
	if s.grpcServer == nil {
		return
	}
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		s.grpcServer.Stop()
	case <-stopped:
	}
}

// Address exposes the bound listener address.
func (s *GRPCServer) Address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// GracefulTimeout returns the configured graceful timeout.
func (s *GRPCServer) GracefulTimeout() time.Duration {
	return s.gracefulTimeout
}
