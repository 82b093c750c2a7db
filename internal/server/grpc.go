package server

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/illustration-analyzer/internal/common"
	"github.com/joseph-ayodele/illustration-analyzer/internal/finance"
	"github.com/joseph-ayodele/illustration-analyzer/internal/pipeline"
	"github.com/joseph-ayodele/illustration-analyzer/internal/telemetry"
)

const (
	metricsServiceName   = "illustrations.v1.MetricsService"
	metricsComputeMethod = "/" + metricsServiceName + "/Compute"
)

// MetricsServer computes engine metrics for a policy record given as a
// google.protobuf.Struct with the same fields as the JSON API.
type MetricsServer interface {
	Compute(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// MetricsServiceDesc is written by hand; the messages are well-known types so
// no generated code is needed.
var MetricsServiceDesc = grpc.ServiceDesc{
	ServiceName: metricsServiceName,
	HandlerType: (*MetricsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Compute", Handler: metricsComputeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "illustrations/v1/metrics.proto",
}

func metricsComputeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MetricsServer).Compute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: metricsComputeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MetricsServer).Compute(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func RegisterMetricsServer(s grpc.ServiceRegistrar, srv MetricsServer) {
	s.RegisterService(&MetricsServiceDesc, srv)
}

// Computer runs the metrics engine on a decoded policy; *pipeline.Processor
// implements it.
type Computer interface {
	Compute(rec finance.PolicyRecord) (pipeline.Result, error)
}

type MetricsService struct {
	proc   Computer
	logger *zap.Logger
}

func NewMetricsService(proc Computer, logger *zap.Logger) *MetricsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetricsService{proc: proc, logger: logger}
}

func (s *MetricsService) Compute(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if in == nil || len(in.GetFields()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "policy is required")
	}
	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "policy is not representable as JSON")
	}
	rec, err := pipeline.DecodePolicy(raw)
	if err != nil {
		return nil, common.GRPCStatus(err)
	}
	res, err := s.proc.Compute(rec)
	if err != nil {
		s.logger.Warn("grpc.compute.failed", zap.Error(err))
		return nil, common.GRPCStatus(err)
	}

	b, err := json.Marshal(res)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode result")
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, status.Error(codes.Internal, "encode result")
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode result")
	}
	return out, nil
}

// UnaryInterceptor logs and counts every unary call.
func UnaryInterceptor(logger *zap.Logger, m *telemetry.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		m.ObserveGRPC(info.FullMethod, code.String())
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
		}
		if err != nil {
			logger.Warn("grpc.request", append(fields, zap.Error(err))...)
		} else {
			logger.Info("grpc.request", fields...)
		}
		return resp, err
	}
}

// NewGRPCServer registers the metrics service, health and reflection.
func NewGRPCServer(proc *pipeline.Processor, logger *zap.Logger, m *telemetry.Metrics) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(UnaryInterceptor(logger, m)))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(metricsServiceName, healthpb.HealthCheckResponse_SERVING)

	reflection.Register(s)
	RegisterMetricsServer(s, NewMetricsService(proc, logger))
	return s, hs
}
