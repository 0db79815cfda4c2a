package grpcbilling

import (
	"context"
	"time"

	dombilling "github.com/Zhima-Mochi/minishop-billing/internal/domain/billing"
	"github.com/Zhima-Mochi/minishop-billing/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name; it is also the name
// reported by the health service.
const ServiceName = "billing.v1.BillingService"

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*dombilling.Service)(nil),
	Methods: []grpc.MethodDesc{
		unary("IsBillingSupported", func(ctx context.Context, svc dombilling.Service, req *supportedRequest) (any, error) {
			code, err := svc.IsBillingSupported(ctx, req.APIVersion, req.PackageName, dombilling.Category(req.Type))
			return &codeResponse{ResponseCode: code}, err
		}),
		unary("GetSkuDetails", func(ctx context.Context, svc dombilling.Service, req *skuDetailsRequest) (any, error) {
			return svc.GetSkuDetails(ctx, req.APIVersion, req.PackageName, dombilling.Category(req.Type), req.SKUs)
		}),
		unary("GetBuyIntent", func(ctx context.Context, svc dombilling.Service, req *buyIntentRequest) (any, error) {
			return svc.GetBuyIntent(ctx, req.APIVersion, req.PackageName, req.SKU, dombilling.Category(req.Type), req.DeveloperPayload)
		}),
		unary("GetBuyIntentToReplaceSkus", func(ctx context.Context, svc dombilling.Service, req *buyIntentRequest) (any, error) {
			return svc.GetBuyIntentToReplaceSkus(ctx, req.APIVersion, req.PackageName, req.OldSKUs, req.SKU, dombilling.Category(req.Type), req.DeveloperPayload)
		}),
		unary("GetPurchases", func(ctx context.Context, svc dombilling.Service, req *purchasesRequest) (any, error) {
			return svc.GetPurchases(ctx, req.APIVersion, req.PackageName, dombilling.Category(req.Type), req.ContinuationToken)
		}),
		unary("ConsumePurchase", func(ctx context.Context, svc dombilling.Service, req *consumeRequest) (any, error) {
			code, err := svc.ConsumePurchase(ctx, req.APIVersion, req.PackageName, req.PurchaseToken)
			return &codeResponse{ResponseCode: code}, err
		}),
	},
	Metadata: "billing/v1/billing.proto",
}

func unary[Req any](method string, call func(ctx context.Context, svc dombilling.Service, req *Req) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			svc := srv.(dombilling.Service)
			if interceptor == nil {
				return call(ctx, svc, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			return interceptor(ctx, req, info, func(ctx context.Context, r any) (any, error) {
				return call(ctx, svc, r.(*Req))
			})
		},
	}
}

func fullMethod(method string) string { return "/" + ServiceName + "/" + method }

// Register exposes svc on s.
func Register(s grpc.ServiceRegistrar, svc dombilling.Service) {
	s.RegisterService(&serviceDesc, svc)
}

// NewServer returns a gRPC server exposing svc together with the standard
// health service, which reports SERVING for ServiceName.
func NewServer(svc dombilling.Service, tel observability.Observability, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	tracer, logger := observability.NopTracer(), observability.NopLogger()
	if tel != nil {
		tracer, logger = tel.Tracer(), tel.Logger()
	}
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(UnaryServerInterceptor(tracer, logger))}, opts...)
	srv := grpc.NewServer(opts...)
	Register(srv, svc)

	hs := health.NewServer()
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(srv, hs)
	return srv, hs
}

// UnaryServerInterceptor opens a server span per RPC and logs its outcome.
func UnaryServerInterceptor(tracer observability.Tracer, logger observability.Logger) grpc.UnaryServerInterceptor {
	log := logger.With(observability.F("component", "grpc_server"))
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		ctx, span := tracer.Start(ctx, info.FullMethod,
			attribute.String("rpc.system", "grpc"),
			attribute.String("rpc.service", ServiceName),
		)
		defer span.End()

		resp, err := handler(ctx, req)
		st := status.Convert(err)
		fields := []observability.Field{
			observability.F("method", info.FullMethod),
			observability.F("code", st.Code().String()),
			observability.F("latency_seconds", time.Since(start).Seconds()),
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields, observability.F("trace_id", sc.TraceID().String()))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(attribute.Int("rpc.grpc.status_code", int(st.Code())))
			log.Warn("rpc_failed", append(fields, observability.F("error", err.Error()))...)
			return resp, err
		}
		log.Debug("rpc_handled", fields...)
		return resp, nil
	}
}
