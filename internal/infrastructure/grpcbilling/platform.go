package grpcbilling

import (
	"context"
	"fmt"
	"sync"
	"time"

	appbilling "github.com/Zhima-Mochi/minishop-billing/internal/application/billing"
	"github.com/Zhima-Mochi/minishop-billing/internal/observability"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

const defaultReadyTimeout = 5 * time.Second

// Platform binds to a billing service reachable at a gRPC target. Each bind
// opens its own client connection; unbind closes it.
type Platform struct {
	target       string
	readyTimeout time.Duration
	opts         []grpc.DialOption
	log          observability.Logger

	mu    sync.Mutex
	conns map[appbilling.ServiceConnection]*grpc.ClientConn
}

var _ appbilling.Platform = (*Platform)(nil)

// NewPlatform returns a Platform for target. opts are appended to an
// insecure transport; readyTimeout bounds how long a bind waits for READY.
func NewPlatform(target string, readyTimeout time.Duration, logger observability.Logger, opts ...grpc.DialOption) *Platform {
	if readyTimeout <= 0 {
		readyTimeout = defaultReadyTimeout
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Platform{
		target:       target,
		readyTimeout: readyTimeout,
		opts:         append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...),
		log: logger.With(
			observability.F("component", "grpc_platform"),
			observability.F("target", target),
		),
		conns: make(map[appbilling.ServiceConnection]*grpc.ClientConn),
	}
}

// BindService starts connecting and returns immediately. conn learns the
// outcome from a background watcher.
func (p *Platform) BindService(ctx context.Context, conn appbilling.ServiceConnection) (bool, error) {
	cc, err := grpc.NewClient(p.target, p.opts...)
	if err != nil {
		return false, fmt.Errorf("grpcbilling: new client: %w", err)
	}
	p.mu.Lock()
	if old, ok := p.conns[conn]; ok {
		_ = old.Close()
	}
	p.conns[conn] = cc
	p.mu.Unlock()

	go p.watch(context.WithoutCancel(ctx), cc, conn)
	return true, nil
}

func (p *Platform) watch(ctx context.Context, cc *grpc.ClientConn, conn appbilling.ServiceConnection) {
	ctx, cancel := context.WithTimeout(ctx, p.readyTimeout)
	defer cancel()

	cc.Connect()
	for {
		state := cc.GetState()
		switch state {
		case connectivity.Ready:
			if err := p.checkHealth(ctx, cc); err != nil {
				conn.OnBindingDied(err)
				return
			}
			p.log.Debug("grpc_bind_ready")
			conn.OnServiceConnected(NewClient(cc))
			return
		case connectivity.Shutdown:
			// Unbound before the connection was ready.
			return
		case connectivity.TransientFailure:
			conn.OnBindingDied(fmt.Errorf("grpcbilling: %s unreachable", p.target))
			return
		}
		if !cc.WaitForStateChange(ctx, state) {
			conn.OnBindingDied(fmt.Errorf("grpcbilling: not ready after %s (state %s)", p.readyTimeout, state))
			return
		}
	}
}

// checkHealth accepts servers without a health service.
func (p *Platform) checkHealth(ctx context.Context, cc *grpc.ClientConn) error {
	resp, err := grpc_health_v1.NewHealthClient(cc).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	if status.Code(err) == codes.Unimplemented {
		return nil
	}
	if err != nil {
		return fmt.Errorf("grpcbilling: health check: %w", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return fmt.Errorf("grpcbilling: service %s", resp.GetStatus())
	}
	return nil
}

// UnbindService closes the connection opened for conn.
func (p *Platform) UnbindService(conn appbilling.ServiceConnection) {
	p.mu.Lock()
	cc, ok := p.conns[conn]
	delete(p.conns, conn)
	p.mu.Unlock()
	if !ok {
		return
	}
	if err := cc.Close(); err != nil {
		p.log.Warn("grpc_unbind_failed", observability.F("error", err))
	}
}

// Close releases every connection still bound.
func (p *Platform) Close() {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[appbilling.ServiceConnection]*grpc.ClientConn)
	p.mu.Unlock()
	for _, cc := range conns {
		_ = cc.Close()
	}
}
