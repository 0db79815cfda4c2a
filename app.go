package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"time"

	appbilling "github.com/Zhima-Mochi/minishop-billing/internal/application/billing"
	"github.com/Zhima-Mochi/minishop-billing/internal/config"
	dombilling "github.com/Zhima-Mochi/minishop-billing/internal/domain/billing"
	"github.com/Zhima-Mochi/minishop-billing/internal/infrastructure/dispatch"
	"github.com/Zhima-Mochi/minishop-billing/internal/infrastructure/grpcbilling"
	"github.com/Zhima-Mochi/minishop-billing/internal/infrastructure/memory"
	obsadapter "github.com/Zhima-Mochi/minishop-billing/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-billing/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-billing/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-billing/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-billing/internal/infrastructure/receipt"
	"github.com/Zhima-Mochi/minishop-billing/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
)

// sandboxCatalog seeds the in-process sandbox.
var sandboxCatalog = []memory.Product{
	{SKU: "gems_100", Type: dombilling.CategoryItem, Title: "100 Gems", Description: "A pouch of gems", Price: "$0.99", Currency: "USD", PriceAmountMicros: 990000},
	{SKU: "gems_500", Type: dombilling.CategoryItem, Title: "500 Gems", Description: "A chest of gems", Price: "$3.99", Currency: "USD", PriceAmountMicros: 3990000},
	{SKU: "monthly", Type: dombilling.CategorySubscription, Title: "Monthly Pass", Description: "Renews every month", Price: "$4.99", Currency: "USD", PriceAmountMicros: 4990000},
	{SKU: "yearly", Type: dombilling.CategorySubscription, Title: "Yearly Pass", Description: "Renews every year", Price: "$39.99", Currency: "USD", PriceAmountMicros: 39990000},
}

// options are the root command's flags plus test hooks.
type options struct {
	sandbox     bool
	metricsAddr string

	logger   observability.Logger
	registry *prometheus.Registry
}

// app is the wired billing client of one command invocation.
type app struct {
	cfg      config.Config
	log      observability.Logger
	registry *prometheus.Registry

	worker  *dispatch.Queue
	events  *dispatch.Queue
	billing *appbilling.Billing

	sandbox *memory.Sandbox
	host    *memory.Host

	closers []func(ctx context.Context) error
}

func newApp(ctx context.Context, opts *options) (_ *app, err error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.metricsAddr != "" {
		cfg.MetricsAddr = opts.metricsAddr
	}

	a := &app{cfg: cfg, log: opts.logger, registry: opts.registry}
	defer func() {
		if err != nil {
			_ = a.close()
		}
	}()
	if a.log == nil {
		a.log, err = zaplogger.New(cfg.Logging())
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error {
			_ = zaplogger.Sync(a.log)
			return nil
		})
	}
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
	}

	counters, histograms, gauges := prometrics.Standard(prometrics.New("", "", a.registry))
	tel := obsadapter.New(oteltrace.New(cfg.ServiceName), a.log, counters, histograms, gauges)

	platform, publicKey, err := a.platform(opts.sandbox)
	if err != nil {
		return nil, err
	}
	bctx, err := appbilling.NewContextBuilder().
		Platform(platform).
		PackageName(cfg.PackageName).
		PublicKey(publicKey).
		APIVersion(cfg.APIVersion).
		Logger(a.log).
		Build()
	if err != nil {
		return nil, err
	}

	a.worker = dispatch.NewQueue("billing-worker", a.log)
	a.events = dispatch.NewQueue("billing-events", a.log)
	a.worker.Start(ctx)
	a.events.Start(ctx)
	// Closed in reverse: the worker drains before the event queue it posts to.
	a.closers = append(a.closers, a.events.Stop, a.worker.Stop)

	a.billing, err = appbilling.NewBilling(bctx, appbilling.Deps{
		Worker:    a.worker,
		Events:    a.events,
		Verifier:  receipt.NewVerifier(a.log),
		Telemetry: tel,
	})
	if err != nil {
		return nil, err
	}
	if a.sandbox != nil {
		a.host = memory.NewHost(a.sandbox, a.events, a.log)
		a.host.OnResult(a.billing.DeliverResult)
	}
	a.closers = append(a.closers, func(context.Context) error {
		a.billing.Release()
		return nil
	})

	if cfg.MetricsAddr != "" {
		a.serveMetrics(cfg.MetricsAddr)
	}
	return a, nil
}

// platform picks the in-process sandbox or the remote gRPC service.
func (a *app) platform(sandbox bool) (appbilling.Platform, string, error) {
	if !sandbox {
		p := grpcbilling.NewPlatform(a.cfg.ServiceAddr, a.cfg.BindTimeout, a.log)
		a.closers = append(a.closers, func(context.Context) error {
			p.Close()
			return nil
		})
		return p, a.cfg.PublicKey, nil
	}
	s, publicKey, err := newSandbox(a.cfg.PackageName)
	if err != nil {
		return nil, "", err
	}
	a.sandbox = s
	return memory.NewPlatform(s), publicKey, nil
}

// newSandbox returns a catalog-seeded sandbox signing with a fresh key, and
// the encoded public half of that key.
func newSandbox(packageName string) (*memory.Sandbox, string, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, "", fmt.Errorf("generate sandbox key: %w", err)
	}
	publicKey, err := receipt.EncodePublicKey(&key.PublicKey)
	if err != nil {
		return nil, "", err
	}
	s := memory.NewSandbox(packageName, key)
	for _, p := range sandboxCatalog {
		s.AddProduct(p)
	}
	return s, publicKey, nil
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.log.Info("metrics_server_start", observability.F("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics_server_error", observability.F("error", err))
		}
	}()
	a.closers = append(a.closers, server.Shutdown)
}

// close shuts everything down in reverse order of construction.
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i](ctx))
	}
	return err
}

// await starts an asynchronous billing call and blocks until its callback fires.
func await[T any](ctx context.Context, start func(cb appbilling.Callback[T]) error) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	if err := start(func(v T, err error) { ch <- result{v, err} }); err != nil {
		var zero T
		return zero, err
	}
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
