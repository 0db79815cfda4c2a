package billing

import (
	"context"
	"time"

	dombilling "github.com/Zhima-Mochi/minishop-billing/internal/domain/billing"
	"github.com/Zhima-Mochi/minishop-billing/internal/observability"
	"github.com/Zhima-Mochi/minishop-billing/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	billingService = "billing-client"
	spanPrefix     = "UC."
)

// telemetry carries the instruments of one orchestrator. Instruments are
// supplied via DI; nothing is created per call.
type telemetry struct {
	category string
	tracer   observability.Tracer
	log      observability.Logger

	reqCounter   observability.Counter   // billing_requests_total{use_case,outcome}
	durHistogram observability.Histogram // billing_request_duration_seconds{use_case}
	extCounter   observability.Counter   // billing_external_requests_total{method,outcome}
	extHistogram observability.Histogram // billing_external_request_duration_seconds{method}
	flowsGauge   observability.Gauge     // billing_purchase_flows_active{category}
}

func newTelemetry(tel observability.Observability, base observability.Logger, category dombilling.Category) *telemetry {
	tracer := observability.NopTracer()
	metrics := observability.NopMetrics()
	if tel != nil {
		tracer = tel.Tracer()
		metrics = tel.Metrics()
		if base == nil {
			base = tel.Logger()
		}
	}
	if base == nil {
		base = observability.NopLogger()
	}
	return &telemetry{
		category: string(category),
		tracer:   tracer,
		log: base.With(
			observability.F("service", billingService),
			observability.F("category", string(category)),
		),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
		flowsGauge:   metrics.Gauge(observability.MPurchaseFlowsActive),
	}
}

// operation tracks one orchestrator call from submission to resolution.
type operation struct {
	tel     *telemetry
	useCase string
	ctx     context.Context
	span    trace.Span
	log     observability.Logger
	start   time.Time
}

// begin opens the span and operation-scoped logger of a call. The returned
// context carries both.
func (t *telemetry) begin(ctx context.Context, name, spanName string, attrs ...attribute.KeyValue) (context.Context, *operation) {
	useCase := t.category + "." + name
	attrs = append(attrs,
		attribute.String("use_case", useCase),
		attribute.String("billing.category", t.category),
	)
	ctx, span := t.tracer.Start(ctx, spanPrefix+spanName, attrs...)
	ctx, logger := logctx.WithOperation(ctx, logctx.FromOr(ctx, t.log), useCase)
	return ctx, &operation{
		tel:     t,
		useCase: useCase,
		ctx:     ctx,
		span:    span,
		log:     logger,
		start:   time.Now(),
	}
}

// finish records the outcome of the call. It must be called exactly once.
func (o *operation) finish(err error) {
	lat := time.Since(o.start).Seconds()
	outcome, statusText := "success", "OK"
	if err != nil {
		outcome, statusText = "error", string(dombilling.KindOf(err))
		if statusText == "" {
			statusText = "ERROR"
		}
	}

	if o.span != nil {
		if err != nil {
			o.span.RecordError(err)
			o.span.SetStatus(codes.Error, statusText)
		} else {
			o.span.SetStatus(codes.Ok, statusText)
		}
		o.span.End()
	}

	o.tel.reqCounter.Add(1,
		observability.L("use_case", o.useCase),
		observability.L("outcome", outcome),
	)
	o.tel.durHistogram.Observe(lat,
		observability.L("use_case", o.useCase),
	)

	fields := []observability.Field{
		observability.F("outcome", outcome),
		observability.F("status", statusText),
		observability.F("latency_seconds", lat),
	}
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}
	o.log.Info("use_case_done", fields...)
}

func (t *telemetry) flows(n int) {
	t.flowsGauge.Set(float64(n), observability.L("category", t.category))
}

func (t *telemetry) external(method string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	t.extCounter.Add(1,
		observability.L("method", method),
		observability.L("outcome", outcome),
	)
	t.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("method", method),
	)
}

// meteredService records a request and latency sample per service call.
type meteredService struct {
	next dombilling.Service
	tel  *telemetry
}

func (t *telemetry) meter(svc dombilling.Service) dombilling.Service {
	return &meteredService{next: svc, tel: t}
}

func (m *meteredService) IsBillingSupported(ctx context.Context, apiVersion int, packageName string, category dombilling.Category) (code int, err error) {
	start := time.Now()
	defer func() { m.tel.external("is_billing_supported", start, err) }()
	return m.next.IsBillingSupported(ctx, apiVersion, packageName, category)
}

func (m *meteredService) GetSkuDetails(ctx context.Context, apiVersion int, packageName string, category dombilling.Category, skus []string) (env dombilling.Envelope, err error) {
	start := time.Now()
	defer func() { m.tel.external("get_sku_details", start, err) }()
	return m.next.GetSkuDetails(ctx, apiVersion, packageName, category, skus)
}

func (m *meteredService) GetBuyIntent(ctx context.Context, apiVersion int, packageName, sku string, category dombilling.Category, developerPayload string) (env dombilling.Envelope, err error) {
	start := time.Now()
	defer func() { m.tel.external("get_buy_intent", start, err) }()
	return m.next.GetBuyIntent(ctx, apiVersion, packageName, sku, category, developerPayload)
}

func (m *meteredService) GetBuyIntentToReplaceSkus(ctx context.Context, apiVersion int, packageName string, oldSkus []string, newSku string, category dombilling.Category, developerPayload string) (env dombilling.Envelope, err error) {
	start := time.Now()
	defer func() { m.tel.external("get_buy_intent_to_replace_skus", start, err) }()
	return m.next.GetBuyIntentToReplaceSkus(ctx, apiVersion, packageName, oldSkus, newSku, category, developerPayload)
}

func (m *meteredService) GetPurchases(ctx context.Context, apiVersion int, packageName string, category dombilling.Category, continuationToken string) (env dombilling.Envelope, err error) {
	start := time.Now()
	defer func() { m.tel.external("get_purchases", start, err) }()
	return m.next.GetPurchases(ctx, apiVersion, packageName, category, continuationToken)
}

func (m *meteredService) ConsumePurchase(ctx context.Context, apiVersion int, packageName, purchaseToken string) (code int, err error) {
	start := time.Now()
	defer func() { m.tel.external("consume_purchase", start, err) }()
	return m.next.ConsumePurchase(ctx, apiVersion, packageName, purchaseToken)
}
