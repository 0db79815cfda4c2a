package billing

import (
	"context"
	"errors"
	"fmt"
	"slices"

	dombilling "github.com/Zhima-Mochi/minishop-billing/internal/domain/billing"
	"github.com/Zhima-Mochi/minishop-billing/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

// Deps are the collaborators shared by orchestrators. Worker and Events must
// be distinct serial queues.
type Deps struct {
	Worker    Queue
	Events    Queue
	Verifier  Verifier
	Telemetry observability.Observability
}

// Orchestrator runs billing operations for one purchase category.
//
// Entry points never block: misuse is reported synchronously, everything else
// is done on the worker queue and resolved exactly once through the callback,
// which always runs on the event queue. Each operation binds its own
// connection and releases it before the result is delivered.
type Orchestrator struct {
	bctx     *Context
	policy   Policy
	worker   Queue
	events   Queue
	verifier Verifier
	decoder  ResponseDecoder
	pager    *Pager
	registry *FlowRegistry
	tel      *telemetry
	log      observability.Logger
}

func New(bctx *Context, policy Policy, deps Deps) (*Orchestrator, error) {
	if bctx == nil {
		return nil, errors.New("billing: context is required")
	}
	if deps.Worker == nil || deps.Events == nil {
		return nil, errors.New("billing: worker and event queues are required")
	}
	if deps.Verifier == nil {
		return nil, errors.New("billing: verifier is required")
	}
	tel := newTelemetry(deps.Telemetry, bctx.Logger(), policy.Category)
	return &Orchestrator{
		bctx:     bctx,
		policy:   policy,
		worker:   deps.Worker,
		events:   deps.Events,
		verifier: deps.Verifier,
		decoder:  NewResponseDecoder(tel.log),
		pager:    NewPager(bctx, deps.Verifier),
		registry: NewFlowRegistry(),
		tel:      tel,
		log:      tel.log,
	}, nil
}

// Policy returns the category policy the orchestrator enforces.
func (o *Orchestrator) Policy() Policy { return o.policy }

// CheckSupported reports whether the service supports the category.
func (o *Orchestrator) CheckSupported(ctx context.Context, cb Callback[bool]) error {
	return submit(o, ctx, "check_supported", "CheckSupported", cb,
		func(ctx context.Context, svc dombilling.Service) (bool, error) {
			code, err := svc.IsBillingSupported(ctx, o.bctx.APIVersion(), o.bctx.PackageName(), o.policy.Category)
			if err != nil {
				return false, dombilling.WrapError(dombilling.KindRemote, "is billing supported", err)
			}
			switch code {
			case dombilling.ResultOK:
				return true, nil
			case dombilling.ResultBillingUnavailable:
				return false, nil
			default:
				return false, dombilling.ResponseError("is billing supported", code)
			}
		})
}

// Purchase launches the purchase UI for sku under request code. cb receives
// either the launch failure or, through DeliverResult, the verified purchase.
// A nil cb routes the result to the default purchase callback.
func (o *Orchestrator) Purchase(ctx context.Context, host Host, code int, sku, developerPayload string, cb Callback[*dombilling.Purchase]) error {
	return o.launch(ctx, host, code, nil, sku, developerPayload, cb)
}

// UpdateSubscription launches a purchase of newSku replacing oldSkus.
func (o *Orchestrator) UpdateSubscription(ctx context.Context, host Host, code int, oldSkus []string, newSku, developerPayload string, cb Callback[*dombilling.Purchase]) error {
	if len(oldSkus) == 0 {
		if o.registry.Released() {
			return dombilling.ErrAlreadyReleased
		}
		return dombilling.NewError(dombilling.KindInvalidArgument, "old skus are required")
	}
	return o.launch(ctx, host, code, oldSkus, newSku, developerPayload, cb)
}

func (o *Orchestrator) launch(ctx context.Context, host Host, code int, oldSkus []string, sku, developerPayload string, cb Callback[*dombilling.Purchase]) error {
	if o.registry.Released() {
		return dombilling.ErrAlreadyReleased
	}
	if host == nil {
		return dombilling.NewError(dombilling.KindInvalidArgument, "host is required")
	}
	if sku == "" {
		return dombilling.NewError(dombilling.KindInvalidArgument, "sku is required")
	}
	if len(oldSkus) > 0 && !o.policy.AllowReplace {
		return dombilling.NewError(dombilling.KindUnsupportedOperation,
			fmt.Sprintf("%s purchases cannot replace skus", o.policy.Category))
	}

	flow, err := o.registry.Register(code, cb)
	if err != nil {
		return err
	}
	o.tel.flows(o.registry.Len())
	o.log.Debug("purchase_flow_registered",
		observability.F("request_code", code),
		observability.F("sku", sku),
	)

	oldSkus = slices.Clone(oldSkus)
	name, spanName := "purchase", "Purchase"
	if len(oldSkus) > 0 {
		name, spanName = "update_subscription", "UpdateSubscription"
	}
	err = submit[struct{}](o, ctx, name, spanName, func(_ struct{}, err error) {
		if err != nil {
			o.failLaunch(flow, err)
		}
	}, func(ctx context.Context, svc dombilling.Service) (struct{}, error) {
		return struct{}{}, o.startIntent(ctx, svc, host, flow, oldSkus, sku, developerPayload)
	}, attribute.Int("billing.request_code", code), attribute.String("billing.sku", sku))
	if err != nil {
		o.registry.Fail(flow)
		o.tel.flows(o.registry.Len())
		return err
	}
	return nil
}

// startIntent obtains the buy intent and hands it to the host.
func (o *Orchestrator) startIntent(ctx context.Context, svc dombilling.Service, host Host, flow *Flow, oldSkus []string, sku, developerPayload string) error {
	var (
		env dombilling.Envelope
		err error
	)
	if len(oldSkus) > 0 {
		// Replacing SKUs only exists from version 5 on, whatever the configured version.
		env, err = svc.GetBuyIntentToReplaceSkus(ctx, dombilling.ReplaceSkusAPIVersion, o.bctx.PackageName(),
			oldSkus, sku, o.policy.Category, developerPayload)
	} else {
		env, err = svc.GetBuyIntent(ctx, o.bctx.APIVersion(), o.bctx.PackageName(),
			sku, o.policy.Category, developerPayload)
	}
	if err != nil {
		return dombilling.WrapError(dombilling.KindRemote, "get buy intent", err)
	}

	status, err := o.decoder.Decode(env)
	if err != nil {
		return err
	}
	if status != dombilling.ResultOK {
		return dombilling.ResponseError("get buy intent", status)
	}
	intent, ok := env.Intent()
	if !ok {
		return dombilling.NewError(dombilling.KindPendingIntentMissing, "buy intent missing from response, probably a bug")
	}

	if err := sendIntent(ctx, host, intent, flow.Code); err != nil {
		return dombilling.WrapError(dombilling.KindSendIntentFailed, "start intent sender", err)
	}
	if !o.registry.MarkSent(flow) {
		o.log.Debug("purchase_flow_gone_after_launch", observability.F("request_code", flow.Code))
	}
	return nil
}

func sendIntent(ctx context.Context, host Host, intent dombilling.PendingIntent, code int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("host fault: %v", r)
		}
	}()
	return host.StartIntentSenderForResult(ctx, intent, code)
}

// failLaunch runs on the event queue.
func (o *Orchestrator) failLaunch(flow *Flow, err error) {
	cb, ok := o.registry.Fail(flow)
	o.tel.flows(o.registry.Len())
	if !ok {
		o.log.Debug("purchase_launch_failure_dropped",
			observability.F("request_code", flow.Code),
			observability.F("error", err),
		)
		return
	}
	o.log.Warn("purchase_launch_failed",
		observability.F("request_code", flow.Code),
		observability.F("error", err),
	)
	if cb == nil {
		o.log.Warn("purchase_result_dropped", observability.F("request_code", flow.Code))
		return
	}
	cb(nil, err)
}

// DeliverResult hands the outcome of the external purchase UI to the flow
// registered for code. It must be called from a task running on the event
// queue. It returns false when no flow owns code.
func (o *Orchestrator) DeliverResult(ctx context.Context, code, outcome int, data dombilling.Envelope) (bool, error) {
	if o.registry.Released() {
		return false, dombilling.ErrAlreadyReleased
	}
	if !o.events.Owns(ctx) {
		return false, dombilling.ErrWrongThread
	}
	flow, cb, err := o.registry.Take(code)
	if err != nil {
		return false, err
	}
	if flow == nil {
		o.log.Debug("purchase_result_unmatched", observability.F("request_code", code))
		return false, nil
	}
	o.tel.flows(o.registry.Len())

	ctx, op := o.tel.begin(ctx, "deliver_result", "DeliverResult",
		attribute.Int("billing.request_code", code),
		attribute.Int("billing.outcome", outcome),
	)
	purchase, err := o.interpret(ctx, outcome, data)
	op.finish(err)

	if cb == nil {
		o.log.Warn("purchase_result_dropped", observability.F("request_code", code))
		return true, nil
	}
	o.emit(func() { cb(purchase, err) })
	return true, nil
}

func (o *Orchestrator) interpret(ctx context.Context, outcome int, data dombilling.Envelope) (*dombilling.Purchase, error) {
	switch outcome {
	case dombilling.OutcomeOK:
	case dombilling.OutcomeCanceled:
		return nil, &dombilling.Error{Kind: dombilling.KindResultCanceled, Code: outcome, Msg: "purchase canceled"}
	default:
		return nil, &dombilling.Error{Kind: dombilling.KindResultUnknown, Code: outcome, Msg: "unknown purchase outcome"}
	}

	if data == nil {
		return nil, dombilling.NewError(dombilling.KindNullPurchaseData, "purchase result carries no data")
	}
	status, err := o.decoder.Decode(data)
	if err != nil {
		return nil, err
	}
	if status != dombilling.ResultOK {
		return nil, &dombilling.Error{Kind: dombilling.KindResultOk, Code: status, Msg: "purchase result not ok"}
	}

	raw, hasData := data[dombilling.KeyPurchaseData].(string)
	signature, hasSignature := data[dombilling.KeySignature].(string)
	if !hasData || !hasSignature || raw == "" {
		return nil, dombilling.NewError(dombilling.KindNullPurchaseData, "purchase data or signature missing")
	}
	if !o.verifier.Verify(dombilling.PeekProductID(raw), o.bctx.PublicKey(), raw, signature) {
		return nil, &dombilling.Error{Kind: dombilling.KindVerificationFailed, Code: 1, Msg: "purchase signature not verified"}
	}
	purchase, err := dombilling.ParsePurchase(raw, signature)
	if err != nil {
		return nil, dombilling.WrapError(dombilling.KindBadResponse, "decode purchase", err)
	}
	return purchase, nil
}

// Consume consumes an owned item; cb receives the consumed token.
func (o *Orchestrator) Consume(ctx context.Context, token string, cb Callback[string]) error {
	if o.registry.Released() {
		return dombilling.ErrAlreadyReleased
	}
	if !o.policy.Consumable {
		return dombilling.NewError(dombilling.KindUnsupportedOperation,
			fmt.Sprintf("%s purchases cannot be consumed", o.policy.Category))
	}
	if token == "" {
		return dombilling.NewError(dombilling.KindInvalidArgument, "purchase token is required")
	}
	return submit(o, ctx, "consume", "Consume", cb,
		func(ctx context.Context, svc dombilling.Service) (string, error) {
			code, err := svc.ConsumePurchase(ctx, o.bctx.APIVersion(), o.bctx.PackageName(), token)
			if err != nil {
				return "", dombilling.WrapError(dombilling.KindRemote, "consume purchase", err)
			}
			if code != dombilling.ResultOK {
				return "", dombilling.ResponseError("consume purchase", code)
			}
			return token, nil
		})
}

// QueryPurchases fetches every owned, verified purchase of the category.
func (o *Orchestrator) QueryPurchases(ctx context.Context, cb Callback[*dombilling.PurchaseCollection]) error {
	return submit(o, ctx, "query_purchases", "QueryPurchases", cb,
		func(ctx context.Context, svc dombilling.Service) (*dombilling.PurchaseCollection, error) {
			return o.pager.FetchAll(ctx, svc, o.policy.Category)
		})
}

// QueryItemCatalog fetches the details of skus, batching the ids as the
// service requires and merging the responses in request order.
func (o *Orchestrator) QueryItemCatalog(ctx context.Context, skus []string, cb Callback[*dombilling.ItemCatalog]) error {
	if o.registry.Released() {
		return dombilling.ErrAlreadyReleased
	}
	if len(skus) == 0 {
		return dombilling.NewError(dombilling.KindInvalidArgument, "at least one sku is required")
	}
	skus = slices.Clone(skus)
	return submit(o, ctx, "query_item_catalog", "QueryItemCatalog", cb,
		func(ctx context.Context, svc dombilling.Service) (*dombilling.ItemCatalog, error) {
			items := make([]*dombilling.Item, 0, len(skus))
			for batch := range slices.Chunk(skus, dombilling.SkuBatchSize) {
				env, err := svc.GetSkuDetails(ctx, o.bctx.APIVersion(), o.bctx.PackageName(), o.policy.Category, batch)
				if err != nil {
					return nil, dombilling.WrapError(dombilling.KindRemote, "get sku details", err)
				}
				code, err := o.decoder.Decode(env)
				if err != nil {
					return nil, err
				}
				if code != dombilling.ResultOK {
					return nil, dombilling.ResponseError("get sku details", code)
				}
				details, ok := env.Strings(dombilling.KeyDetailsList)
				if !ok {
					return nil, dombilling.NewError(dombilling.KindBadResponse, "details list missing")
				}
				for _, raw := range details {
					item, err := dombilling.ParseItem(raw)
					if err != nil {
						return nil, dombilling.WrapError(dombilling.KindBadResponse, "decode item", err)
					}
					items = append(items, item)
				}
			}
			return dombilling.NewItemCatalog(items...), nil
		}, attribute.Int("billing.sku_count", len(skus)))
}

// SetDefaultPurchaseCallback sets the callback receiving results of flows
// launched without one.
func (o *Orchestrator) SetDefaultPurchaseCallback(cb Callback[*dombilling.Purchase]) error {
	return o.registry.SetFallback(cb)
}

// CancelAll forgets every pending flow. The external UI is not stopped; its
// eventual result is reported as unmatched by DeliverResult.
func (o *Orchestrator) CancelAll() {
	n := o.registry.CancelAll()
	o.tel.flows(o.registry.Len())
	if n > 0 {
		o.log.Info("purchase_flows_canceled", observability.F("count", n))
	}
}

// Release cancels every flow, detaches the default callback and makes every
// later call fail with ErrAlreadyReleased.
func (o *Orchestrator) Release() {
	if o.registry.Release() {
		o.tel.flows(0)
		o.log.Info("billing_released")
	}
}

// Released reports whether Release was called.
func (o *Orchestrator) Released() bool { return o.registry.Released() }

// PendingFlows returns the number of registered purchase flows.
func (o *Orchestrator) PendingFlows() int { return o.registry.Len() }

// FlowStatus returns the state of the flow registered for code.
func (o *Orchestrator) FlowStatus(code int) (dombilling.FlowStatus, bool) {
	return o.registry.Lookup(code)
}

// submit runs work on the worker queue against a freshly bound service and
// delivers its single result to cb on the event queue.
func submit[T any](o *Orchestrator, ctx context.Context, name, spanName string, cb Callback[T],
	work func(ctx context.Context, svc dombilling.Service) (T, error), attrs ...attribute.KeyValue) error {
	if o.registry.Released() {
		return dombilling.ErrAlreadyReleased
	}
	if cb == nil {
		return dombilling.NewError(dombilling.KindInvalidArgument, "callback is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	return o.worker.Post(func(context.Context) {
		ctx, op := o.tel.begin(ctx, name, spanName, attrs...)
		var zero T
		if o.registry.Released() {
			op.finish(dombilling.ErrAlreadyReleased)
			o.emit(func() { cb(zero, dombilling.ErrAlreadyReleased) })
			return
		}

		binder := NewBinder(o.bctx.Platform(), o.events, op.log)
		onBound := func(svc dombilling.Service) {
			err := o.worker.Post(func(context.Context) {
				v, err := safeWork(ctx, o.tel.meter(svc), work)
				binder.Disconnect()
				op.finish(err)
				o.emit(func() { cb(v, err) })
			})
			if err != nil {
				binder.Disconnect()
				op.finish(err)
				cb(zero, err)
			}
		}
		onError := func(err error) {
			binder.Disconnect()
			op.finish(err)
			cb(zero, err)
		}
		binder.Connect(ctx, onBound, onError)
	})
}

// safeWork runs work, reporting a panicking service as a Remote error.
func safeWork[T any](ctx context.Context, svc dombilling.Service, work func(ctx context.Context, svc dombilling.Service) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, err = zero, dombilling.NewError(dombilling.KindRemote, fmt.Sprintf("billing service panicked: %v", r))
		}
	}()
	return work(ctx, svc)
}

func (o *Orchestrator) emit(fn func()) {
	if err := o.events.Post(func(context.Context) { fn() }); err != nil {
		o.log.Error("callback_dropped", observability.F("error", err))
	}
}
