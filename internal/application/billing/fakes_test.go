package billing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dombilling "github.com/Zhima-Mochi/minishop-billing/internal/domain/billing"
	"github.com/Zhima-Mochi/minishop-billing/internal/infrastructure/dispatch"
	"github.com/stretchr/testify/require"
)

const (
	testPackage = "com.example.game"
	testKey     = "test-public-key"
	waitFor     = 2 * time.Second
)

func purchaseJSON(sku, token string) string {
	return fmt.Sprintf(`{"orderId":"order-%s","packageName":%q,"productId":%q,"purchaseTime":1700000000000,"purchaseState":0,"purchaseToken":%q}`,
		token, testPackage, sku, token)
}

func itemJSON(sku string) string {
	return fmt.Sprintf(`{"productId":%q,"type":"inapp","title":"Title %s","price":"$0.99","price_amount_micros":990000,"price_currency_code":"USD"}`, sku, sku)
}

// fakeService is a scriptable billing service.
type fakeService struct {
	mu sync.Mutex

	err           error
	panics        bool
	supportedCode int

	pages         []dombilling.Envelope
	pageTokens    []string
	skuBatches    [][]string
	detailsStatus int

	buyIntent      dombilling.Envelope
	buyAPIVersions []int
	replaceCalls   int
	replaceOldSkus []string
	consumeCode    int
	consumedTokens []string
	calls          atomic.Int32
}

func (s *fakeService) IsBillingSupported(context.Context, int, string, dombilling.Category) (int, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.supportedCode, s.err
}

func (s *fakeService) GetSkuDetails(_ context.Context, _ int, _ string, _ dombilling.Category, skus []string) (dombilling.Envelope, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.skuBatches = append(s.skuBatches, append([]string(nil), skus...))
	details := make([]string, 0, len(skus))
	for _, sku := range skus {
		details = append(details, itemJSON(sku))
	}
	return dombilling.Envelope{
		dombilling.KeyResponseCode: int32(s.detailsStatus),
		dombilling.KeyDetailsList:  details,
	}, nil
}

func (s *fakeService) GetBuyIntent(_ context.Context, apiVersion int, _, _ string, _ dombilling.Category, _ string) (dombilling.Envelope, error) {
	s.calls.Add(1)
	if s.panics {
		panic("service exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buyAPIVersions = append(s.buyAPIVersions, apiVersion)
	return s.buyIntent, s.err
}

func (s *fakeService) GetBuyIntentToReplaceSkus(_ context.Context, apiVersion int, _ string, oldSkus []string, _ string, _ dombilling.Category, _ string) (dombilling.Envelope, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceCalls++
	s.replaceOldSkus = oldSkus
	s.buyAPIVersions = append(s.buyAPIVersions, apiVersion)
	return s.buyIntent, s.err
}

func (s *fakeService) GetPurchases(_ context.Context, _ int, _ string, _ dombilling.Category, token string) (dombilling.Envelope, error) {
	s.calls.Add(1)
	if s.panics {
		panic("service exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.pageTokens = append(s.pageTokens, token)
	i := len(s.pageTokens) - 1
	if i >= len(s.pages) {
		return dombilling.Envelope{}, nil
	}
	return s.pages[i], nil
}

func (s *fakeService) ConsumePurchase(_ context.Context, _ int, _ string, token string) (int, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consumedTokens = append(s.consumedTokens, token)
	return s.consumeCode, s.err
}

// page builds a purchases page of n purchases whose tokens start at first.
func page(first, n int, next string) dombilling.Envelope {
	data := make([]string, 0, n)
	sigs := make([]string, 0, n)
	for i := first; i < first+n; i++ {
		data = append(data, purchaseJSON(fmt.Sprintf("sku-%d", i), fmt.Sprintf("tok-%d", i)))
		sigs = append(sigs, "sig")
	}
	env := dombilling.Envelope{
		dombilling.KeyResponseCode:     int32(dombilling.ResultOK),
		dombilling.KeyPurchaseDataList: data,
		dombilling.KeySignatureList:    sigs,
	}
	if next != "" {
		env[dombilling.KeyContinuationToken] = next
	}
	return env
}

// fakePlatform connects synchronously from BindService.
type fakePlatform struct {
	svc     dombilling.Service
	refuse  bool
	bindErr error
	panics  bool
	connNil bool
	dies    bool
	binds   atomic.Int32
	unbinds atomic.Int32
}

func (p *fakePlatform) BindService(_ context.Context, conn ServiceConnection) (bool, error) {
	p.binds.Add(1)
	switch {
	case p.panics:
		panic("platform exploded")
	case p.bindErr != nil:
		return false, p.bindErr
	case p.refuse:
		return false, nil
	case p.connNil:
		conn.OnServiceConnected(nil)
	case p.dies:
		conn.OnBindingDied(fmt.Errorf("peer gone"))
	default:
		conn.OnServiceConnected(p.svc)
	}
	return true, nil
}

func (p *fakePlatform) UnbindService(ServiceConnection) { p.unbinds.Add(1) }

type fakeVerifier struct {
	calls atomic.Int32
}

// Verify rejects any signature equal to "bad".
func (v *fakeVerifier) Verify(_, _, _, signature string) bool {
	v.calls.Add(1)
	return signature != "bad"
}

type fakeHost struct {
	mu      sync.Mutex
	err     error
	intents []dombilling.PendingIntent
	codes   []int
}

func (h *fakeHost) StartIntentSenderForResult(_ context.Context, intent dombilling.PendingIntent, code int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.intents = append(h.intents, intent)
	h.codes = append(h.codes, code)
	return nil
}

func (h *fakeHost) started() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.codes)
}

func startQueue(t *testing.T, name string) *dispatch.Queue {
	t.Helper()
	q := dispatch.NewQueue(name, nil)
	q.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = q.Stop(ctx)
	})
	return q
}

type harness struct {
	worker   *dispatch.Queue
	events   *dispatch.Queue
	svc      *fakeService
	platform *fakePlatform
	verifier *fakeVerifier
	host     *fakeHost
	orch     *Orchestrator
}

func newHarness(t *testing.T, policy Policy) *harness {
	t.Helper()
	h := &harness{
		worker:   startQueue(t, "worker"),
		events:   startQueue(t, "events"),
		svc:      &fakeService{buyIntent: dombilling.Envelope{dombilling.KeyBuyIntent: "intent-1"}},
		verifier: &fakeVerifier{},
		host:     &fakeHost{},
	}
	h.platform = &fakePlatform{svc: h.svc}
	bctx, err := NewContextBuilder().
		Platform(h.platform).
		PackageName(testPackage).
		PublicKey(testKey).
		Build()
	require.NoError(t, err)
	h.orch, err = New(bctx, policy, Deps{Worker: h.worker, Events: h.events, Verifier: h.verifier})
	require.NoError(t, err)
	return h
}

// onEvents runs fn as a task of the event queue and returns its result.
func onEvents[T any](t *testing.T, h *harness, fn func(ctx context.Context) T) T {
	t.Helper()
	ch := make(chan T, 1)
	require.NoError(t, h.events.Post(func(ctx context.Context) { ch <- fn(ctx) }))
	select {
	case v := <-ch:
		return v
	case <-time.After(waitFor):
		t.Fatal("event queue task did not run")
		var zero T
		return zero
	}
}

// idle waits until both queues drained everything posted so far.
func (h *harness) idle(t *testing.T) {
	t.Helper()
	for range 3 {
		for _, q := range []*dispatch.Queue{h.worker, h.events} {
			done := make(chan struct{})
			require.NoError(t, q.Post(func(context.Context) { close(done) }))
			select {
			case <-done:
			case <-time.After(waitFor):
				t.Fatalf("queue %s stuck", q.Name())
			}
		}
	}
}

type result[T any] struct {
	v   T
	err error
}

// capture returns a callback recording every invocation and a receive helper.
func capture[T any]() (Callback[T], chan result[T]) {
	ch := make(chan result[T], 4)
	return func(v T, err error) { ch <- result[T]{v, err} }, ch
}

func await[T any](t *testing.T, ch chan result[T]) result[T] {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(waitFor):
		t.Fatal("callback not invoked")
		return result[T]{}
	}
}
