package memory

import (
	"context"
	"testing"
	"time"

	appbilling "github.com/Zhima-Mochi/minishop-billing/internal/application/billing"
	dombilling "github.com/Zhima-Mochi/minishop-billing/internal/domain/billing"
	"github.com/Zhima-Mochi/minishop-billing/internal/infrastructure/dispatch"
	"github.com/Zhima-Mochi/minishop-billing/internal/infrastructure/receipt"
	"github.com/stretchr/testify/require"
)

type stack struct {
	sandbox  *Sandbox
	platform *Platform
	host     *Host
	billing  *appbilling.Billing
}

func newStack(t *testing.T) *stack {
	t.Helper()
	sandbox, pub := newSandbox(t, WithPageSize(1))
	worker := dispatch.NewQueue("worker", nil)
	events := dispatch.NewQueue("events", nil)
	for _, q := range []*dispatch.Queue{worker, events} {
		q.Start(context.Background())
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = q.Stop(ctx)
		})
	}

	platform := NewPlatform(sandbox)
	bctx, err := appbilling.NewContextBuilder().
		Platform(platform).
		PackageName(pkg).
		PublicKey(pub).
		Build()
	require.NoError(t, err)
	b, err := appbilling.NewBilling(bctx, appbilling.Deps{
		Worker:   worker,
		Events:   events,
		Verifier: receipt.NewVerifier(nil),
	})
	require.NoError(t, err)

	host := NewHost(sandbox, events, nil)
	host.OnResult(b.DeliverResult)
	return &stack{sandbox: sandbox, platform: platform, host: host, billing: b}
}

func wait[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
		var zero T
		return zero
	}
}

type outcome[T any] struct {
	v   T
	err error
}

func callback[T any]() (appbilling.Callback[T], <-chan outcome[T]) {
	ch := make(chan outcome[T], 1)
	return func(v T, err error) { ch <- outcome[T]{v, err} }, ch
}

func TestSandboxPurchaseQueryConsume(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	items := s.billing.Items()

	buy, bought := callback[*dombilling.Purchase]()
	require.NoError(t, items.Purchase(ctx, s.host, 100, "gems_100", "payload-1", buy))
	got := wait(t, bought)
	require.NoError(t, got.err)
	require.Equal(t, "gems_100", got.v.SKU)
	require.Equal(t, "payload-1", got.v.DeveloperPayload)

	buy, bought = callback[*dombilling.Purchase]()
	require.NoError(t, items.Purchase(ctx, s.host, 101, "gems_500", "", buy))
	require.NoError(t, wait(t, bought).err)

	// Page size 1 forces the pager through continuation tokens.
	query, queried := callback[*dombilling.PurchaseCollection]()
	require.NoError(t, items.QueryPurchases(ctx, query))
	owned := wait(t, queried)
	require.NoError(t, owned.err)
	require.Equal(t, []string{"gems_100", "gems_500"}, owned.v.SKUs())

	consume, consumed := callback[string]()
	require.NoError(t, items.Consume(ctx, got.v.Token, consume))
	c := wait(t, consumed)
	require.NoError(t, c.err)
	require.Equal(t, got.v.Token, c.v)

	catalog, cataloged := callback[*dombilling.ItemCatalog]()
	require.NoError(t, items.QueryItemCatalog(ctx, []string{"gems_100", "gems_500", "monthly"}, catalog))
	cat := wait(t, cataloged)
	require.NoError(t, cat.err)
	require.Equal(t, []string{"gems_100", "gems_500"}, cat.v.SKUs())

	require.Zero(t, s.platform.Bound())
	require.Zero(t, items.PendingFlows())
}

func TestSandboxSubscriptionUpgrade(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	subs := s.billing.Subscriptions()

	buy, bought := callback[*dombilling.Purchase]()
	require.NoError(t, subs.Purchase(ctx, s.host, 1, "monthly", "", buy))
	first := wait(t, bought)
	require.NoError(t, first.err)
	require.True(t, first.v.AutoRenewing)

	upgrade, upgraded := callback[*dombilling.Purchase]()
	require.NoError(t, subs.UpdateSubscription(ctx, s.host, 2, []string{"monthly"}, "yearly", "", upgrade))
	second := wait(t, upgraded)
	require.NoError(t, second.err)
	require.Equal(t, "yearly", second.v.SKU)

	query, queried := callback[*dombilling.PurchaseCollection]()
	require.NoError(t, subs.QueryPurchases(ctx, query))
	owned := wait(t, queried)
	require.NoError(t, owned.err)
	require.Equal(t, []string{"yearly"}, owned.v.SKUs())
}

func TestSandboxUserCancels(t *testing.T) {
	s := newStack(t)
	s.host.SetUserChoice(dombilling.OutcomeCanceled)

	buy, bought := callback[*dombilling.Purchase]()
	require.NoError(t, s.billing.Items().Purchase(context.Background(), s.host, 5, "gems_100", "", buy))
	got := wait(t, bought)
	require.ErrorIs(t, got.err, dombilling.ErrResultCanceled)
	require.Nil(t, got.v)
}

func TestSandboxPlatformUnavailable(t *testing.T) {
	s := newStack(t)
	s.platform.SetAvailable(false)

	check, checked := callback[bool]()
	require.NoError(t, s.billing.Items().CheckSupported(context.Background(), check))
	require.ErrorIs(t, wait(t, checked).err, dombilling.ErrBindServiceFailed)

	s.platform.SetAvailable(true)
	check, checked = callback[bool]()
	require.NoError(t, s.billing.Items().CheckSupported(context.Background(), check))
	r := wait(t, checked)
	require.NoError(t, r.err)
	require.True(t, r.v)
}
