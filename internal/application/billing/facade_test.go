package billing

import (
	"context"
	"testing"

	dombilling "github.com/Zhima-Mochi/minishop-billing/internal/domain/billing"
	"github.com/stretchr/testify/require"
)

func TestBillingRoutesResultsToOwningCategory(t *testing.T) {
	h := newHarness(t, ItemPolicy())
	b, err := NewBilling(h.orch.bctx, Deps{Worker: h.worker, Events: h.events, Verifier: h.verifier})
	require.NoError(t, err)
	require.Same(t, b.Subscriptions(), b.For(dombilling.CategorySubscription))
	require.Same(t, b.Items(), b.For(dombilling.CategoryItem))

	cb, results := capture[*dombilling.Purchase]()
	require.NoError(t, b.Subscriptions().Purchase(context.Background(), h.host, 77, "monthly", "", cb))
	require.Eventually(t, func() bool { return h.host.started() == 1 }, waitFor, waitFor/100)

	deliver := func(code int) result[bool] {
		return onEvents(t, h, func(ctx context.Context) result[bool] {
			ok, err := b.DeliverResult(ctx, code, dombilling.OutcomeOK, okResult("monthly", "sub-tok"))
			return result[bool]{ok, err}
		})
	}

	r := deliver(77)
	require.NoError(t, r.err)
	require.True(t, r.v)
	got := await(t, results)
	require.NoError(t, got.err)
	require.Equal(t, "monthly", got.v.SKU)

	r = deliver(78)
	require.NoError(t, r.err)
	require.False(t, r.v)
}

func TestBillingReleaseAndCancel(t *testing.T) {
	h := newHarness(t, ItemPolicy())
	b, err := NewBilling(h.orch.bctx, Deps{Worker: h.worker, Events: h.events, Verifier: h.verifier})
	require.NoError(t, err)
	require.NoError(t, b.SetDefaultPurchaseCallback(func(*dombilling.Purchase, error) {}))

	b.CancelAll()
	require.False(t, b.Items().Released())

	b.Release()
	require.True(t, b.Items().Released())
	require.True(t, b.Subscriptions().Released())
	require.ErrorIs(t, b.SetDefaultPurchaseCallback(nil), dombilling.ErrAlreadyReleased)
}
