package billing

import (
	"context"

	dombilling "github.com/Zhima-Mochi/minishop-billing/internal/domain/billing"
	"go.uber.org/multierr"
)

// Billing fans out to one orchestrator per purchase category.
type Billing struct {
	items         *Orchestrator
	subscriptions *Orchestrator
}

// NewBilling builds the item and subscription orchestrators over a shared context.
func NewBilling(bctx *Context, deps Deps) (*Billing, error) {
	items, err := New(bctx, ItemPolicy(), deps)
	if err != nil {
		return nil, err
	}
	subs, err := New(bctx, SubscriptionPolicy(), deps)
	if err != nil {
		return nil, err
	}
	return &Billing{items: items, subscriptions: subs}, nil
}

func (b *Billing) Items() *Orchestrator         { return b.items }
func (b *Billing) Subscriptions() *Orchestrator { return b.subscriptions }

// For returns the orchestrator of category.
func (b *Billing) For(category dombilling.Category) *Orchestrator {
	if category == dombilling.CategorySubscription {
		return b.subscriptions
	}
	return b.items
}

// DeliverResult offers the result to both orchestrators; at most one owns code.
// Request codes must therefore be unique across categories.
func (b *Billing) DeliverResult(ctx context.Context, code, outcome int, data dombilling.Envelope) (bool, error) {
	handled, err := b.items.DeliverResult(ctx, code, outcome, data)
	if handled || err != nil {
		return handled, err
	}
	return b.subscriptions.DeliverResult(ctx, code, outcome, data)
}

// SetDefaultPurchaseCallback sets the default callback on both orchestrators.
func (b *Billing) SetDefaultPurchaseCallback(cb Callback[*dombilling.Purchase]) error {
	return multierr.Combine(
		b.items.SetDefaultPurchaseCallback(cb),
		b.subscriptions.SetDefaultPurchaseCallback(cb),
	)
}

func (b *Billing) CancelAll() {
	b.items.CancelAll()
	b.subscriptions.CancelAll()
}

func (b *Billing) Release() {
	b.items.Release()
	b.subscriptions.Release()
}
