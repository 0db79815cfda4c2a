package billing

import dombilling "github.com/Zhima-Mochi/minishop-billing/internal/domain/billing"

// Policy captures what differs between purchase categories.
type Policy struct {
	Category dombilling.Category
	// AllowReplace permits launching with old SKUs (subscription upgrades).
	AllowReplace bool
	// Consumable permits Consume.
	Consumable bool
}

func ItemPolicy() Policy {
	return Policy{Category: dombilling.CategoryItem, Consumable: true}
}

func SubscriptionPolicy() Policy {
	return Policy{Category: dombilling.CategorySubscription, AllowReplace: true}
}

// PolicyFor returns the policy of a category.
func PolicyFor(c dombilling.Category) Policy {
	if c == dombilling.CategorySubscription {
		return SubscriptionPolicy()
	}
	return ItemPolicy()
}
