package billing

import "context"

// Service is the remote billing service as seen through a live connection.
// A returned error means the call itself failed; service-level failures are
// reported through the response code inside the result.
type Service interface {
	IsBillingSupported(ctx context.Context, apiVersion int, packageName string, category Category) (int, error)
	GetSkuDetails(ctx context.Context, apiVersion int, packageName string, category Category, skus []string) (Envelope, error)
	GetBuyIntent(ctx context.Context, apiVersion int, packageName, sku string, category Category, developerPayload string) (Envelope, error)
	GetBuyIntentToReplaceSkus(ctx context.Context, apiVersion int, packageName string, oldSkus []string, newSku string, category Category, developerPayload string) (Envelope, error)
	GetPurchases(ctx context.Context, apiVersion int, packageName string, category Category, continuationToken string) (Envelope, error)
	ConsumePurchase(ctx context.Context, apiVersion int, packageName, purchaseToken string) (int, error)
}
