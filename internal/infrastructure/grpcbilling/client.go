package grpcbilling

import (
	"context"

	dombilling "github.com/Zhima-Mochi/minishop-billing/internal/domain/billing"
	"google.golang.org/grpc"
)

// Client is a dombilling.Service reached over gRPC.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

var _ dombilling.Service = (*Client)(nil)

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	return c.conn.Invoke(ctx, fullMethod(method), req, resp, grpc.CallContentSubtype(codecName))
}

func (c *Client) invokeEnvelope(ctx context.Context, method string, req any) (dombilling.Envelope, error) {
	var raw map[string]any
	if err := c.invoke(ctx, method, req, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return dombilling.Envelope(normalize(raw).(map[string]any)), nil
}

func (c *Client) IsBillingSupported(ctx context.Context, apiVersion int, packageName string, category dombilling.Category) (int, error) {
	var resp codeResponse
	err := c.invoke(ctx, "IsBillingSupported", &supportedRequest{
		APIVersion:  apiVersion,
		PackageName: packageName,
		Type:        string(category),
	}, &resp)
	return resp.ResponseCode, err
}

func (c *Client) GetSkuDetails(ctx context.Context, apiVersion int, packageName string, category dombilling.Category, skus []string) (dombilling.Envelope, error) {
	return c.invokeEnvelope(ctx, "GetSkuDetails", &skuDetailsRequest{
		APIVersion:  apiVersion,
		PackageName: packageName,
		Type:        string(category),
		SKUs:        skus,
	})
}

func (c *Client) GetBuyIntent(ctx context.Context, apiVersion int, packageName, sku string, category dombilling.Category, developerPayload string) (dombilling.Envelope, error) {
	return c.invokeEnvelope(ctx, "GetBuyIntent", &buyIntentRequest{
		APIVersion:       apiVersion,
		PackageName:      packageName,
		SKU:              sku,
		Type:             string(category),
		DeveloperPayload: developerPayload,
	})
}

func (c *Client) GetBuyIntentToReplaceSkus(ctx context.Context, apiVersion int, packageName string, oldSkus []string, newSku string, category dombilling.Category, developerPayload string) (dombilling.Envelope, error) {
	return c.invokeEnvelope(ctx, "GetBuyIntentToReplaceSkus", &buyIntentRequest{
		APIVersion:       apiVersion,
		PackageName:      packageName,
		SKU:              newSku,
		OldSKUs:          oldSkus,
		Type:             string(category),
		DeveloperPayload: developerPayload,
	})
}

func (c *Client) GetPurchases(ctx context.Context, apiVersion int, packageName string, category dombilling.Category, continuationToken string) (dombilling.Envelope, error) {
	return c.invokeEnvelope(ctx, "GetPurchases", &purchasesRequest{
		APIVersion:        apiVersion,
		PackageName:       packageName,
		Type:              string(category),
		ContinuationToken: continuationToken,
	})
}

func (c *Client) ConsumePurchase(ctx context.Context, apiVersion int, packageName, purchaseToken string) (int, error) {
	var resp codeResponse
	err := c.invoke(ctx, "ConsumePurchase", &consumeRequest{
		APIVersion:    apiVersion,
		PackageName:   packageName,
		PurchaseToken: purchaseToken,
	}, &resp)
	return resp.ResponseCode, err
}
