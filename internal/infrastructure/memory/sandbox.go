package memory

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	dombilling "github.com/Zhima-Mochi/minishop-billing/internal/domain/billing"
	"github.com/Zhima-Mochi/minishop-billing/internal/infrastructure/receipt"
	"github.com/google/uuid"
)

const defaultPageSize = 25

var ErrUnknownIntent = errors.New("sandbox: unknown or revoked intent")

// Product is a SKU offered by the sandbox.
type Product struct {
	SKU               string
	Type              dombilling.Category
	Title             string
	Description       string
	Price             string
	Currency          string
	PriceAmountMicros int64
}

type owned struct {
	sku       string
	category  dombilling.Category
	token     string
	raw       string
	signature string
}

type intent struct {
	sku      string
	category dombilling.Category
	oldSkus  []string
	payload  string
}

// Sandbox is an in-memory billing service. Receipts are signed with key so
// they pass the real verifier.
type Sandbox struct {
	mu       sync.RWMutex
	pkg      string
	key      *rsa.PrivateKey
	pageSize int
	now      func() time.Time

	products map[string]Product
	order    []string
	owned    map[dombilling.Category][]*owned
	intents  map[dombilling.PendingIntent]*intent
}

var _ dombilling.Service = (*Sandbox)(nil)

type Option func(*Sandbox)

// WithPageSize sets how many purchases a GetPurchases page holds.
func WithPageSize(n int) Option {
	return func(s *Sandbox) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Sandbox) { s.now = now }
}

func NewSandbox(packageName string, key *rsa.PrivateKey, opts ...Option) *Sandbox {
	s := &Sandbox{
		pkg:      packageName,
		key:      key,
		pageSize: defaultPageSize,
		now:      time.Now,
		products: make(map[string]Product),
		owned:    make(map[dombilling.Category][]*owned),
		intents:  make(map[dombilling.PendingIntent]*intent),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddProduct registers or replaces a product.
func (s *Sandbox) AddProduct(p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.products[p.SKU]; !exists {
		s.order = append(s.order, p.SKU)
	}
	s.products[p.SKU] = p
}

// Products returns the catalog in insertion order.
func (s *Sandbox) Products() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Product, 0, len(s.order))
	for _, sku := range s.order {
		out = append(out, s.products[sku])
	}
	return out
}

func status(code int) dombilling.Envelope {
	return dombilling.Envelope{dombilling.KeyResponseCode: int32(code)}
}

func (s *Sandbox) checkPackage(packageName string) bool { return packageName == s.pkg }

func (s *Sandbox) IsBillingSupported(ctx context.Context, apiVersion int, packageName string, category dombilling.Category) (int, error) {
	_ = ctx
	switch {
	case !s.checkPackage(packageName):
		return dombilling.ResultDeveloperError, nil
	case apiVersion < 3:
		return dombilling.ResultBillingUnavailable, nil
	case category != dombilling.CategoryItem && category != dombilling.CategorySubscription:
		return dombilling.ResultBillingUnavailable, nil
	default:
		return dombilling.ResultOK, nil
	}
}

func (s *Sandbox) GetSkuDetails(ctx context.Context, apiVersion int, packageName string, category dombilling.Category, skus []string) (dombilling.Envelope, error) {
	_ = ctx
	if !s.checkPackage(packageName) || len(skus) > dombilling.SkuBatchSize {
		return status(dombilling.ResultDeveloperError), nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	details := make([]string, 0, len(skus))
	for _, sku := range skus {
		p, ok := s.products[sku]
		if !ok || p.Type != category {
			continue
		}
		raw, err := json.Marshal(skuDetails{
			ProductID:         p.SKU,
			Type:              string(p.Type),
			Title:             p.Title,
			Description:       p.Description,
			Price:             p.Price,
			Currency:          p.Currency,
			PriceAmountMicros: p.PriceAmountMicros,
		})
		if err != nil {
			return nil, err
		}
		details = append(details, string(raw))
	}
	// Successful responses carry no status field.
	return dombilling.Envelope{dombilling.KeyDetailsList: details}, nil
}

func (s *Sandbox) GetBuyIntent(ctx context.Context, apiVersion int, packageName, sku string, category dombilling.Category, developerPayload string) (dombilling.Envelope, error) {
	_ = ctx
	if !s.checkPackage(packageName) {
		return status(dombilling.ResultDeveloperError), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if code := s.purchasableLocked(sku, category); code != dombilling.ResultOK {
		return status(code), nil
	}
	return s.newIntentLocked(&intent{sku: sku, category: category, payload: developerPayload}), nil
}

// GetBuyIntentToReplaceSkus only exists from API version 5 on.
func (s *Sandbox) GetBuyIntentToReplaceSkus(ctx context.Context, apiVersion int, packageName string, oldSkus []string, newSku string, category dombilling.Category, developerPayload string) (dombilling.Envelope, error) {
	_ = ctx
	if !s.checkPackage(packageName) || apiVersion < dombilling.ReplaceSkusAPIVersion || category != dombilling.CategorySubscription {
		return status(dombilling.ResultDeveloperError), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, old := range oldSkus {
		if s.findLocked(category, func(o *owned) bool { return o.sku == old }) < 0 {
			return status(dombilling.ResultItemNotOwned), nil
		}
	}
	if code := s.purchasableLocked(newSku, category); code != dombilling.ResultOK {
		return status(code), nil
	}
	return s.newIntentLocked(&intent{
		sku:      newSku,
		category: category,
		oldSkus:  slices.Clone(oldSkus),
		payload:  developerPayload,
	}), nil
}

// caller holds s.mu
func (s *Sandbox) purchasableLocked(sku string, category dombilling.Category) int {
	p, ok := s.products[sku]
	switch {
	case !ok:
		return dombilling.ResultItemUnavailable
	case p.Type != category:
		return dombilling.ResultDeveloperError
	case s.findLocked(category, func(o *owned) bool { return o.sku == sku }) >= 0:
		return dombilling.ResultItemAlreadyOwned
	default:
		return dombilling.ResultOK
	}
}

// caller holds s.mu
func (s *Sandbox) newIntentLocked(in *intent) dombilling.Envelope {
	id := dombilling.PendingIntent("intent-" + uuid.NewString())
	s.intents[id] = in
	return dombilling.Envelope{dombilling.KeyBuyIntent: string(id)}
}

// caller holds s.mu
func (s *Sandbox) findLocked(category dombilling.Category, match func(*owned) bool) int {
	return slices.IndexFunc(s.owned[category], match)
}

func (s *Sandbox) GetPurchases(ctx context.Context, apiVersion int, packageName string, category dombilling.Category, continuationToken string) (dombilling.Envelope, error) {
	_ = ctx
	if !s.checkPackage(packageName) {
		return status(dombilling.ResultDeveloperError), nil
	}
	offset := 0
	if continuationToken != "" {
		n, err := strconv.Atoi(continuationToken)
		if err != nil || n < 0 {
			return status(dombilling.ResultDeveloperError), nil
		}
		offset = n
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.owned[category]
	offset = min(offset, len(all))
	end := min(offset+s.pageSize, len(all))

	env := dombilling.Envelope{}
	skus := make([]string, 0, end-offset)
	data := make([]string, 0, end-offset)
	sigs := make([]string, 0, end-offset)
	for _, o := range all[offset:end] {
		skus = append(skus, o.sku)
		data = append(data, o.raw)
		sigs = append(sigs, o.signature)
	}
	env[dombilling.KeyPurchaseItemList] = skus
	env[dombilling.KeyPurchaseDataList] = data
	env[dombilling.KeySignatureList] = sigs
	if end < len(all) {
		env[dombilling.KeyContinuationToken] = strconv.Itoa(end)
	}
	return env, nil
}

func (s *Sandbox) ConsumePurchase(ctx context.Context, apiVersion int, packageName, purchaseToken string) (int, error) {
	_ = ctx
	if !s.checkPackage(packageName) || purchaseToken == "" {
		return dombilling.ResultDeveloperError, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.findLocked(dombilling.CategoryItem, func(o *owned) bool { return o.token == purchaseToken })
	if i < 0 {
		return dombilling.ResultItemNotOwned, nil
	}
	s.owned[dombilling.CategoryItem] = slices.Delete(s.owned[dombilling.CategoryItem], i, i+1)
	return dombilling.ResultOK, nil
}

// Pending reports whether id is a live buy intent.
func (s *Sandbox) Pending(id dombilling.PendingIntent) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.intents[id]
	return ok
}

// Cancel drops a buy intent, as if the user dismissed the purchase UI.
func (s *Sandbox) Cancel(id dombilling.PendingIntent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.intents, id)
}

// Complete fulfills a buy intent and returns the result payload the purchase
// UI hands back: status, signed purchase data and signature.
func (s *Sandbox) Complete(id dombilling.PendingIntent) (dombilling.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.intents[id]
	if !ok {
		return nil, ErrUnknownIntent
	}
	delete(s.intents, id)

	o, err := s.issueLocked(in.sku, in.category, in.payload)
	if err != nil {
		return nil, err
	}
	for _, old := range in.oldSkus {
		if i := s.findLocked(in.category, func(x *owned) bool { return x.sku == old }); i >= 0 {
			s.owned[in.category] = slices.Delete(s.owned[in.category], i, i+1)
		}
	}
	return dombilling.Envelope{
		dombilling.KeyResponseCode: int32(dombilling.ResultOK),
		dombilling.KeyPurchaseData: o.raw,
		dombilling.KeySignature:    o.signature,
	}, nil
}

// Grant records sku as owned without a purchase flow and returns its token.
func (s *Sandbox) Grant(sku string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[sku]
	if !ok {
		return "", fmt.Errorf("sandbox: unknown sku %q", sku)
	}
	o, err := s.issueLocked(sku, p.Type, "")
	if err != nil {
		return "", err
	}
	return o.token, nil
}

// caller holds s.mu
func (s *Sandbox) issueLocked(sku string, category dombilling.Category, payload string) (*owned, error) {
	token := uuid.NewString()
	raw, err := json.Marshal(purchaseData{
		OrderID:          "GPA." + uuid.NewString(),
		PackageName:      s.pkg,
		ProductID:        sku,
		PurchaseTime:     s.now().UnixMilli(),
		PurchaseState:    0,
		DeveloperPayload: payload,
		PurchaseToken:    token,
		AutoRenewing:     category == dombilling.CategorySubscription,
	})
	if err != nil {
		return nil, fmt.Errorf("sandbox: encode purchase: %w", err)
	}
	sig, err := receipt.Sign(s.key, string(raw))
	if err != nil {
		return nil, fmt.Errorf("sandbox: sign purchase: %w", err)
	}
	o := &owned{sku: sku, category: category, token: token, raw: string(raw), signature: sig}
	s.owned[category] = append(s.owned[category], o)
	return o, nil
}

type skuDetails struct {
	ProductID         string `json:"productId"`
	Type              string `json:"type"`
	Title             string `json:"title"`
	Description       string `json:"description,omitempty"`
	Price             string `json:"price"`
	Currency          string `json:"price_currency_code"`
	PriceAmountMicros int64  `json:"price_amount_micros"`
}

type purchaseData struct {
	OrderID          string `json:"orderId"`
	PackageName      string `json:"packageName"`
	ProductID        string `json:"productId"`
	PurchaseTime     int64  `json:"purchaseTime"`
	PurchaseState    int    `json:"purchaseState"`
	DeveloperPayload string `json:"developerPayload,omitempty"`
	PurchaseToken    string `json:"purchaseToken"`
	AutoRenewing     bool   `json:"autoRenewing,omitempty"`
}
