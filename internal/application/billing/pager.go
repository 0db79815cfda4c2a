package billing

import (
	"context"
	"fmt"

	dombilling "github.com/Zhima-Mochi/minishop-billing/internal/domain/billing"
	"github.com/Zhima-Mochi/minishop-billing/internal/observability"
	"go.uber.org/multierr"
)

// Pager fetches every owned purchase of a category, following continuation
// tokens until the service returns an empty one.
type Pager struct {
	apiVersion  int
	packageName string
	publicKey   string
	verifier    Verifier
	decoder     ResponseDecoder
	log         observability.Logger
}

func NewPager(bctx *Context, verifier Verifier) *Pager {
	logger := bctx.Logger().With(observability.F("component", "pager"))
	return &Pager{
		apiVersion:  bctx.APIVersion(),
		packageName: bctx.PackageName(),
		publicKey:   bctx.PublicKey(),
		verifier:    verifier,
		decoder:     NewResponseDecoder(logger),
		log:         logger,
	}
}

// FetchAll returns every verified purchase. Any page failure fails the whole call.
func (p *Pager) FetchAll(ctx context.Context, svc dombilling.Service, category dombilling.Category) (*dombilling.PurchaseCollection, error) {
	var (
		all   []*dombilling.Purchase
		token string
	)
	for page := 1; ; page++ {
		env, err := svc.GetPurchases(ctx, p.apiVersion, p.packageName, category, token)
		if err != nil {
			return nil, dombilling.WrapError(dombilling.KindRemote, "get purchases", err)
		}

		purchases, next, err := p.decodePage(env, page)
		if err != nil {
			return nil, err
		}
		all = append(all, purchases...)

		p.log.Debug("purchases_page_fetched",
			observability.F("page", page),
			observability.F("count", len(purchases)),
			observability.F("has_more", next != ""),
		)
		if next == "" {
			break
		}
		token = next
	}
	return dombilling.NewPurchaseCollection(all...), nil
}

func (p *Pager) decodePage(env dombilling.Envelope, page int) ([]*dombilling.Purchase, string, error) {
	code, err := p.decoder.Decode(env)
	if err != nil {
		return nil, "", err
	}
	if code != dombilling.ResultOK {
		return nil, "", dombilling.ResponseError("get purchases", code)
	}

	data, ok := env.Strings(dombilling.KeyPurchaseDataList)
	if !ok {
		return nil, "", dombilling.NewError(dombilling.KindPurchaseDataMissing, "purchase data list missing")
	}
	signatures, ok := env.Strings(dombilling.KeySignatureList)
	if !ok {
		return nil, "", dombilling.NewError(dombilling.KindPurchaseDataMissing, "signature list missing")
	}
	if len(data) != len(signatures) {
		return nil, "", dombilling.NewError(dombilling.KindSizeMismatch,
			fmt.Sprintf("%d purchases but %d signatures", len(data), len(signatures)))
	}

	var (
		verifyErr error
		failures  int
	)
	for i := range data {
		if !p.verifier.Verify(dombilling.PeekProductID(data[i]), p.publicKey, data[i], signatures[i]) {
			failures++
			verifyErr = multierr.Append(verifyErr, fmt.Errorf("page %d purchase %d: signature not verified", page, i))
		}
	}
	if failures > 0 {
		return nil, "", &dombilling.Error{
			Kind: dombilling.KindVerificationFailed,
			Code: failures,
			Msg:  fmt.Sprintf("%d of %d purchases failed verification", failures, len(data)),
			Err:  verifyErr,
		}
	}

	purchases := make([]*dombilling.Purchase, 0, len(data))
	for i := range data {
		purchase, err := dombilling.ParsePurchase(data[i], signatures[i])
		if err != nil {
			return nil, "", dombilling.WrapError(dombilling.KindBadResponse, "decode purchase", err)
		}
		purchases = append(purchases, purchase)
	}
	return purchases, env.String(dombilling.KeyContinuationToken), nil
}
