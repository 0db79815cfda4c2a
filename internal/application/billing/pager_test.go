package billing

import (
	"context"
	"errors"
	"testing"

	dombilling "github.com/Zhima-Mochi/minishop-billing/internal/domain/billing"
	"github.com/stretchr/testify/require"
)

func newTestPager(t *testing.T, v Verifier) *Pager {
	t.Helper()
	bctx, err := NewContextBuilder().
		Platform(&fakePlatform{}).
		PackageName(testPackage).
		PublicKey(testKey).
		Build()
	require.NoError(t, err)
	return NewPager(bctx, v)
}

func TestPagerFollowsContinuationTokens(t *testing.T) {
	svc := &fakeService{pages: []dombilling.Envelope{
		page(0, 10, "token-1"),
		page(10, 10, "token-2"),
		page(20, 10, ""),
	}}
	verifier := &fakeVerifier{}

	got, err := newTestPager(t, verifier).FetchAll(context.Background(), svc, dombilling.CategoryItem)
	require.NoError(t, err)
	require.Equal(t, 30, got.Len())
	require.Equal(t, []string{"", "token-1", "token-2"}, svc.pageTokens)
	require.EqualValues(t, 30, verifier.calls.Load())

	p, ok := got.Get("sku-25")
	require.True(t, ok)
	require.Equal(t, "tok-25", p.Token)
	require.Equal(t, "sig", p.Signature)
}

func TestPagerStopsAtFirstPageWithoutToken(t *testing.T) {
	svc := &fakeService{pages: []dombilling.Envelope{
		page(0, 10, "token-1"),
		page(10, 10, "token-2"),
		page(20, 10, ""),
	}}
	// A page carrying no token ends the loop even when the service has more.
	svc.pages[1] = page(10, 10, "")

	got, err := newTestPager(t, &fakeVerifier{}).FetchAll(context.Background(), svc, dombilling.CategoryItem)
	require.NoError(t, err)
	require.Equal(t, 20, got.Len())
	require.Len(t, svc.pageTokens, 2)
}

func TestPagerVerificationGate(t *testing.T) {
	env := page(0, 5, "")
	sigs := env[dombilling.KeySignatureList].([]string)
	sigs[2] = "bad"
	svc := &fakeService{pages: []dombilling.Envelope{env}}
	verifier := &fakeVerifier{}

	got, err := newTestPager(t, verifier).FetchAll(context.Background(), svc, dombilling.CategoryItem)
	require.Nil(t, got)
	require.ErrorIs(t, err, dombilling.ErrVerificationFailed)
	require.Equal(t, 1, dombilling.CodeOf(err))
	// Every pair of the page is still checked.
	require.EqualValues(t, 5, verifier.calls.Load())
}

func TestPagerProtocolViolations(t *testing.T) {
	ok := page(0, 2, "")
	withoutData := page(0, 2, "")
	delete(withoutData, dombilling.KeyPurchaseDataList)
	withoutSigs := page(0, 2, "")
	delete(withoutSigs, dombilling.KeySignatureList)
	mismatched := page(0, 2, "")
	mismatched[dombilling.KeySignatureList] = []string{"sig"}
	malformed := page(0, 2, "")
	malformed[dombilling.KeyPurchaseDataList] = []string{purchaseJSON("a", "b"), "{not json"}
	malformed[dombilling.KeySignatureList] = []string{"sig", "sig"}
	notOK := page(0, 2, "")
	notOK[dombilling.KeyResponseCode] = int64(dombilling.ResultServiceUnavailable)
	badType := page(0, 2, "")
	badType[dombilling.KeyResponseCode] = "0"

	tests := []struct {
		name    string
		env     dombilling.Envelope
		svcErr  error
		wantErr error
	}{
		{name: "data list missing", env: withoutData, wantErr: dombilling.ErrPurchaseDataMissing},
		{name: "signature list missing", env: withoutSigs, wantErr: dombilling.ErrPurchaseDataMissing},
		{name: "size mismatch", env: mismatched, wantErr: dombilling.ErrSizeMismatch},
		{name: "malformed json", env: malformed, wantErr: dombilling.ErrBadResponse},
		{name: "status not ok", env: notOK, wantErr: dombilling.ErrResponseCode},
		{name: "status wrong type", env: badType, wantErr: dombilling.ErrUnexpectedResponseType},
		{name: "remote failure", env: ok, svcErr: errors.New("connection reset"), wantErr: dombilling.ErrRemote},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeService{pages: []dombilling.Envelope{tc.env}, err: tc.svcErr}
			got, err := newTestPager(t, &fakeVerifier{}).FetchAll(context.Background(), svc, dombilling.CategoryItem)
			require.Nil(t, got)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestPagerEmptyPage(t *testing.T) {
	svc := &fakeService{pages: []dombilling.Envelope{page(0, 0, "")}}
	got, err := newTestPager(t, &fakeVerifier{}).FetchAll(context.Background(), svc, dombilling.CategorySubscription)
	require.NoError(t, err)
	require.Zero(t, got.Len())
}
