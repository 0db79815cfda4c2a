package receipt

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

const payload = `{"orderId":"GPA.1","productId":"premium","purchaseToken":"tok"}`

func newKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pub, err := EncodePublicKey(&key.PublicKey)
	require.NoError(t, err)
	return key, pub
}

func TestVerify(t *testing.T) {
	key, pub := newKey(t)
	_, otherPub := newKey(t)
	sig, err := Sign(key, payload)
	require.NoError(t, err)

	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	ecDER, err := x509.MarshalPKIXPublicKey(&ecKey.PublicKey)
	require.NoError(t, err)
	ecPub := base64.StdEncoding.EncodeToString(ecDER)

	v := NewVerifier(nil)

	tests := []struct {
		name      string
		productID string
		key       string
		data      string
		signature string
		want      bool
	}{
		{name: "valid", productID: "premium", key: pub, data: payload, signature: sig, want: true},
		{name: "tampered data", productID: "premium", key: pub, data: payload + " ", signature: sig},
		{name: "other key", productID: "premium", key: otherPub, data: payload, signature: sig},
		{name: "empty signature", productID: "premium", key: pub, data: payload},
		{name: "empty key", productID: "premium", data: payload, signature: sig},
		{name: "empty data", productID: "premium", key: pub, signature: sig},
		{name: "malformed key base64", productID: "premium", key: "%%%", data: payload, signature: sig},
		{name: "key is not x509", productID: "premium", key: base64.StdEncoding.EncodeToString([]byte("nope")), data: payload, signature: sig},
		{name: "key is not rsa", productID: "premium", key: ecPub, data: payload, signature: sig},
		{name: "malformed signature base64", productID: "premium", key: pub, data: payload, signature: "***"},
		{name: "truncated signature", productID: "premium", key: pub, data: payload, signature: base64.StdEncoding.EncodeToString([]byte("short"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, v.Verify(tt.productID, tt.key, tt.data, tt.signature))
		})
	}
}

func TestVerifyIgnoresSentinelWhenSignaturePresent(t *testing.T) {
	_, pub := newKey(t)
	v := NewVerifier(nil)
	require.False(t, v.Verify("android.test.purchased", pub, payload, "c2ln"))
}
