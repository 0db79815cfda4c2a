package receipt

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/Zhima-Mochi/minishop-billing/internal/observability"
)

const componentVerifier = "receipt_verifier"

// Verifier checks SHA1-with-RSA signatures over receipt payloads using an
// X.509 (PKIX) encoded public key.
type Verifier struct {
	log observability.Logger
}

func NewVerifier(logger observability.Logger) *Verifier {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Verifier{log: logger.With(observability.F("component", componentVerifier))}
}

// Verify reports whether signature is a valid signature of signedData under
// publicKeyBase64. It never fails with an error: every problem is logged and
// reported as false. productID is only consulted for the test sentinels,
// which are accepted without a signature in non-release builds.
func (v *Verifier) Verify(productID, publicKeyBase64, signedData, signature string) bool {
	if signedData == "" || publicKeyBase64 == "" || signature == "" {
		if testSentinelsEnabled && isTestSentinel(productID) {
			v.log.Warn("receipt_test_sentinel_accepted",
				observability.F("product_id", productID),
			)
			return true
		}
		v.log.Warn("receipt_verify_failed",
			observability.F("product_id", productID),
			observability.F("reason", "missing data, key or signature"),
		)
		return false
	}

	key, err := ParsePublicKey(publicKeyBase64)
	if err != nil {
		v.log.Warn("receipt_verify_failed",
			observability.F("product_id", productID),
			observability.F("reason", "bad public key"),
			observability.F("error", err),
		)
		return false
	}

	if err := verifySignature(key, signedData, signature); err != nil {
		v.log.Warn("receipt_verify_failed",
			observability.F("product_id", productID),
			observability.F("reason", "signature mismatch"),
			observability.F("error", err),
		)
		return false
	}
	return true
}

// ParsePublicKey decodes base64 X.509 key material into an RSA public key.
func ParsePublicKey(encoded string) (*rsa.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 public key: %w", err)
	}
	pub, err := x509.ParsePKIXPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not an RSA key")
	}
	return rsaPub, nil
}

func verifySignature(key *rsa.PublicKey, signedData, signature string) error {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("invalid base64 signature: %w", err)
	}
	digest := sha1.Sum([]byte(signedData))
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA1, digest[:], sig); err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	return nil
}

// Sign produces the signature Verify expects. It is used by the sandbox
// service to issue receipts.
func Sign(key *rsa.PrivateKey, signedData string) (string, error) {
	digest := sha1.Sum([]byte(signedData))
	sig, err := rsa.SignPKCS1v15(nil, key, crypto.SHA1, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign receipt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// EncodePublicKey returns the base64 X.509 form of key.
func EncodePublicKey(key *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}
