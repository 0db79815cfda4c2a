//go:build !release

package receipt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifyAcceptsTestSentinels(t *testing.T) {
	v := NewVerifier(nil)
	for id := range testSentinels {
		require.True(t, v.Verify(id, "", "", ""), id)
	}
	require.False(t, v.Verify("android.test.unknown", "", "", ""))
}
