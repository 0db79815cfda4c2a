package billing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContextBuilder(t *testing.T) {
	platform := &fakePlatform{}

	_, err := NewContextBuilder().PackageName(testPackage).Build()
	require.Error(t, err)
	_, err = NewContextBuilder().Platform(platform).Build()
	require.Error(t, err)
	_, err = NewContextBuilder().Platform(platform).PackageName(testPackage).APIVersion(2).Build()
	require.Error(t, err)

	b := NewContextBuilder().Platform(platform).PackageName(testPackage).PublicKey(testKey)
	c, err := b.Build()
	require.NoError(t, err)
	require.Equal(t, DefaultAPIVersion, c.APIVersion())
	require.Equal(t, testPackage, c.PackageName())
	require.Equal(t, testKey, c.PublicKey())
	require.Same(t, platform, c.Platform())
	require.NotNil(t, c.Logger())

	// Later builder changes do not leak into contexts already built.
	b.APIVersion(5).PackageName("com.other")
	require.Equal(t, DefaultAPIVersion, c.APIVersion())
	require.Equal(t, testPackage, c.PackageName())
}

func TestPolicyFor(t *testing.T) {
	require.Equal(t, SubscriptionPolicy(), PolicyFor("subs"))
	require.Equal(t, ItemPolicy(), PolicyFor("inapp"))
	require.True(t, ItemPolicy().Consumable)
	require.False(t, ItemPolicy().AllowReplace)
	require.True(t, SubscriptionPolicy().AllowReplace)
	require.False(t, SubscriptionPolicy().Consumable)
}
