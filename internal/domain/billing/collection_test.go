package billing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPurchaseCollectionKeepsInsertionOrder(t *testing.T) {
	c := NewPurchaseCollection(
		&Purchase{SKU: "c", Token: "1"},
		&Purchase{SKU: "a", Token: "2"},
		&Purchase{SKU: "b", Token: "3"},
		&Purchase{SKU: "a", Token: "4"},
	)

	require.Equal(t, 3, c.Len())
	require.Equal(t, []string{"c", "a", "b"}, c.SKUs())

	p, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, "4", p.Token)
	require.False(t, c.Has("missing"))

	var seen []string
	for sku, p := range c.All() {
		seen = append(seen, sku+p.Token)
	}
	require.Equal(t, []string{"c1", "a4", "b3"}, seen)
}

func TestItemCatalogValues(t *testing.T) {
	c := NewItemCatalog(&Item{SKU: "x"}, &Item{SKU: "y"})
	values := c.Values()
	require.Len(t, values, 2)
	require.Equal(t, "x", values[0].SKU)
	require.Equal(t, "y", values[1].SKU)
}
