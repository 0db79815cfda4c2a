package billing

import "iter"

// ordered keeps values keyed by SKU in first-insertion order.
// A later value for the same SKU replaces the earlier one in place.
type ordered[T any] struct {
	keys  []string
	byKey map[string]T
}

func newOrdered[T any](n int) ordered[T] {
	return ordered[T]{keys: make([]string, 0, n), byKey: make(map[string]T, n)}
}

func (o *ordered[T]) put(key string, v T) {
	if _, ok := o.byKey[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.byKey[key] = v
}

// Len returns the number of SKUs.
func (o ordered[T]) Len() int { return len(o.keys) }

// SKUs returns the SKUs in insertion order.
func (o ordered[T]) SKUs() []string { return append([]string(nil), o.keys...) }

// Get returns the value stored for sku.
func (o ordered[T]) Get(sku string) (T, bool) {
	v, ok := o.byKey[sku]
	return v, ok
}

// Has reports whether sku is present.
func (o ordered[T]) Has(sku string) bool {
	_, ok := o.byKey[sku]
	return ok
}

// All iterates SKU/value pairs in insertion order.
func (o ordered[T]) All() iter.Seq2[string, T] {
	return func(yield func(string, T) bool) {
		for _, k := range o.keys {
			if !yield(k, o.byKey[k]) {
				return
			}
		}
	}
}

// Values returns the values in insertion order.
func (o ordered[T]) Values() []T {
	out := make([]T, 0, len(o.keys))
	for _, k := range o.keys {
		out = append(out, o.byKey[k])
	}
	return out
}

// ItemCatalog is a read-only SKU -> Item view.
type ItemCatalog struct{ ordered[*Item] }

func NewItemCatalog(items ...*Item) *ItemCatalog {
	c := &ItemCatalog{newOrdered[*Item](len(items))}
	for _, it := range items {
		c.put(it.SKU, it)
	}
	return c
}

// PurchaseCollection is a read-only SKU -> Purchase view.
type PurchaseCollection struct{ ordered[*Purchase] }

func NewPurchaseCollection(purchases ...*Purchase) *PurchaseCollection {
	c := &PurchaseCollection{newOrdered[*Purchase](len(purchases))}
	for _, p := range purchases {
		c.put(p.SKU, p)
	}
	return c
}
