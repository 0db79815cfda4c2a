package billing

import "fmt"

// Category is the purchase type understood by the billing service.
type Category string

const (
	CategoryItem         Category = "inapp"
	CategorySubscription Category = "subs"
)

func (c Category) String() string { return string(c) }

// ParseCategory accepts the wire names plus the long forms used on the command line.
func ParseCategory(s string) (Category, error) {
	switch s {
	case "inapp", "item", "items":
		return CategoryItem, nil
	case "subs", "subscription", "subscriptions":
		return CategorySubscription, nil
	default:
		return "", fmt.Errorf("billing: unknown category %q", s)
	}
}
