package receipt

// Reserved product ids for which the billing service returns unsigned static responses.
var testSentinels = map[string]struct{}{
	"android.test.purchased":        {},
	"android.test.canceled":         {},
	"android.test.refunded":         {},
	"android.test.item_unavailable": {},
}

func isTestSentinel(productID string) bool {
	_, ok := testSentinels[productID]
	return ok
}
