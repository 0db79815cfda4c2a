//go:build !release

package receipt

const testSentinelsEnabled = true
