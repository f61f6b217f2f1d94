//go:build pagestore_debug

package pagestore

const debugChecks = true
