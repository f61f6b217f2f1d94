//go:build !pagestore_debug

package pagestore

// debugChecks enables structure checks on every balance step. Build with
// -tags pagestore_debug to turn them on.
const debugChecks = false
