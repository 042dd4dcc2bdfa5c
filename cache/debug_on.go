//go:build ganimdebug

package cache

// Built with -tags ganimdebug: bookkeeping is re-verified after every
// mutation and a mismatch panics.
const debugChecks = true
