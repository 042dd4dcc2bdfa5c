//go:build !ganimdebug

package cache

const debugChecks = false
