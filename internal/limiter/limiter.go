// Package limiter throttles repeated failed logins per (username, client address).
package limiter

import (
	"context"
	"crypto/sha256"
	"time"
)

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether login is currently allowed and, if not, how long to wait.
	Allow(ctx context.Context, username string, addrHash []byte) (bool, time.Duration, error)
	// Success clears the failure streak after a successful login.
	Success(ctx context.Context, username string, addrHash []byte) error
	// Failure records a failed attempt and reports whether the pair is now locked.
	Failure(ctx context.Context, username string, addrHash []byte) (bool, time.Duration, error)
}

// HashAddr returns a stable digest of a client address so raw IPs are never stored.
func HashAddr(addr string) []byte {
	h := sha256.Sum256([]byte(addr))
	return h[:]
}

// Nop never locks anybody out; used in tests and when lockout is disabled.
type Nop struct{}

func (Nop) Allow(context.Context, string, []byte) (bool, time.Duration, error) { return true, 0, nil }
func (Nop) Success(context.Context, string, []byte) error                      { return nil }
func (Nop) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	return false, 0, nil
}
