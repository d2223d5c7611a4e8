// Package ids generates identifiers stamped onto outgoing requests.
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// NewIdempotencyKey returns a lexicographically sortable identifier sent in
// the Idempotency-Key header of mutating requests, so a replayed call after
// a credential refresh cannot double-apply on the server.
func NewIdempotencyKey() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
