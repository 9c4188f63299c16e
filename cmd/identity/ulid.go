package identity

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	ulidMu      sync.Mutex
	ulidEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewULID mints a 26-char account identifier stamped with now.
// The shared monotonic entropy source keeps ids from the same
// millisecond lexicographically ordered; the mutex makes it safe for
// concurrent registrations.
func NewULID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	ulidMu.Lock()
	defer ulidMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(now), ulidEntropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
