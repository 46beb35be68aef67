package util

import (
	"math/rand"
	"strings"
	"sync"

	"github.com/oklog/ulid"
)

var (
	runIdEntropy = ulid.Monotonic(rand.New(rand.NewSource(rand.Int63())), 0)
	runIdMutex   sync.Mutex
)

// NewRunId returns a lower-case ULID stamped with the time given by clock.
// Ids taken from the same clock sort in the order they were created.
func NewRunId(clock Clock) string {
	runIdMutex.Lock()
	defer runIdMutex.Unlock()
	return strings.ToLower(ulid.MustNew(ulid.Timestamp(clock.Now()), runIdEntropy).String())
}
