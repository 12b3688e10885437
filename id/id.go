// Package id mints run identifiers. Trades and orders inside a run use the
// engine's sequential ids; runs need ids that sort by creation time across
// processes, so they are ULIDs.
package id

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy io.Reader
	now     = func() time.Time { return time.Now().UTC() }
)

func init() {
	var seed int64
	_ = binary.Read(cryptorand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	// Monotonic keeps ids minted in the same millisecond increasing.
	entropy = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a fresh run id.
func New() string {
	mu.Lock()
	defer mu.Unlock()

	u, err := ulid.New(ulid.Timestamp(now()), entropy)
	if err != nil {
		panic(fmt.Sprintf("id: %v", err))
	}
	return u.String()
}

// Time reports when a run id was minted.
func Time(s string) (time.Time, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ulid.Time(u.Time()).UTC(), nil
}
