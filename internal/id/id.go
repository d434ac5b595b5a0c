// Package id generates store identifiers.
//
// [New] is the default generator (random UUID v4). [Timestamped] produces the
// compact millisecond-timestamp-plus-random form, for callers that want ids
// which sort roughly by creation time.
package id

import (
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// New returns a random UUID v4 string.
func New() string {
	return uuid.NewString()
}

// Timestamped returns the current Unix time in milliseconds followed by a
// random four-digit number in [1000, 9999].
func Timestamped() string {
	return timestamped(time.Now(), rand.IntN(9000)+1000)
}

func timestamped(now time.Time, suffix int) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + strconv.Itoa(suffix)
}
