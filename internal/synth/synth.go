// Package synth produces the synthetic events a verification run inserts.
package synth

import (
	"math/rand/v2"
	"time"

	"github.com/roach88/sdsverify/internal/sds"
)

// Magnitude bounds the absolute value of synthesized measurements.
const Magnitude = 100.0

// The state pair written for the stated event: an I/O timeout.
const (
	IOTimeoutCode int32 = 246
	IOTimeoutName       = "I/O Timeout"
)

// Count is the number of events Synthesize returns.
const Count = 4

// Synthesize returns four events covering the shapes a streaming value can
// take, at now, now-1s, now-2s and now-3s:
//
//  1. positive value in [0, Magnitude)
//  2. negative value in (-Magnitude, 0)
//  3. positive value flagged questionable
//  4. no value, I/O timeout system state
//
// Timestamps are the record keys in the target stream and never collide.
// Only the magnitudes depend on rnd.
func Synthesize(now time.Time, rnd *rand.Rand) []sds.Event {
	return []sds.Event{
		sds.NewValuedEvent(now, positive(rnd), sds.Quality{}),
		sds.NewValuedEvent(now.Add(-1*time.Second), negative(rnd), sds.Quality{}),
		sds.NewValuedEvent(now.Add(-2*time.Second), positive(rnd), sds.Quality{Questionable: true}),
		sds.NewStatedEvent(now.Add(-3*time.Second), IOTimeoutCode, IOTimeoutName, sds.Quality{}),
	}
}

func positive(rnd *rand.Rand) float64 {
	return rnd.Float64() * Magnitude
}

// negative redraws on zero so the value is strictly below zero.
func negative(rnd *rand.Rand) float64 {
	for {
		if v := -rnd.Float64() * Magnitude; v < 0 {
			return v
		}
	}
}
