package inference

import (
	"math"
	"time"
)

// backoffDelay returns the wait before poll attempt k: the initial wait
// multiplied by the growth factor raised to the attempt index. With the
// defaults (3s, 1.04) the waits grow slowly toward the attempt bound.
func backoffDelay(initial time.Duration, factor float64, attempt int) time.Duration {
	return time.Duration(float64(initial) * math.Pow(factor, float64(attempt)))
}
