package infra

import (
	"math"
	"time"
)

const (
	backoffBaseDelay = 1 * time.Second
	backoffMaxDelay  = 60 * time.Second
)

// CalculateBackoff returns the delay for the given retry attempt using
// exponential backoff capped at backoffMaxDelay.
func CalculateBackoff(retryCount int) time.Duration {
	// Cap retry count to prevent overflow (2^6 = 64 seconds > max 60s)
	if retryCount > 6 {
		return backoffMaxDelay
	}
	delay := backoffBaseDelay * time.Duration(math.Pow(2, float64(retryCount)))
	if delay > backoffMaxDelay {
		delay = backoffMaxDelay
	}
	return delay
}
