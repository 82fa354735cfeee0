/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"
)

func Example() {
	ctx := context.Background()

	// A limiter without a shared counter backend uses the exact local
	// sliding window; typically the counter is a rediscache backend.
	limiter := New(nil)

	rule := Rule{RequestsPerWindow: 2, Window: time.Minute, Strategy: StrategyCombined}
	req := Request{ClientIP: "192.0.2.1", UserID: "u1"}

	for i := 0; i < 3; i++ {
		result := limiter.IsRateLimitedForRequest(ctx, req, rule)
		fmt.Printf("limited=%v count=%d limit=%d\n", result.Limited, result.Count, result.Limit)
	}

	// Output:
	// limited=false count=1 limit=2
	// limited=false count=2 limit=2
	// limited=true count=3 limit=2
}
