/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package memcache

import (
	"context"
	"fmt"
	"log"
	"time"

	cachekit "github.com/acronis/go-cachekit"
)

func Example() {
	ctx := context.Background()

	// Make a bounded in-process cache for storing maximum 1000 entries.
	backend, err := New(&cachekit.MemoryConfig{MaxEntries: 1000}, nil)
	if err != nil {
		log.Fatal(err)
	}
	if err = backend.Initialize(ctx); err != nil {
		log.Fatal(err)
	}
	defer func() { _ = backend.Shutdown(ctx) }()

	// Cache a value for one minute.
	backend.Set(ctx, "user:1:profile", map[string]interface{}{"name": "John"}, time.Minute)
	if value, ok := backend.Get(ctx, "user:1:profile"); ok {
		fmt.Println(value.(map[string]interface{})["name"])
	}

	// Count page views.
	backend.Incr(ctx, "pageviews", 1, cachekit.IncrOptions{})
	backend.Incr(ctx, "pageviews", 1, cachekit.IncrOptions{})
	fmt.Println(backend.Incr(ctx, "pageviews", 1, cachekit.IncrOptions{}))

	// Drop all cached profiles at once.
	fmt.Println(backend.InvalidatePattern(ctx, "user:*:profile"))

	// Output:
	// John
	// 3
	// 1
}
