// Package cache provides a Redis-backed cache for storefront responses.
//
// Listing fragments are cached under a key derived from the request path, the
// sorted query parameters (filters, sort order, page) and whether a fragment
// or a full page was requested, so two variants of the same URL never collide.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient)
//
//	key := cache.Key{
//		Path:     "/products/",
//		Query:    url.Values{"category": {"shoes"}, "page": {"2"}},
//		Fragment: true,
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the storefront
//	}
//
// # Conditional Requests
//
//	if cache.ShouldMakeConditionalRequest(entry) {
//		cache.AddConditionalHeaders(req, entry)
//		// a 304 response means the cached body is still current
//	}
//
// Entries live until the response's Expires header, or DefaultTTL when the
// server sends none. Purge drops every variant of a listing path at once.
//
// # Metrics
//
//   - storefront_cache_hits_total{layer="redis"}
//   - storefront_cache_misses_total
//   - storefront_cache_size_bytes{layer="redis"}
//   - storefront_cache_not_modified_total
//   - storefront_cache_conditional_requests_total
//   - storefront_cache_errors_total{operation}
package cache
