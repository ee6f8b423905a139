package cache

import (
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cached storefront response.
type Key struct {
	// Path is the request path (e.g. "/products/").
	Path string

	// Query holds every query parameter, including page.
	Query url.Values

	// Fragment distinguishes partial (XMLHttpRequest) responses from full pages.
	Fragment bool
}

// KeyFromURL builds a key for a request URL.
func KeyFromURL(u *url.URL, fragment bool) Key {
	return Key{
		Path:     u.Path,
		Query:    u.Query(),
		Fragment: fragment,
	}
}

// String generates a deterministic key.
// Format: storefront:<variant>:<path>:k1=v1:k2=v2a,v2b
//
// Example:
//
//	storefront:fragment:products:category=shoes:page=2:sort=price
func (k Key) String() string {
	variant := "page"
	if k.Fragment {
		variant = "fragment"
	}
	parts := []string{"storefront", variant}

	if path := strings.Trim(k.Path, "/"); path != "" {
		parts = append(parts, path)
	}

	if len(k.Query) > 0 {
		keys := make([]string, 0, len(k.Query))
		for key := range k.Query {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, key+"="+strings.Join(k.Query[key], ","))
		}
	}

	return strings.Join(parts, ":")
}
