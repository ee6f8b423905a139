// Package loader implements incremental loading of a paginated product listing.
//
// A Loader starts on page 1 and, each time the reader scrolls near the end of
// the document, requests the next page from a PageFetcher and appends the
// returned HTML fragment to a Container. The listing is considered finished
// when a page comes back empty or with fewer items than a full page.
//
// Example usage:
//
//	l, err := loader.New(storeClient, listing.Container, loader.Config{
//		PageURL:   "/products/?category=shoes&sort=price",
//		HasMore:   loader.ParseHasMore(listing.HasMoreAttr()),
//		Indicator: listing.Spinner,
//	})
//	trigger := l.Attach(vp)
//	// call trigger() on every scroll notification
//
// States:
//   - idle: eligible for the next page
//   - loading: one request outstanding, further triggers are ignored
//   - exhausted: terminal, the scroll trigger is detached
//
// Failed requests (network errors, non-2xx responses) are logged and leave the
// loader idle so the next qualifying scroll retries the same page.
package loader
