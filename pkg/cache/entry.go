package cache

import (
	"bytes"
	"net/http"
	"time"
)

// Entry is a stored storefront response: a full page or a listing fragment.
type Entry struct {
	Data       []byte      `json:"data"`
	StatusCode int         `json:"status_code"`
	Headers    http.Header `json:"headers"`

	// Validators sent back on revalidation.
	ETag         string    `json:"etag"`
	LastModified time.Time `json:"last_modified"`

	Expires  time.Time `json:"expires"`
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired reports whether Expires has passed.
func (e *Entry) IsExpired() bool {
	return !time.Now().Before(e.Expires)
}

// TTL is the time left until Expires, never negative.
func (e *Entry) TTL() time.Duration {
	return max(time.Until(e.Expires), 0)
}

// HasValidators reports whether the entry can be revalidated with a
// conditional request.
func (e *Entry) HasValidators() bool {
	return e.ETag != "" || !e.LastModified.IsZero()
}

// EndOfListing reports whether the entry is a successful fragment without
// items, which the storefront sends past the last page.
func (e *Entry) EndOfListing() bool {
	return e.StatusCode == http.StatusOK && len(bytes.TrimSpace(e.Data)) == 0
}
