// Package testutil provides a mock storefront for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// ListingPath serves the product listing.
	ListingPath = "/products/"

	// CSRFToken is the token the mock issues in the csrftoken cookie.
	CSRFToken = "mock-csrf-token"

	// PageSize is the number of products on a full listing page.
	PageSize = 12

	// MaxQuantity is the stock of every product.
	MaxQuantity = 10

	// UnitPrice is the price of every product.
	UnitPrice = 10.0
)

// MockResponse defines a canned response for a path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockStorefront is a configurable mock storefront for testing. It serves a
// paginated listing of numbered products, the wishlist toggle endpoint and
// the cart endpoints.
type MockStorefront struct {
	server   *httptest.Server
	mux      *http.ServeMux
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	products  int
	failPages map[int]int
	wishlist  map[int]bool
	cart      map[int]int

	// Tracking
	RequestCount      int
	ConditionalCount  int
	LastRequestHeader http.Header
	requests          []string
}

// NewMockStorefront creates a mock storefront listing products 1..products.
func NewMockStorefront(products int) *MockStorefront {
	mock := &MockStorefront{
		mux:       http.NewServeMux(),
		handlers:  make(map[string]func(w http.ResponseWriter, r *http.Request)),
		products:  products,
		failPages: make(map[int]int),
		wishlist:  make(map[int]bool),
		cart:      make(map[int]int),
	}

	mock.mux.HandleFunc("GET "+ListingPath, mock.listing)
	mock.mux.HandleFunc("POST /users/api/v1/wishlist/toggle/", mock.toggleWishlist)
	mock.mux.HandleFunc("POST /cart/add/{id}/", mock.cartChange("add"))
	mock.mux.HandleFunc("POST /cart/remove/{id}/", mock.cartChange("remove"))
	mock.mux.HandleFunc("POST /cart/set/{id}/", mock.cartChange("set"))
	mock.mux.HandleFunc("POST /cart/clear/", mock.clearCart)

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.requests = append(mock.requests, r.URL.RequestURI())
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.ConditionalCount++
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		mock.mux.ServeHTTP(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockStorefront) URL() string {
	return m.server.URL
}

// ListingURL returns the absolute listing URL with an optional raw query.
func (m *MockStorefront) ListingURL(rawQuery string) string {
	if rawQuery == "" {
		return m.server.URL + ListingPath
	}
	return m.server.URL + ListingPath + "?" + rawQuery
}

// Close shuts down the mock server.
func (m *MockStorefront) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockStorefront) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.LastRequestHeader = nil
	m.requests = nil
}

// SetHandler overrides the handler for a path.
func (m *MockStorefront) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a canned response for a path.
func (m *MockStorefront) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// FailPage makes the next fragment request for page answer with status.
func (m *MockStorefront) FailPage(page, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPages[page] = status
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockStorefront) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockStorefront) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// Requests returns the request URIs received so far.
func (m *MockStorefront) Requests() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.requests...)
}

// InWishlist reports whether the product is on the wishlist.
func (m *MockStorefront) InWishlist(productID int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.wishlist[productID]
}

// CartQuantity returns the cart quantity of a product.
func (m *MockStorefront) CartQuantity(productID int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cart[productID]
}

// ProductItem renders the listing markup of one product.
func ProductItem(id int) string {
	return fmt.Sprintf(`<div class="col product-item" data-product-id="%d"><h5 class="card-title">Product %d</h5>`+
		`<i class="bi wishlist-heart-icon bi-heart" data-product-id="%d"></i></div>`, id, id, id)
}

// Fragment renders the products first..last as a listing fragment.
func Fragment(first, last int) string {
	var b strings.Builder
	for id := first; id <= last; id++ {
		b.WriteString(ProductItem(id))
	}
	return b.String()
}

func (m *MockStorefront) listing(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: CSRFToken, Path: "/"})

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "invalid page", http.StatusNotFound)
			return
		}
		page = n
	}

	first := (page-1)*PageSize + 1
	last := min(page*PageSize, m.products)
	hasMore := m.products > page*PageSize

	if r.Header.Get("X-Requested-With") != "XMLHttpRequest" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<!DOCTYPE html><html><head><title>Products</title></head><body>`+
			`<main><div id="products-container" class="row" data-has-more="%t" data-query="%s">%s</div>`+
			`<div id="loading-spinner" class="text-center d-none"><div class="spinner-border"></div></div></main>`+
			`</body></html>`, hasMore, html.EscapeString(r.URL.RawQuery), Fragment(first, last))
		return
	}

	m.mu.Lock()
	status, fail := m.failPages[page]
	delete(m.failPages, page)
	m.mu.Unlock()
	if fail {
		http.Error(w, http.StatusText(status), status)
		return
	}

	etag := fmt.Sprintf(`"listing-%d"`, page)
	if r.Header.Get("If-None-Match") == etag {
		w.Header().Set("Expires", time.Now().Add(5*time.Minute).Format(http.TimeFormat))
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusOK)
	if first <= last {
		w.Write([]byte(Fragment(first, last)))
	}
}

func (m *MockStorefront) csrfValid(r *http.Request) bool {
	cookie, err := r.Cookie("csrftoken")
	if err != nil {
		return false
	}
	return cookie.Value == CSRFToken && r.Header.Get("X-CSRFToken") == CSRFToken
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (m *MockStorefront) toggleWishlist(w http.ResponseWriter, r *http.Request) {
	if !m.csrfValid(r) {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "CSRF Failed: CSRF token missing or incorrect."})
		return
	}

	var body struct {
		ProductID *int `json:"product_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ProductID == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "product_id is required"})
		return
	}
	id := *body.ProductID
	if id < 1 || id > m.products {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Product not found"})
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	status := "added"
	if m.wishlist[id] {
		delete(m.wishlist, id)
		status = "removed"
	} else {
		m.wishlist[id] = true
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "item": map[string]int{"product": id}})
}

// cartReply writes the cart JSON answer. The caller holds m.mu.
func (m *MockStorefront) cartReply(w http.ResponseWriter, status int, ok bool, message string) {
	total := 0
	for _, q := range m.cart {
		total += q
	}
	writeJSON(w, status, map[string]any{
		"ok":             ok,
		"message":        message,
		"total_quantity": total,
		"subtotal":       fmt.Sprintf("%.2f", float64(total)*UnitPrice),
	})
}

func (m *MockStorefront) cartChange(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.csrfValid(r) {
			writeJSON(w, http.StatusForbidden, map[string]string{"detail": "CSRF Failed: CSRF token missing or incorrect."})
			return
		}
		id, err := strconv.Atoi(r.PathValue("id"))
		if err != nil || id < 1 || id > m.products {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Product not found"})
			return
		}
		quantity := 1
		if raw := r.FormValue("quantity"); raw != "" {
			if quantity, err = strconv.Atoi(raw); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": "Invalid quantity"})
				return
			}
		}

		m.mu.Lock()
		defer m.mu.Unlock()

		switch action {
		case "add":
			if quantity < 1 {
				m.cartReply(w, http.StatusBadRequest, false, "Quantity must be positive")
				return
			}
			if m.cart[id]+quantity > MaxQuantity {
				m.cartReply(w, http.StatusBadRequest, false, fmt.Sprintf("Only %d left", MaxQuantity-m.cart[id]))
				return
			}
			m.cart[id] += quantity
			m.cartReply(w, http.StatusOK, true, fmt.Sprintf("Added %d x Product %d", quantity, id))
		case "remove":
			delete(m.cart, id)
			m.cartReply(w, http.StatusOK, true, fmt.Sprintf("Removed Product %d", id))
		case "set":
			if quantity <= 0 {
				delete(m.cart, id)
			} else {
				m.cart[id] = min(quantity, MaxQuantity)
			}
			m.cartReply(w, http.StatusOK, true, fmt.Sprintf("Updated Product %d", id))
		}
	}
}

func (m *MockStorefront) clearCart(w http.ResponseWriter, r *http.Request) {
	if !m.csrfValid(r) {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "CSRF Failed: CSRF token missing or incorrect."})
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cart = make(map[int]int)
	m.cartReply(w, http.StatusOK, true, "Cart cleared")
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       "Internal server error",
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       "Too many requests",
		Headers:    map[string]string{"Retry-After": "1"},
	}
}

// NewConditionalHandler creates a handler that answers 304 when the
// request carries etag.
func NewConditionalHandler(etag string, data string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == etag {
			w.Header().Set("Expires", time.Now().Add(5*time.Minute).Format(http.TimeFormat))
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Expires", time.Now().Add(5*time.Minute).Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(data))
	}
}
