package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sternrassler/storefront-client/internal/testutil"
	"github.com/Sternrassler/storefront-client/pkg/dom"
	"github.com/google/go-cmp/cmp"
)

// run executes shopfeed with args against the mock storefront.
func run(t *testing.T, mock *testutil.MockStorefront, args ...string) (string, error) {
	t.Helper()
	t.Setenv("SHOPFEED_BASE_URL", mock.URL())
	return runApp(t, newApp(), args...)
}

func runApp(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	t.Setenv("SHOPFEED_THROTTLE_INTERVAL", "10ms")
	t.Setenv("SHOPFEED_THEME_DB", filepath.Join(t.TempDir(), "shopfeed.db"))

	var stdout, stderr bytes.Buffer
	cmd := a.rootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := a.execute(context.Background(), cmd)
	t.Logf("stderr: %s", stderr.String())
	return stdout.String(), err
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mock := testutil.NewMockStorefront(14)
	defer mock.Close()

	// A crawl records loader and request metrics.
	if _, err := run(t, mock, "crawl"); err != nil {
		t.Fatalf("crawl error = %v", err)
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	newServeMux().ServeHTTP(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	for _, name := range []string{"storefront_loader_cycles_total", "storefront_requests_total", "storefront_throttle_calls_total"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("Expected metrics output to contain %s", name)
		}
	}
}

func TestCrawl_LoadsEveryPage(t *testing.T) {
	mock := testutil.NewMockStorefront(30)
	defer mock.Close()

	out, err := run(t, mock, "crawl", "--query", "q=lamp&sort=price")
	if err != nil {
		t.Fatalf("crawl error = %v", err)
	}

	doc, err := dom.ParseString(out)
	if err != nil {
		t.Fatalf("output is not HTML: %v", err)
	}
	if n := doc.CountClass(dom.ItemClass); n != 30 {
		t.Errorf("items = %d, want 30", n)
	}
	if spinner := doc.ByID(dom.SpinnerID); spinner == nil || spinner.Visible() {
		t.Error("Spinner should end hidden")
	}

	var fragments []string
	for _, uri := range mock.Requests() {
		if strings.Contains(uri, "page=") {
			fragments = append(fragments, uri)
		}
	}
	want := []string{
		"/products/?page=2&q=lamp&sort=price",
		"/products/?page=3&q=lamp&sort=price",
	}
	if diff := cmp.Diff(want, fragments); diff != "" {
		t.Errorf("page requests mismatch (-want +got):\n%s", diff)
	}
}

func TestCrawl_SinglePage(t *testing.T) {
	mock := testutil.NewMockStorefront(5)
	defer mock.Close()

	out, err := run(t, mock, "crawl", "/products/")
	if err != nil {
		t.Fatalf("crawl error = %v", err)
	}
	if n := strings.Count(out, "product-item"); n != 5 {
		t.Errorf("items = %d, want 5", n)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("requests = %d, want only the document", mock.GetRequestCount())
	}
}

func TestCrawl_MaxPages(t *testing.T) {
	mock := testutil.NewMockStorefront(100)
	defer mock.Close()

	out, err := run(t, mock, "crawl", "--max-pages", "2")
	if err != nil {
		t.Fatalf("crawl error = %v", err)
	}
	// A throttled scroll already armed when page 2 lands may still load page 3.
	if n := strings.Count(out, "product-item"); n != 24 && n != 36 {
		t.Errorf("items = %d, want 24 or 36", n)
	}
}

func TestCrawl_RecoversFromFailedPage(t *testing.T) {
	mock := testutil.NewMockStorefront(20)
	defer mock.Close()
	mock.FailPage(2, http.StatusServiceUnavailable)

	out, err := run(t, mock, "crawl")
	if err != nil {
		t.Fatalf("crawl error = %v", err)
	}
	if n := strings.Count(out, "product-item"); n != 20 {
		t.Errorf("items = %d, want 20", n)
	}
}

func TestCrawl_TimeoutReturnsPartialDocument(t *testing.T) {
	mock := testutil.NewMockStorefront(40)
	defer mock.Close()
	mock.SetHandler(testutil.ListingPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Requested-With") != "" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`<html><body><div id="products-container" data-has-more="true">` +
			testutil.Fragment(1, 12) + `</div><div id="loading-spinner" class="d-none"></div></body></html>`))
	})

	out, err := run(t, mock, "crawl", "--timeout", "200ms")
	if err == nil {
		t.Fatal("Expected the crawl to time out")
	}
	if n := strings.Count(out, "product-item"); n != 12 {
		t.Errorf("items = %d, want 12", n)
	}
}

func TestExecute_ShutsDownTracingAfterFailedCrawl(t *testing.T) {
	mock := testutil.NewMockStorefront(40)
	defer mock.Close()
	t.Setenv("SHOPFEED_BASE_URL", mock.URL())

	var setups, shutdowns int
	a := newApp()
	a.setupTracing = func(ctx context.Context, serviceName, endpoint string) (func(context.Context) error, error) {
		setups++
		return func(context.Context) error {
			shutdowns++
			return nil
		}, nil
	}

	// Every fragment fails, so the crawl hits its deadline.
	mock.SetHandler(testutil.ListingPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Requested-With") != "" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`<html><body><div id="products-container" data-has-more="true">` +
			testutil.Fragment(1, 12) + `</div><div id="loading-spinner" class="d-none"></div></body></html>`))
	})

	if _, err := runApp(t, a, "crawl", "--timeout", "200ms"); err == nil {
		t.Fatal("Expected the crawl to fail")
	}
	if setups != 1 || shutdowns != 1 {
		t.Errorf("setups = %d, shutdowns = %d, want 1 and 1", setups, shutdowns)
	}

	// A second shutdown is a no-op.
	a.shutdown()
	if shutdowns != 1 {
		t.Errorf("shutdowns = %d after repeat, want 1", shutdowns)
	}
}

func TestExecute_ShutsDownTracingAfterFailedCommand(t *testing.T) {
	mock := testutil.NewMockStorefront(1)
	defer mock.Close()
	t.Setenv("SHOPFEED_BASE_URL", mock.URL())

	var shutdowns int
	a := newApp()
	a.setupTracing = func(context.Context, string, string) (func(context.Context) error, error) {
		return func(context.Context) error {
			shutdowns++
			return nil
		}, nil
	}

	if _, err := runApp(t, a, "phone", "code", "---------"); err == nil {
		t.Fatal("Expected an error for a label without a code")
	}
	if shutdowns != 1 {
		t.Errorf("shutdowns = %d, want 1", shutdowns)
	}
}

func TestCrawl_ApplyTheme(t *testing.T) {
	mock := testutil.NewMockStorefront(3)
	defer mock.Close()

	out, err := run(t, mock, "crawl", "--apply-theme", "--prefers-dark")
	if err != nil {
		t.Fatalf("crawl error = %v", err)
	}
	if !strings.Contains(out, `data-bs-theme="dark"`) {
		t.Errorf("Expected dark theme in output")
	}
}

func TestCrawl_OutFile(t *testing.T) {
	mock := testutil.NewMockStorefront(3)
	defer mock.Close()
	path := filepath.Join(t.TempDir(), "listing.html")

	out, err := run(t, mock, "crawl", "--out", path)
	if err != nil {
		t.Fatalf("crawl error = %v", err)
	}
	if out != "" {
		t.Errorf("stdout = %q, want empty", out)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if strings.Count(string(data), "product-item") != 3 {
		t.Errorf("file does not hold the listing: %s", data)
	}
}

func TestWishlistToggle(t *testing.T) {
	mock := testutil.NewMockStorefront(10)
	defer mock.Close()

	out, err := run(t, mock, "wishlist", "toggle", "4")
	if err != nil {
		t.Fatalf("wishlist toggle error = %v", err)
	}
	if strings.TrimSpace(out) != "added" || !mock.InWishlist(4) {
		t.Errorf("out = %q, in wishlist = %v", out, mock.InWishlist(4))
	}

	if _, err := run(t, mock, "wishlist", "toggle", "abc"); err == nil {
		t.Error("Expected an error for a non-numeric id")
	}
}

func TestWishlistToggle_OutUpdatesHeartIcon(t *testing.T) {
	mock := testutil.NewMockStorefront(10)
	defer mock.Close()
	path := filepath.Join(t.TempDir(), "listing.html")

	heart := func() *dom.Element {
		t.Helper()
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		doc, err := dom.ParseString(string(data))
		if err != nil {
			t.Fatalf("ParseString() error = %v", err)
		}
		icon := doc.FindByClassAttr("wishlist-heart-icon", "data-product-id", "4")
		if icon == nil {
			t.Fatal("heart icon of product 4 missing")
		}
		return icon
	}

	if _, err := run(t, mock, "wishlist", "toggle", "4", "--out", path); err != nil {
		t.Fatalf("wishlist toggle error = %v", err)
	}
	if icon := heart(); !icon.HasClass("bi-heart-fill") || icon.HasClass("bi-heart") {
		t.Errorf("after add class = %q, want bi-heart-fill", icon.Attr("class"))
	}

	if _, err := run(t, mock, "wishlist", "toggle", "4", "--out", path); err != nil {
		t.Fatalf("wishlist toggle error = %v", err)
	}
	if icon := heart(); !icon.HasClass("bi-heart") || icon.HasClass("bi-heart-fill") {
		t.Errorf("after remove class = %q, want bi-heart", icon.Attr("class"))
	}

	// Product 20 is not on the first page, so its icon cannot be updated.
	if _, err := run(t, mock, "wishlist", "toggle", "20", "--out", path); err == nil {
		t.Error("Expected an error for a product without a heart icon")
	}
}

func TestCartCommands(t *testing.T) {
	mock := testutil.NewMockStorefront(10)
	defer mock.Close()

	out, err := run(t, mock, "cart", "add", "2", "--quantity", "50")
	if err != nil {
		t.Fatalf("cart add error = %v", err)
	}
	// 50 is clamped to the default maximum of 10.
	if mock.CartQuantity(2) != 10 || !strings.Contains(out, "total_quantity=10") {
		t.Errorf("quantity = %d, out = %q", mock.CartQuantity(2), out)
	}

	if _, err := run(t, mock, "cart", "set", "2", "-q", "3"); err != nil {
		t.Fatalf("cart set error = %v", err)
	}
	if mock.CartQuantity(2) != 3 {
		t.Errorf("quantity = %d, want 3", mock.CartQuantity(2))
	}

	if _, err := run(t, mock, "cart", "set", "2", "-q", "9", "--max", "4"); err != nil {
		t.Fatalf("cart set error = %v", err)
	}
	if mock.CartQuantity(2) != 4 {
		t.Errorf("quantity = %d, want 4", mock.CartQuantity(2))
	}

	t.Setenv("SHOPFEED_MAX_QUANTITY", "2")
	if _, err := run(t, mock, "cart", "set", "2", "-q", "9"); err != nil {
		t.Fatalf("cart set error = %v", err)
	}
	if mock.CartQuantity(2) != 2 {
		t.Errorf("quantity = %d, want 2 from SHOPFEED_MAX_QUANTITY", mock.CartQuantity(2))
	}

	if _, err := run(t, mock, "cart", "add", "2", "--max", "0"); err == nil {
		t.Error("Expected an error for --max 0")
	}

	if _, err := run(t, mock, "cart", "remove", "2"); err != nil {
		t.Fatalf("cart remove error = %v", err)
	}
	if mock.CartQuantity(2) != 0 {
		t.Errorf("quantity = %d, want 0", mock.CartQuantity(2))
	}

	out, err = run(t, mock, "cart", "clear")
	if err != nil {
		t.Fatalf("cart clear error = %v", err)
	}
	if !strings.Contains(out, "Cart cleared") {
		t.Errorf("out = %q", out)
	}
}

func TestThemeCommands(t *testing.T) {
	mock := testutil.NewMockStorefront(1)
	defer mock.Close()

	dbPath := filepath.Join(t.TempDir(), "theme.db")
	exec := func(args ...string) string {
		t.Helper()
		t.Setenv("SHOPFEED_THEME_DB", dbPath)
		var stdout bytes.Buffer
		a := newApp()
		cmd := a.rootCmd()
		cmd.SetArgs(args)
		cmd.SetOut(&stdout)
		cmd.SetErr(io.Discard)
		if err := a.execute(context.Background(), cmd); err != nil {
			t.Fatalf("%v error = %v", args, err)
		}
		return strings.TrimSpace(stdout.String())
	}

	if got := exec("theme", "show", "--prefers-dark"); got != "dark-theme data-bs-theme=dark icon=bi-moon" {
		t.Errorf("show = %q", got)
	}
	if got := exec("theme", "toggle"); got != "dark-theme data-bs-theme=dark icon=bi-moon" {
		t.Errorf("toggle = %q", got)
	}
	// The stored choice now wins over the preference.
	if got := exec("theme", "show"); !strings.HasPrefix(got, "dark-theme") {
		t.Errorf("show after toggle = %q", got)
	}
}

func TestPhoneCode(t *testing.T) {
	mock := testutil.NewMockStorefront(1)
	defer mock.Close()

	out, err := run(t, mock, "phone", "code", "Germany", "(+49)")
	if err != nil {
		t.Fatalf("phone code error = %v", err)
	}
	if strings.TrimSpace(out) != "+49" {
		t.Errorf("out = %q, want +49", out)
	}

	if _, err := run(t, mock, "phone", "code", "---------"); err == nil {
		t.Error("Expected an error for a label without a code")
	}
}

func TestInvalidConfig(t *testing.T) {
	mock := testutil.NewMockStorefront(1)
	defer mock.Close()
	t.Setenv("SHOPFEED_PAGE_SIZE", "0")

	if _, err := run(t, mock, "phone", "code", "+1"); err == nil {
		t.Error("Expected a configuration error")
	}
}

func TestFlagsOverrideInvalidEnv(t *testing.T) {
	mock := testutil.NewMockStorefront(1)
	defer mock.Close()
	t.Setenv("SHOPFEED_BASE_URL", "not a url")

	if _, err := runApp(t, newApp(), "phone", "code", "+49"); err == nil {
		t.Fatal("Expected the invalid base URL to be rejected")
	}

	out, err := runApp(t, newApp(), "--base-url", mock.URL(), "phone", "code", "+49")
	if err != nil {
		t.Fatalf("--base-url should replace the invalid env value: %v", err)
	}
	if strings.TrimSpace(out) != "+49" {
		t.Errorf("out = %q, want +49", out)
	}
}

func TestCrawl_RefreshWithoutCache(t *testing.T) {
	mock := testutil.NewMockStorefront(3)
	defer mock.Close()

	out, err := run(t, mock, "crawl", "--refresh")
	if err != nil {
		t.Fatalf("crawl error = %v", err)
	}
	if strings.Count(out, "product-item") != 3 {
		t.Errorf("items missing from output")
	}
}

func TestListingURL(t *testing.T) {
	base, _ := url.Parse("https://shop.example.com")

	tests := []struct {
		path, query string
		want        string
	}{
		{"/products/", "", "https://shop.example.com/products/"},
		{"/products/?sort=price", "q=lamp", "https://shop.example.com/products/?q=lamp&sort=price"},
		{"/products/?sort=price", "sort=name", "https://shop.example.com/products/?sort=name"},
	}

	for _, tt := range tests {
		got, err := listingURL(base, tt.path, tt.query)
		if err != nil {
			t.Fatalf("listingURL(%q, %q) error = %v", tt.path, tt.query, err)
		}
		if got != tt.want {
			t.Errorf("listingURL(%q, %q) = %q, want %q", tt.path, tt.query, got, tt.want)
		}
	}

	if _, err := listingURL(base, "/products/", "%zz"); err == nil {
		t.Error("Expected an error for a malformed query")
	}
}
