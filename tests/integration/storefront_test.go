//go:build integration

package integration

import (
	"bytes"
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/storefront-client/internal/testutil"
	"github.com/Sternrassler/storefront-client/pkg/client"
	"github.com/Sternrassler/storefront-client/pkg/dom"
	"github.com/Sternrassler/storefront-client/pkg/loader"
	"github.com/Sternrassler/storefront-client/pkg/metrics"
	"github.com/Sternrassler/storefront-client/pkg/theme"
	"github.com/Sternrassler/storefront-client/pkg/viewport"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

type session struct {
	client  *client.Client
	doc     *dom.Document
	listing *dom.Listing
	loader  *loader.Loader
	pageURL string

	exhausted atomic.Int32
}

// openListing fetches the first page of the mock listing and seeds a loader
// with a short real-time throttle.
func openListing(t *testing.T, c *client.Client, mock *testutil.MockStorefront, rawQuery string) *session {
	t.Helper()

	s := &session{client: c, pageURL: mock.ListingURL(rawQuery)}

	body, err := c.FetchDocument(context.Background(), s.pageURL)
	if err != nil {
		t.Fatalf("FetchDocument() error = %v", err)
	}
	s.doc, err = dom.Parse(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	s.listing, err = dom.FindListing(s.doc)
	if err != nil {
		t.Fatalf("FindListing() error = %v", err)
	}

	cfg := loader.DefaultConfig(s.pageURL, loader.ParseHasMore(s.listing.HasMoreAttr()))
	cfg.ThrottleInterval = 20 * time.Millisecond
	cfg.Indicator = s.listing.Spinner
	cfg.OnExhausted = func() { s.exhausted.Add(1) }
	s.loader, err = loader.New(c, s.listing.Container, cfg)
	if err != nil {
		t.Fatalf("loader.New() error = %v", err)
	}
	t.Cleanup(func() { s.loader.Close() })
	return s
}

// scrollToEnd keeps the viewport at the bottom and fires scroll
// notifications until the loader is done.
func (s *session) scrollToEnd(t *testing.T, timeout time.Duration) {
	t.Helper()

	vp := viewport.NewSynthetic(800, func() float64 {
		return float64(s.listing.Items()) * 100
	})
	onScroll := s.loader.Attach(vp)

	deadline := time.After(timeout)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.loader.Done():
			return
		case <-deadline:
			t.Fatalf("listing not exhausted after %v: page %d, %d items", timeout, s.loader.CurrentPage(), s.listing.Items())
		case <-ticker.C:
			vp.ScrollToBottom()
			onScroll()
		}
	}
}

// TestScrollDrivenListing walks a filtered listing from the first page to
// the end through real throttled scroll notifications.
func TestScrollDrivenListing(t *testing.T) {
	mock := testutil.NewMockStorefront(50)
	defer mock.Close()

	c, err := client.New(client.DefaultConfig(mock.URL(), "storefront-integration/1.0"))
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	defer c.Close()

	s := openListing(t, c, mock, "category=lamps&sort=price")
	s.scrollToEnd(t, 10*time.Second)

	if got := s.listing.Items(); got != 50 {
		t.Errorf("items = %d, want 50", got)
	}
	if got := s.loader.CurrentPage(); got != 5 {
		t.Errorf("CurrentPage() = %d, want 5", got)
	}
	if got := s.exhausted.Load(); got != 1 {
		t.Errorf("OnExhausted ran %d times, want 1", got)
	}
	if s.listing.Spinner.Visible() {
		t.Error("Spinner should be hidden after the last page")
	}

	for _, uri := range mock.Requests()[1:] {
		if !strings.Contains(uri, "category=lamps") || !strings.Contains(uri, "sort=price") {
			t.Errorf("page request %q lost the listing filters", uri)
		}
	}
	// Document plus pages 2..5, no duplicates.
	if got := mock.GetRequestCount(); got != 5 {
		t.Errorf("requests = %d, want 5", got)
	}
}

// TestFailedPageIsRetriedOnNextScroll checks that a failed page leaves the
// loader idle and the same page is requested again.
func TestFailedPageIsRetriedOnNextScroll(t *testing.T) {
	mock := testutil.NewMockStorefront(30)
	defer mock.Close()
	mock.FailPage(2, http.StatusInternalServerError)
	mock.FailPage(3, http.StatusBadGateway)

	c, err := client.New(client.DefaultConfig(mock.URL(), "storefront-integration/1.0"))
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	defer c.Close()

	s := openListing(t, c, mock, "")
	s.scrollToEnd(t, 10*time.Second)

	if got := s.listing.Items(); got != 30 {
		t.Errorf("items = %d, want 30", got)
	}

	var pages []string
	for _, uri := range mock.Requests()[1:] {
		pages = append(pages, uri[strings.Index(uri, "page="):])
	}
	want := []string{"page=2", "page=2", "page=3", "page=3"}
	if diff := cmp.Diff(want, pages); diff != "" {
		t.Errorf("page requests mismatch (-want +got):\n%s", diff)
	}
}

// TestCachedScrollAndMetrics crawls twice through a Redis-backed client:
// the second crawl revalidates every fragment with If-None-Match.
func TestCachedScrollAndMetrics(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockStorefront(40)
	defer mock.Close()

	cfg := client.DefaultConfig(mock.URL(), "storefront-integration/1.0")
	cfg.Redis = redisClient
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	defer c.Close()

	first := openListing(t, c, mock, "")
	first.scrollToEnd(t, 10*time.Second)
	if got := mock.GetConditionalCount(); got != 0 {
		t.Errorf("first crawl: conditional requests = %d, want 0", got)
	}

	mock.Reset()
	second := openListing(t, c, mock, "")
	second.scrollToEnd(t, 10*time.Second)

	if got := second.listing.Items(); got != 40 {
		t.Errorf("second crawl: items = %d, want 40", got)
	}
	// Pages 2, 3 and the short page 4.
	if got := mock.GetConditionalCount(); got != 3 {
		t.Errorf("second crawl: conditional requests = %d, want 3", got)
	}

	families, err := metrics.Gatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	seen := make(map[string]bool)
	for _, mf := range families {
		seen[mf.GetName()] = true
	}
	for _, name := range []string{
		"storefront_requests_total",
		"storefront_loader_cycles_total",
		"storefront_cache_not_modified_total",
		"storefront_cache_conditional_requests_total",
	} {
		if !seen[name] {
			t.Errorf("metric %s was not recorded", name)
		}
	}
}

// TestSessionActionsAndTheme runs the page actions against one session and
// renders the crawled listing with the stored theme.
func TestSessionActionsAndTheme(t *testing.T) {
	mock := testutil.NewMockStorefront(12)
	defer mock.Close()

	c, err := client.New(client.DefaultConfig(mock.URL(), "storefront-integration/1.0"))
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	defer c.Close()

	s := openListing(t, c, mock, "")
	if s.loader.HasMore() {
		t.Fatal("A listing with data-has-more=false should start exhausted")
	}
	if c.CSRFToken() != testutil.CSRFToken {
		t.Fatalf("CSRFToken() = %q, want %q", c.CSRFToken(), testutil.CSRFToken)
	}

	ctx := context.Background()
	status, err := c.ToggleWishlist(ctx, 7)
	if err != nil || status != client.WishlistAdded {
		t.Fatalf("ToggleWishlist() = %q, %v", status, err)
	}
	summary, err := c.AddToCart(ctx, 7, 3)
	if err != nil {
		t.Fatalf("AddToCart() error = %v", err)
	}
	if summary.TotalQuantity != 3 || mock.CartQuantity(7) != 3 {
		t.Errorf("TotalQuantity = %d, mock quantity = %d, want 3", summary.TotalQuantity, mock.CartQuantity(7))
	}

	store, err := theme.OpenBoltStore(filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatalf("OpenBoltStore() error = %v", err)
	}
	defer store.Close()

	prefs := theme.NewPreferences(store, false)
	current, err := prefs.Toggle()
	if err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if err := theme.Apply(s.doc, current); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	var out bytes.Buffer
	if err := s.doc.Render(&out); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(out.String(), `data-bs-theme="dark"`) {
		t.Error("Rendered listing should carry the dark theme")
	}
}
