package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/storefront-client/pkg/dom"
	"github.com/Sternrassler/storefront-client/pkg/throttle"
	"github.com/Sternrassler/storefront-client/pkg/viewport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultPageSize is the number of items in a full listing page. The server
// does not announce its page size, so this must match it.
const DefaultPageSize = 12

// PageParam is the query parameter carrying the page number.
const PageParam = "page"

// ErrClosed is returned by Load after Close.
var ErrClosed = errors.New("loader closed")

// Prometheus metrics for the fetch cycle.
var (
	loaderCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_loader_cycles_total",
		Help: "Listing fetch cycles by outcome",
	}, []string{"outcome"})

	loaderItemsAppendedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_loader_items_appended_total",
		Help: "Listing items appended to the container",
	})

	loaderCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_loader_cycle_duration_seconds",
		Help:    "Duration of listing fetch cycles that issued a request",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})
)

var tracer = otel.Tracer("github.com/Sternrassler/storefront-client/pkg/loader")

// PageFetcher retrieves the HTML fragment for a listing page URL.
// A nil error means a successful (2xx) response.
type PageFetcher interface {
	FetchPage(ctx context.Context, pageURL string) ([]byte, error)
}

// Container receives appended page fragments.
type Container interface {
	AppendHTML(fragment []byte) error
}

// Indicator is shown while a request is outstanding.
type Indicator interface {
	Show()
	Hide()
}

// Config holds loader configuration.
type Config struct {
	// PageURL is the URL of the listing as currently displayed, including
	// filters, sort order and search terms.
	PageURL string

	// HasMore seeds the loader. False starts it exhausted.
	HasMore bool

	// PageSize is the item count of a full page (default: 12).
	PageSize int

	// ItemClass marks one listing item in a fragment (default: product-item).
	ItemClass string

	// Threshold is the near-bottom distance in pixels (default: 500).
	Threshold float64

	// ThrottleInterval bounds how often scroll notifications are evaluated (default: 200ms).
	ThrottleInterval time.Duration

	// Indicator is optional.
	Indicator Indicator

	// OnExhausted runs once when the listing ends.
	OnExhausted func()

	// Scheduler overrides the throttle timer (tests).
	Scheduler throttle.Scheduler
}

// DefaultConfig returns the listing defaults for a page URL.
func DefaultConfig(pageURL string, hasMore bool) Config {
	return Config{
		PageURL:          pageURL,
		HasMore:          hasMore,
		PageSize:         DefaultPageSize,
		ItemClass:        dom.ItemClass,
		Threshold:        viewport.DefaultThreshold,
		ThrottleInterval: throttle.DefaultInterval,
	}
}

// ParseHasMore interprets the data-has-more attribute. Only "true" is true.
func ParseHasMore(attr string) bool {
	return attr == "true"
}

// Loader drives incremental loading of one listing.
type Loader struct {
	mu          sync.Mutex
	state       State
	currentPage int
	closed      bool

	base      *url.URL
	fetcher   PageFetcher
	container Container
	config    Config
	logger    zerolog.Logger

	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	detachOnce sync.Once
}

// New creates a loader on page 1.
func New(fetcher PageFetcher, container Container, cfg Config) (*Loader, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("page fetcher is required")
	}
	if container == nil {
		return nil, fmt.Errorf("container is required")
	}
	base, err := url.Parse(cfg.PageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.ItemClass == "" {
		cfg.ItemClass = dom.ItemClass
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = viewport.DefaultThreshold
	}
	if cfg.ThrottleInterval <= 0 {
		cfg.ThrottleInterval = throttle.DefaultInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Loader{
		state:       StateIdle,
		currentPage: 1,
		base:        base,
		fetcher:     fetcher,
		container:   container,
		config:      cfg,
		logger:      log.With().Str("component", "loader").Logger(),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	if !cfg.HasMore {
		l.state = StateExhausted
		l.logger.Debug().Str("url", cfg.PageURL).Msg("Listing has a single page")
		l.exhausted()
	}

	return l, nil
}

// State returns the current state.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// CurrentPage returns the last page appended (1 before any load).
func (l *Loader) CurrentPage() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentPage
}

// HasMore reports whether further pages may exist.
func (l *Loader) HasMore() bool {
	return l.State() != StateExhausted
}

// IsLoading reports whether a request is outstanding.
func (l *Loader) IsLoading() bool {
	return l.State() == StateLoading
}

// Done is closed once the loader stops listening for scroll notifications,
// either because the listing is exhausted or because of Close.
func (l *Loader) Done() <-chan struct{} {
	return l.done
}

// NextPageURL returns the URL the next Load would request.
func (l *Loader) NextPageURL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pageURL(l.currentPage + 1)
}

// pageURL copies the base URL and overrides the page parameter, keeping
// every other query parameter.
func (l *Loader) pageURL(page int) string {
	u := *l.base
	q := u.Query()
	q.Set(PageParam, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// Check runs Load when sig is within the configured threshold of the bottom.
func (l *Loader) Check(ctx context.Context, sig viewport.ScrollSignal) (Outcome, error) {
	if !viewport.NearBottom(sig, l.config.Threshold) {
		return OutcomeSkipped, nil
	}
	return l.Load(ctx)
}

// Load requests the page after the current one and appends it. It returns
// OutcomeSkipped without a request unless the loader is idle.
func (l *Loader) Load(ctx context.Context) (Outcome, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return OutcomeSkipped, ErrClosed
	}
	if l.state != StateIdle {
		state := l.state
		l.mu.Unlock()
		l.logger.Debug().Str("state", state.String()).Msg("Load skipped")
		loaderCyclesTotal.WithLabelValues(string(OutcomeSkipped)).Inc()
		return OutcomeSkipped, nil
	}
	l.state = transition(l.state, eventStart)
	target := l.currentPage + 1
	pageURL := l.pageURL(target)
	l.mu.Unlock()

	ctx, span := tracer.Start(ctx, "loader.Load")
	span.SetAttributes(attribute.Int("listing.page", target), attribute.String("listing.url", pageURL))
	defer span.End()

	start := time.Now()
	ev := eventFailed
	items := 0
	defer func() {
		l.finish(target, ev, items)
		loaderCycleDuration.Observe(time.Since(start).Seconds())
	}()

	if l.config.Indicator != nil {
		l.config.Indicator.Show()
	}

	l.logger.Debug().Int("page", target).Str("url", pageURL).Msg("Fetching listing page")

	body, err := l.fetcher.FetchPage(ctx, pageURL)
	if err != nil {
		l.logger.Warn().Err(err).Int("page", target).Str("url", pageURL).Msg("Listing page fetch failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return OutcomeFailed, fmt.Errorf("fetch page %d: %w", target, err)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		ev = eventEmptyPage
		l.logger.Info().Int("page", target).Msg("Listing returned no more items")
		return OutcomeExhausted, nil
	}

	count, err := dom.CountClass(body, l.config.ItemClass)
	if err != nil {
		l.logger.Warn().Err(err).Int("page", target).Msg("Listing fragment unreadable")
		return OutcomeFailed, fmt.Errorf("count items on page %d: %w", target, err)
	}

	if err := l.container.AppendHTML(body); err != nil {
		l.logger.Warn().Err(err).Int("page", target).Msg("Appending listing fragment failed")
		return OutcomeFailed, fmt.Errorf("append page %d: %w", target, err)
	}
	items = count
	span.SetAttributes(attribute.Int("listing.items", count))

	if count < l.config.PageSize {
		ev = eventShortPage
		l.logger.Info().
			Int("page", target).
			Int("items", count).
			Int("page_size", l.config.PageSize).
			Msg("Short listing page, no more items")
		return OutcomeExhausted, nil
	}

	ev = eventFullPage
	l.logger.Debug().Int("page", target).Int("items", count).Msg("Listing page appended")
	return OutcomeAppended, nil
}

// finish leaves the loading state. It runs exactly once per started cycle.
func (l *Loader) finish(page int, ev event, items int) {
	l.mu.Lock()
	if ev.advances() {
		l.currentPage = page
	}
	l.state = transition(l.state, ev)
	exhausted := l.state == StateExhausted
	l.mu.Unlock()

	if l.config.Indicator != nil {
		l.config.Indicator.Hide()
	}

	loaderItemsAppendedTotal.Add(float64(items))
	switch {
	case ev == eventFailed:
		loaderCyclesTotal.WithLabelValues(string(OutcomeFailed)).Inc()
	case exhausted:
		loaderCyclesTotal.WithLabelValues(string(OutcomeExhausted)).Inc()
	default:
		loaderCyclesTotal.WithLabelValues(string(OutcomeAppended)).Inc()
	}

	if exhausted {
		l.exhausted()
	}
}

// Attach returns the scroll notification handler. Each call is throttled;
// when the throttle fires, src is sampled and Check runs. After the loader
// is exhausted or closed the handler does nothing.
func (l *Loader) Attach(src viewport.Source) func() {
	var opts []throttle.Option
	if l.config.Scheduler != nil {
		opts = append(opts, throttle.WithScheduler(l.config.Scheduler))
	}
	t := throttle.New(l.config.ThrottleInterval, func() {
		if l.detached() {
			return
		}
		// Errors are already logged by Load.
		_, _ = l.Check(l.ctx, src.Sample())
	}, opts...)

	return func() {
		if l.detached() {
			return
		}
		t.Call()
	}
}

// Close cancels requests started by the attached handler and detaches it.
func (l *Loader) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.cancel()
	l.detach()
	return nil
}

func (l *Loader) exhausted() {
	l.detachOnce.Do(func() {
		close(l.done)
		if l.config.OnExhausted != nil {
			l.config.OnExhausted()
		}
	})
}

func (l *Loader) detach() {
	l.detachOnce.Do(func() {
		close(l.done)
	})
}

func (l *Loader) detached() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}
