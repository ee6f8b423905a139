// Package client provides the storefront HTTP client with caching, retry,
// CSRF handling and the storefront's AJAX endpoints.
package client

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/storefront-client/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Prometheus metrics for storefront requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_requests_total",
		Help: "Total storefront requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_request_duration_seconds",
		Help:    "Storefront request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_errors_total",
		Help: "Total storefront errors by class",
	}, []string{"class"})
)

var tracer = otel.Tracer("github.com/Sternrassler/storefront-client/pkg/client")

const (
	// RequestedWithHeader marks AJAX requests. The storefront answers
	// listing requests carrying it with a bare fragment.
	RequestedWithHeader = "X-Requested-With"

	// XMLHttpRequest is the RequestedWithHeader value.
	XMLHttpRequest = "XMLHttpRequest"

	// CSRFCookie is the cookie holding the CSRF token.
	CSRFCookie = "csrftoken"

	// CSRFHeader carries the CSRF token on unsafe requests.
	CSRFHeader = "X-CSRFToken"
)

// Client talks to one storefront.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	cache      *cache.Manager
	retry      retryPolicy
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the storefront root, e.g. "https://shop.example.com" (REQUIRED).
	BaseURL string

	// UserAgent header (REQUIRED).
	UserAgent string

	// Redis enables the response cache for listing fragments. Full pages
	// are never cached. Optional.
	Redis *redis.Client

	// Timeout bounds a single HTTP exchange.
	Timeout time.Duration

	// MaxRetries is the number of attempts for idempotent requests.
	// 1 means no retry.
	MaxRetries int

	// InitialBackoff overrides the first backoff of every error class.
	InitialBackoff time.Duration

	// MaxQuantity caps cart quantities (default: DefaultMaxQuantity).
	MaxQuantity int
}

// DefaultConfig returns the default configuration for a storefront.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:    baseURL,
		UserAgent:  userAgent,
		Timeout:     30 * time.Second,
		MaxRetries:  1,
		MaxQuantity: DefaultMaxQuantity,
	}
}

// New creates a new storefront client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.MaxQuantity <= 0 {
		cfg.MaxQuantity = DefaultMaxQuantity
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
		baseURL: base,
		config:  cfg,
		logger:  log.With().Str("component", "storefront-client").Logger(),
		retry: retryPolicy{
			maxAttempts: cfg.MaxRetries,
			configFor:   RetryConfigForErrorClass,
		},
	}

	if cfg.InitialBackoff > 0 {
		initial := cfg.InitialBackoff
		c.retry.configFor = func(class ErrorClass) RetryConfig {
			rc := RetryConfigForErrorClass(class)
			rc.InitialBackoff = initial
			if rc.MaxBackoff < initial {
				rc.MaxBackoff = initial
			}
			return rc
		}
	}

	if cfg.Redis != nil {
		c.cache = cache.NewManager(cfg.Redis)
	}

	return c, nil
}

// Do performs an HTTP request with metrics, tracing, caching and retry.
//
// Only fragment GETs (X-Requested-With: XMLHttpRequest) use the cache. Full
// pages carry the session cookies and per-user markup, so they always go to
// the storefront.
//
// Only idempotent requests are retried. 4xx responses other than 429 are
// returned to the caller; exhausted retries return an error wrapping the
// last *StoreError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	endpoint := endpointLabel(req.URL.Path)

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	ctx, span := tracer.Start(req.Context(), "storefront.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.path", req.URL.Path),
		))
	defer span.End()
	req = req.WithContext(ctx)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	req.Header.Set("User-Agent", c.config.UserAgent)

	cacheable := c.cache != nil && req.Method == http.MethodGet && isFragmentRequest(req)
	var cacheKey cache.Key
	var cachedEntry *cache.Entry

	if cacheable {
		cacheKey = cache.KeyFromURL(req.URL, true)
		entry, err := c.cache.Get(ctx, cacheKey)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}

		switch {
		case entry != nil && cache.ShouldMakeConditionalRequest(entry):
			cache.AddConditionalHeaders(req, entry)
			cache.ConditionalRequestsSent.Inc()
			cachedEntry = entry
			c.logger.Debug().
				Str("endpoint", endpoint).
				Str("etag", entry.ETag).
				Msg("Making conditional request")
		case entry != nil && !entry.IsExpired():
			requestsTotal.WithLabelValues(endpoint, "cached").Inc()
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cache.EntryToResponse(entry), nil
		}
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("Executing storefront request")

	policy := c.retry
	if !isIdempotent(req.Method) {
		policy.maxAttempts = 1
	}

	var resp *http.Response
	retryErr := policy.run(ctx, func() (ErrorClass, error) {
		r, err := c.httpClient.Do(req)
		if err != nil {
			errClass := c.classifyError(nil, err)
			errorsTotal.WithLabelValues(string(errClass)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			c.logger.Debug().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
			return errClass, &StoreError{
				ErrorClass: errClass,
				Message:    "request failed",
				Err:        err,
			}
		}

		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(r.StatusCode)).Inc()

		if r.StatusCode >= 400 {
			errClass := c.classifyError(r, nil)
			errorsTotal.WithLabelValues(string(errClass)).Inc()

			if shouldRetry(errClass) {
				r.Body.Close()
				return errClass, &StoreError{
					StatusCode: r.StatusCode,
					ErrorClass: errClass,
					Message:    r.Status,
				}
			}
		}

		resp = r
		return "", nil
	})

	if retryErr != nil {
		span.RecordError(retryErr)
		span.SetStatus(codes.Error, "request failed")
		return nil, retryErr
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode == http.StatusNotModified && cachedEntry != nil {
		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified - using cache")
		cache.NotModifiedResponses.Inc()

		if expiresStr := resp.Header.Get("Expires"); expiresStr != "" {
			if newExpires, err := http.ParseTime(expiresStr); err == nil {
				if err := c.cache.UpdateTTL(ctx, cacheKey, newExpires); err != nil {
					c.logger.Warn().Err(err).Msg("Failed to update cache TTL")
				}
			}
		}

		resp.Body.Close()
		return cache.EntryToResponse(cachedEntry), nil
	}

	if cacheable && resp.StatusCode == http.StatusOK {
		entry, err := cache.ResponseToEntry(resp)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		} else if entry.TTL() > 0 {
			if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to cache response")
			} else {
				c.logger.Debug().
					Str("endpoint", endpoint).
					Dur("ttl", entry.TTL()).
					Msg("Cached response")
			}
		}
	}

	return resp, nil
}

// classifyError categorizes an error for observability and handling.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		c.logger.Debug().Str("class", string(ErrorClassNetwork)).Msg("Error classified")
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Debug().Str("class", string(ErrorClassRateLimit)).Msg("Error classified")
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		c.logger.Debug().Str("class", string(ErrorClassClient)).Msg("Error classified")
		return ErrorClassClient
	case resp.StatusCode >= 500:
		c.logger.Debug().Str("class", string(ErrorClassServer)).Msg("Error classified")
		return ErrorClassServer
	default:
		return ""
	}
}

// resolve interprets ref relative to the base URL.
func (c *Client) resolve(ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", ref, err)
	}
	return c.baseURL.ResolveReference(u), nil
}

// BaseURL returns the storefront root.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// CSRFToken returns the CSRF token the storefront issued to this client,
// or "" before any page has set it.
func (c *Client) CSRFToken() string {
	if c.httpClient.Jar == nil {
		return ""
	}
	for _, cookie := range c.httpClient.Jar.Cookies(c.baseURL) {
		if cookie.Name == CSRFCookie {
			return cookie.Value
		}
	}
	return ""
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing). A client without a
// cookie jar gets the current one.
func (c *Client) SetHTTPClient(client *http.Client) {
	if client.Jar == nil {
		client.Jar = c.httpClient.Jar
	}
	c.httpClient = client
}

// GetCache returns the cache manager, nil without Redis.
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}

func isIdempotent(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

func isFragmentRequest(req *http.Request) bool {
	return req.Header.Get(RequestedWithHeader) == XMLHttpRequest
}

// endpointLabel replaces numeric path segments with {id} to bound metric
// cardinality.
func endpointLabel(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		if s == "" {
			continue
		}
		if _, err := strconv.Atoi(s); err == nil {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}
