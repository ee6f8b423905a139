package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/Sternrassler/storefront-client/pkg/client"
	"github.com/Sternrassler/storefront-client/pkg/dom"
	"github.com/Sternrassler/storefront-client/pkg/loader"
	"github.com/Sternrassler/storefront-client/pkg/theme"
	"github.com/Sternrassler/storefront-client/pkg/viewport"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type crawlOptions struct {
	query          string
	out            string
	maxPages       int
	timeout        time.Duration
	metricsAddr    string
	viewportHeight float64
	itemHeight     float64
	scrollStep     float64
	applyTheme     bool
	prefersDark    bool
	refresh        bool
}

// crawlResult summarizes a finished crawl.
type crawlResult struct {
	Pages     int
	Items     int
	Exhausted bool
}

func newCrawlCmd(a *app) *cobra.Command {
	opts := crawlOptions{}

	cmd := &cobra.Command{
		Use:   "crawl [path]",
		Short: "Load every page of a listing by scrolling it",
		Long: `Fetch a listing page, then scroll a simulated viewport until the
listing reports no more items. The final document, with every loaded
page appended, is written to --out.

The path defaults to SHOPFEED_LISTING_PATH. Filters and search terms go
in --query and are kept on every page request.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.ListingPath
			if len(args) == 1 {
				path = args[0]
			}
			if opts.metricsAddr == "" {
				opts.metricsAddr = a.cfg.MetricsAddr
			}

			ctx := cmd.Context()
			if opts.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.timeout)
				defer cancel()
			}

			var out io.Writer = cmd.OutOrStdout()
			if opts.out != "" && opts.out != "-" {
				f, err := os.Create(opts.out)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				out = f
			}

			if opts.metricsAddr == "" {
				_, err := a.crawl(ctx, path, opts, out)
				return err
			}

			srv := &http.Server{Addr: opts.metricsAddr, Handler: newServeMux()}
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.logger.Info().Str("addr", opts.metricsAddr).Msg("Serving /health and /metrics")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("metrics server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				_, err := a.crawl(gctx, path, opts, out)
				return err
			})
			return g.Wait()
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.query, "query", "", "listing query string, e.g. 'q=lamp&sort=price'")
	f.StringVarP(&opts.out, "out", "o", "-", "output file for the final document ('-' for stdout)")
	f.IntVar(&opts.maxPages, "max-pages", 0, "stop scrolling once this many pages are loaded (0 for no limit)")
	f.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "give up after this long")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /health and /metrics while crawling (SHOPFEED_METRICS_ADDR)")
	f.Float64Var(&opts.viewportHeight, "viewport-height", 900, "simulated viewport height in pixels")
	f.Float64Var(&opts.itemHeight, "item-height", 120, "simulated height of one listing item in pixels")
	f.Float64Var(&opts.scrollStep, "scroll-step", 400, "pixels scrolled per scroll event")
	f.BoolVar(&opts.applyTheme, "apply-theme", false, "apply the stored theme to the output document")
	f.BoolVar(&opts.prefersDark, "prefers-dark", false, "color scheme preference used when no theme is stored")
	f.BoolVar(&opts.refresh, "refresh", false, "drop cached pages of this listing before crawling")
	return cmd
}

// crawl seeds a loader from the listing's first page and scrolls until the
// listing is exhausted, maxPages is reached or ctx ends.
func (a *app) crawl(ctx context.Context, path string, opts crawlOptions, out io.Writer) (crawlResult, error) {
	c, cleanup, err := a.newClient()
	if err != nil {
		return crawlResult{}, err
	}
	defer cleanup()

	pageURL, err := listingURL(c.BaseURL(), path, opts.query)
	if err != nil {
		return crawlResult{}, err
	}

	if opts.refresh {
		if err := purgeListing(ctx, c, pageURL); err != nil {
			return crawlResult{}, err
		}
	}

	body, err := c.FetchDocument(ctx, pageURL)
	if err != nil {
		return crawlResult{}, fmt.Errorf("fetch listing: %w", err)
	}
	doc, err := dom.Parse(bytes.NewReader(body))
	if err != nil {
		return crawlResult{}, err
	}
	listing, err := dom.FindListing(doc)
	if err != nil {
		return crawlResult{}, err
	}

	cfg := a.cfg.Loader(pageURL, loader.ParseHasMore(listing.HasMoreAttr()))
	cfg.Indicator = listing.Spinner
	cfg.OnExhausted = func() {
		a.logger.Info().Int("items", listing.Items()).Msg("Listing exhausted")
	}
	l, err := loader.New(c, listing.Container, cfg)
	if err != nil {
		return crawlResult{}, err
	}

	vp := viewport.NewSynthetic(opts.viewportHeight, func() float64 {
		return float64(listing.Items()) * opts.itemHeight
	})
	onScroll := l.Attach(vp)

	a.logger.Info().
		Str("url", pageURL).
		Int("items", listing.Items()).
		Bool("has_more", l.HasMore()).
		Msg("Crawl started")

	tick := cfg.ThrottleInterval / 4
	if tick <= 0 {
		tick = time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	var stopErr error
scroll:
	for {
		select {
		case <-l.Done():
			break scroll
		case <-ctx.Done():
			stopErr = ctx.Err()
			break scroll
		case <-ticker.C:
			if opts.maxPages > 0 && l.CurrentPage() >= opts.maxPages {
				break scroll
			}
			vp.ScrollBy(opts.scrollStep)
			onScroll()
		}
	}

	l.Close()
	for l.IsLoading() {
		time.Sleep(tick)
	}

	result := crawlResult{
		Pages:     l.CurrentPage(),
		Items:     listing.Items(),
		Exhausted: !l.HasMore(),
	}

	if opts.applyTheme {
		if err := a.applyTheme(doc, opts.prefersDark); err != nil {
			return result, err
		}
	}

	if err := doc.Render(out); err != nil {
		return result, fmt.Errorf("write document: %w", err)
	}

	event := a.logger.Info()
	if stopErr != nil {
		event = a.logger.Warn().Err(stopErr)
	}
	event.
		Int("pages", result.Pages).
		Int("items", result.Items).
		Bool("exhausted", result.Exhausted).
		Msg("Crawl finished")

	if stopErr != nil {
		return result, fmt.Errorf("crawl stopped after %d pages: %w", result.Pages, stopErr)
	}
	return result, nil
}

// purgeListing drops every cached variant of the listing. Without a cache
// there is nothing to do.
func purgeListing(ctx context.Context, c *client.Client, pageURL string) error {
	manager := c.GetCache()
	if manager == nil {
		return nil
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return fmt.Errorf("parse listing url: %w", err)
	}
	if _, err := manager.Purge(ctx, u.Path); err != nil {
		return fmt.Errorf("purge cache: %w", err)
	}
	return nil
}

func (a *app) applyTheme(doc *dom.Document, prefersDark bool) error {
	store, err := theme.OpenBoltStore(a.cfg.ThemeDB)
	if err != nil {
		return err
	}
	defer store.Close()

	current, err := theme.NewPreferences(store, prefersDark).Current()
	if err != nil {
		return err
	}
	return theme.Apply(doc, current)
}

// listingURL resolves path against base and merges rawQuery into it.
func listingURL(base *url.URL, path, rawQuery string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse listing path: %w", err)
	}
	u := base.ResolveReference(ref)
	if rawQuery != "" {
		extra, err := url.ParseQuery(rawQuery)
		if err != nil {
			return "", fmt.Errorf("parse query: %w", err)
		}
		q := u.Query()
		for k, vs := range extra {
			q[k] = vs
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Compile-time check that the client feeds the loader.
var _ loader.PageFetcher = (*client.Client)(nil)
