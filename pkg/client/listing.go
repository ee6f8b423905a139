package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// FetchPage GETs a listing page as an HTML fragment. pageURL may be
// absolute or relative to the base URL. A non-2xx status is a *StoreError.
func (c *Client) FetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	return c.get(ctx, pageURL, true)
}

// FetchDocument GETs a full HTML page. It also primes the cookie jar with
// the CSRF token.
func (c *Client) FetchDocument(ctx context.Context, pageURL string) ([]byte, error) {
	return c.get(ctx, pageURL, false)
}

func (c *Client) get(ctx context.Context, ref string, fragment bool) ([]byte, error) {
	u, err := c.resolve(ref)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/html")
	if fragment {
		req.Header.Set(RequestedWithHeader, XMLHttpRequest)
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &StoreError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read body",
			Err:        err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StoreError{
			StatusCode: resp.StatusCode,
			ErrorClass: c.classifyError(resp, nil),
			Message:    resp.Status,
		}
	}

	return body, nil
}
