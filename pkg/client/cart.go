package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DefaultMaxQuantity caps a cart line when the page gives no limit.
const DefaultMaxQuantity = 10

// CartSummary is the storefront's answer to a cart change.
type CartSummary struct {
	OK            bool   `json:"ok"`
	Message       string `json:"message"`
	TotalQuantity int    `json:"total_quantity"`
	Subtotal      string `json:"subtotal"`
}

// ClampQuantity limits v to 1..max. A max of 0 or less means DefaultMaxQuantity.
func ClampQuantity(v, max int) int {
	if max <= 0 {
		max = DefaultMaxQuantity
	}
	if v < 1 {
		return 1
	}
	if v > max {
		return max
	}
	return v
}

// AddToCart adds quantity units of a product. quantity is clamped to
// 1..Config.MaxQuantity.
func (c *Client) AddToCart(ctx context.Context, productID, quantity int) (*CartSummary, error) {
	return c.cartAction(ctx, fmt.Sprintf("/cart/add/%d/", productID), c.quantityForm(quantity))
}

// RemoveFromCart drops a product from the cart.
func (c *Client) RemoveFromCart(ctx context.Context, productID int) (*CartSummary, error) {
	return c.cartAction(ctx, fmt.Sprintf("/cart/remove/%d/", productID), nil)
}

// SetCartQuantity replaces the quantity of a cart line, clamped like
// AddToCart. Use RemoveFromCart to drop the line.
func (c *Client) SetCartQuantity(ctx context.Context, productID, quantity int) (*CartSummary, error) {
	return c.cartAction(ctx, fmt.Sprintf("/cart/set/%d/", productID), c.quantityForm(quantity))
}

func (c *Client) quantityForm(quantity int) url.Values {
	clamped := ClampQuantity(quantity, c.config.MaxQuantity)
	if clamped != quantity {
		c.logger.Debug().Int("requested", quantity).Int("quantity", clamped).Msg("Quantity clamped")
	}
	return url.Values{"quantity": {strconv.Itoa(clamped)}}
}

// ClearCart empties the cart.
func (c *Client) ClearCart(ctx context.Context) (*CartSummary, error) {
	return c.cartAction(ctx, "/cart/clear/", nil)
}

func (c *Client) cartAction(ctx context.Context, path string, form url.Values) (*CartSummary, error) {
	u, err := c.resolve(path)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestedWithHeader, XMLHttpRequest)
	req.Header.Set(CSRFHeader, c.CSRFToken())

	var summary CartSummary
	if err := c.doJSON(req, &summary); err != nil {
		return nil, err
	}
	if !summary.OK {
		return &summary, &StoreError{
			StatusCode: http.StatusOK,
			ErrorClass: ErrorClassClient,
			Message:    summary.Message,
		}
	}

	c.logger.Debug().
		Str("path", path).
		Int("total_quantity", summary.TotalQuantity).
		Msg("Cart updated")
	return &summary, nil
}
