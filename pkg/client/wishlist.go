package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Sternrassler/storefront-client/pkg/dom"
)

// WishlistPath is the wishlist toggle endpoint.
const WishlistPath = "/users/api/v1/wishlist/toggle/"

// WishlistStatus is the result of a toggle.
type WishlistStatus string

const (
	WishlistAdded   WishlistStatus = "added"
	WishlistRemoved WishlistStatus = "removed"
)

// Heart icon classes of a product card.
const (
	HeartIconClass = "wishlist-heart-icon"
	HeartClass     = "bi-heart"
	HeartFillClass = "bi-heart-fill"
)

type wishlistRequest struct {
	ProductID int `json:"product_id"`
}

type wishlistResponse struct {
	Status WishlistStatus `json:"status"`
}

// ToggleWishlist adds the product to the wishlist, or removes it when it is
// already there. The client must hold a CSRF token (see FetchDocument).
func (c *Client) ToggleWishlist(ctx context.Context, productID int) (WishlistStatus, error) {
	payload, err := json.Marshal(wishlistRequest{ProductID: productID})
	if err != nil {
		return "", fmt.Errorf("encode wishlist request: %w", err)
	}

	u, err := c.resolve(WishlistPath)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestedWithHeader, XMLHttpRequest)
	req.Header.Set(CSRFHeader, c.CSRFToken())

	var out wishlistResponse
	if err := c.doJSON(req, &out); err != nil {
		return "", err
	}

	switch out.Status {
	case WishlistAdded, WishlistRemoved:
		c.logger.Debug().Int("product_id", productID).Str("status", string(out.Status)).Msg("Wishlist toggled")
		return out.Status, nil
	default:
		return "", fmt.Errorf("unexpected wishlist status %q", out.Status)
	}
}

// ApplyWishlistStatus updates the product's heart icon the way the page does
// after a toggle: filled when added, outlined when removed.
func ApplyWishlistStatus(doc *dom.Document, productID int, status WishlistStatus) error {
	icon := doc.FindByClassAttr(HeartIconClass, "data-product-id", strconv.Itoa(productID))
	if icon == nil {
		return fmt.Errorf("%w: .%s[data-product-id=%d]", dom.ErrElementNotFound, HeartIconClass, productID)
	}
	switch status {
	case WishlistAdded:
		icon.RemoveClass(HeartClass)
		icon.AddClass(HeartFillClass)
	case WishlistRemoved:
		icon.RemoveClass(HeartFillClass)
		icon.AddClass(HeartClass)
	default:
		return fmt.Errorf("unexpected wishlist status %q", status)
	}
	return nil
}

// apiError is the error body of the storefront's JSON endpoints.
type apiError struct {
	Error   string `json:"error"`
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

func (e apiError) text() string {
	switch {
	case e.Error != "":
		return e.Error
	case e.Detail != "":
		return e.Detail
	default:
		return e.Message
	}
}

// doJSON sends req and decodes a 2xx JSON body into out. Other statuses
// become a *StoreError carrying the server's message when it sent one.
func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := resp.Status
		var body apiError
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.text() != "" {
			message = body.text()
		}
		return &StoreError{
			StatusCode: resp.StatusCode,
			ErrorClass: c.classifyError(resp, nil),
			Message:    message,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
