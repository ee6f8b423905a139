package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/Sternrassler/storefront-client/pkg/client"
	"github.com/Sternrassler/storefront-client/pkg/dom"
	"github.com/spf13/cobra"
)

// withSession runs fn with a client holding a CSRF token and the listing
// page that issued it.
func (a *app) withSession(ctx context.Context, fn func(*client.Client, []byte) error) error {
	c, cleanup, err := a.newClient()
	if err != nil {
		return err
	}
	defer cleanup()

	page, err := c.FetchDocument(ctx, a.cfg.ListingPath)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	return fn(c, page)
}

// writeWishlistPage renders page with the product's heart icon updated.
func writeWishlistPage(path string, page []byte, productID int, status client.WishlistStatus) error {
	doc, err := dom.Parse(bytes.NewReader(page))
	if err != nil {
		return fmt.Errorf("parse page: %w", err)
	}
	if err := client.ApplyWishlistStatus(doc, productID, status); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := doc.Render(f); err != nil {
		f.Close()
		return fmt.Errorf("render page: %w", err)
	}
	return f.Close()
}

func parseProductID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid product id %q", arg)
	}
	return id, nil
}

func newWishlistCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wishlist",
		Short: "Manage the wishlist",
	}

	var out string
	toggle := &cobra.Command{
		Use:   "toggle <product-id>",
		Short: "Add a product to the wishlist, or remove it if present",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			return a.withSession(cmd.Context(), func(c *client.Client, page []byte) error {
				status, err := c.ToggleWishlist(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), status)
				if out == "" {
					return nil
				}
				return writeWishlistPage(out, page, id, status)
			})
		},
	}
	toggle.Flags().StringVarP(&out, "out", "o", "", "also write the listing page with the heart icon updated")

	cmd.AddCommand(toggle)
	return cmd
}

func newCartCmd(a *app) *cobra.Command {
	var (
		quantity    int
		maxQuantity int
	)

	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Change the cart",
	}

	printSummary := func(cmd *cobra.Command, s *client.CartSummary) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\ntotal_quantity=%d subtotal=%s\n", s.Message, s.TotalQuantity, s.Subtotal)
	}

	withProduct := func(action func(ctx context.Context, c *client.Client, id int) (*client.CartSummary, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			return a.withSession(cmd.Context(), func(c *client.Client, _ []byte) error {
				summary, err := action(cmd.Context(), c, id)
				if err != nil {
					return err
				}
				printSummary(cmd, summary)
				return nil
			})
		}
	}

	add := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add units of a product",
		Args:  cobra.ExactArgs(1),
		RunE: withProduct(func(ctx context.Context, c *client.Client, id int) (*client.CartSummary, error) {
			return c.AddToCart(ctx, id, quantity)
		}),
	}
	set := &cobra.Command{
		Use:   "set <product-id>",
		Short: "Replace the quantity of a cart line",
		Args:  cobra.ExactArgs(1),
		RunE: withProduct(func(ctx context.Context, c *client.Client, id int) (*client.CartSummary, error) {
			return c.SetCartQuantity(ctx, id, quantity)
		}),
	}
	for _, sub := range []*cobra.Command{add, set} {
		sub.Flags().IntVarP(&quantity, "quantity", "q", 1, "units, clamped to 1..--max")
		sub.Flags().IntVar(&maxQuantity, "max", client.DefaultMaxQuantity, "largest allowed quantity (SHOPFEED_MAX_QUANTITY)")
		sub.PreRunE = func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("max") {
				if maxQuantity < 1 {
					return fmt.Errorf("--max must be at least 1, got %d", maxQuantity)
				}
				a.cfg.MaxQuantity = maxQuantity
			}
			return nil
		}
	}

	remove := &cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a product from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: withProduct(func(ctx context.Context, c *client.Client, id int) (*client.CartSummary, error) {
			return c.RemoveFromCart(ctx, id)
		}),
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), func(c *client.Client, _ []byte) error {
				summary, err := c.ClearCart(cmd.Context())
				if err != nil {
					return err
				}
				printSummary(cmd, summary)
				return nil
			})
		},
	}

	cmd.AddCommand(add, set, remove, clearCmd)
	return cmd
}
