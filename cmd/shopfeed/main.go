// Command shopfeed drives a storefront headlessly: it crawls infinite-scroll
// listings and calls the wishlist, cart and theme features from the shell.
package main

import (
	"context"
	"os"
)

func main() {
	a := newApp()
	if err := a.execute(context.Background(), a.rootCmd()); err != nil {
		os.Exit(1)
	}
}
