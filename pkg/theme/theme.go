// Package theme resolves, toggles and applies the storefront's light/dark
// color theme, and persists the visitor's choice.
package theme

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/storefront-client/pkg/dom"
)

// Theme is a root class naming the color theme.
type Theme string

const (
	Light Theme = "light-theme"
	Dark  Theme = "dark-theme"
)

// StorageKey is the key the choice is stored under.
const StorageKey = "theme"

// Element ids of the theme switcher.
const (
	IconID   = "themeIcon"
	ToggleID = "themeToggle"
)

// Icon classes shown by the switcher.
const (
	IconDark  = "bi-moon"
	IconLight = "bi-brightness-high"
)

// ErrInvalidTheme is returned when persisting a value that is not a Theme.
var ErrInvalidTheme = errors.New("invalid theme")

// Valid reports whether t is Light or Dark.
func (t Theme) Valid() bool {
	return t == Light || t == Dark
}

// Toggle returns the other theme. Anything that is not Dark toggles to Dark.
func (t Theme) Toggle() Theme {
	if t == Dark {
		return Light
	}
	return Dark
}

// BootstrapTheme returns the data-bs-theme value.
func (t Theme) BootstrapTheme() string {
	if t == Dark {
		return "dark"
	}
	return "light"
}

// Icon returns the switcher icon class.
func (t Theme) Icon() string {
	if t == Dark {
		return IconDark
	}
	return IconLight
}

// Resolve picks the stored theme when it is valid, otherwise the one matching
// the color scheme preference.
func Resolve(stored string, prefersDark bool) Theme {
	if t := Theme(stored); t.Valid() {
		return t
	}
	if prefersDark {
		return Dark
	}
	return Light
}

// FromDocument returns the theme named by the root element's classes.
func FromDocument(doc *dom.Document) (Theme, bool) {
	root := doc.Root()
	if root == nil {
		return "", false
	}
	switch {
	case root.HasClass(string(Dark)):
		return Dark, true
	case root.HasClass(string(Light)):
		return Light, true
	default:
		return "", false
	}
}

// Apply sets the root classes, data-bs-theme and the switcher icon.
func Apply(doc *dom.Document, t Theme) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTheme, t)
	}
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("%w: html", dom.ErrElementNotFound)
	}

	isDark := t == Dark
	root.ToggleClass(string(Dark), isDark)
	root.ToggleClass(string(Light), !isDark)
	root.SetAttr("data-bs-theme", t.BootstrapTheme())

	if icon := doc.ByID(IconID); icon != nil {
		icon.ToggleClass(IconDark, isDark)
		icon.ToggleClass(IconLight, !isDark)
	}
	return nil
}
