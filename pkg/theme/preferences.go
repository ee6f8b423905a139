package theme

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Preferences combines the stored choice with the color scheme preference.
type Preferences struct {
	store       Store
	prefersDark bool
	logger      zerolog.Logger
}

// NewPreferences reads and writes the choice through store.
func NewPreferences(store Store, prefersDark bool) *Preferences {
	return &Preferences{
		store:       store,
		prefersDark: prefersDark,
		logger:      log.With().Str("component", "theme").Logger(),
	}
}

// Current resolves the theme without persisting anything.
func (p *Preferences) Current() (Theme, error) {
	stored, err := p.store.Load()
	if err != nil {
		return "", err
	}
	t := Resolve(stored, p.prefersDark)
	if stored != "" && Theme(stored) != t {
		p.logger.Debug().Str("stored", stored).Str("theme", string(t)).Msg("Ignoring invalid stored theme")
	}
	return t, nil
}

// Toggle switches to the other theme and persists it.
func (p *Preferences) Toggle() (Theme, error) {
	current, err := p.Current()
	if err != nil {
		return "", err
	}
	next := current.Toggle()
	if err := p.Set(next); err != nil {
		return "", err
	}
	return next, nil
}

// Set persists t.
func (p *Preferences) Set(t Theme) error {
	if err := p.store.Save(t); err != nil {
		return fmt.Errorf("save theme: %w", err)
	}
	p.logger.Info().Str("theme", string(t)).Msg("Theme changed")
	return nil
}
