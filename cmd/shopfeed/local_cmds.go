package main

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/storefront-client/pkg/phone"
	"github.com/Sternrassler/storefront-client/pkg/theme"
	"github.com/spf13/cobra"
)

func newThemeCmd(a *app) *cobra.Command {
	var prefersDark bool

	cmd := &cobra.Command{
		Use:   "theme",
		Short: "Show or switch the stored color theme (SHOPFEED_THEME_DB)",
	}
	cmd.PersistentFlags().BoolVar(&prefersDark, "prefers-dark", false, "color scheme preference used when no theme is stored")

	run := func(toggle bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			store, err := theme.OpenBoltStore(a.cfg.ThemeDB)
			if err != nil {
				return err
			}
			defer store.Close()

			prefs := theme.NewPreferences(store, prefersDark)
			var t theme.Theme
			if toggle {
				t, err = prefs.Toggle()
			} else {
				t, err = prefs.Current()
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s data-bs-theme=%s icon=%s\n", t, t.BootstrapTheme(), t.Icon())
			return nil
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the theme the storefront would use",
			Args:  cobra.NoArgs,
			RunE:  run(false),
		},
		&cobra.Command{
			Use:   "toggle",
			Short: "Switch to the other theme and store it",
			Args:  cobra.NoArgs,
			RunE:  run(true),
		},
	)
	return cmd
}

func newPhoneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "phone",
		Short: "Phone prefix helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "code <label>",
		Short: "Print the country code in a prefix label, e.g. 'Germany (+49)'",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			label := strings.Join(args, " ")
			code, ok := phone.CountryCode(label)
			if !ok {
				return fmt.Errorf("no country code in %q", label)
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
			return nil
		},
	})
	return cmd
}
