// Package phone shortens the signup form's phone prefix dropdown to the
// bare country code once a prefix is chosen.
package phone

import (
	"fmt"
	"regexp"

	"github.com/Sternrassler/storefront-client/pkg/dom"
)

// SelectID is the id of the prefix dropdown on the signup form.
const SelectID = "id_phone_0"

// FullTextAttr holds an option's full label.
const FullTextAttr = "data-full-text"

var countryCode = regexp.MustCompile(`\+\d+`)

// CountryCode returns the first "+<digits>" in label.
func CountryCode(label string) (string, bool) {
	code := countryCode.FindString(label)
	return code, code != ""
}

// Option is one dropdown entry.
type Option struct {
	Value string
	// Text is the label currently displayed.
	Text string
	// FullText is the label restored by Expand. Empty means Text.
	FullText string

	el *dom.Element
}

// Select is the prefix dropdown.
type Select struct {
	Options  []Option
	Selected int
}

// FromDocument reads the dropdown with the given id. Changes made through
// Collapse and Expand are written back to the document.
func FromDocument(doc *dom.Document, id string) (*Select, error) {
	el := doc.ByID(id)
	if el == nil {
		return nil, fmt.Errorf("%w: #%s", dom.ErrElementNotFound, id)
	}

	s := &Select{}
	for i, opt := range el.Descendants("option") {
		s.Options = append(s.Options, Option{
			Value:    opt.Attr("value"),
			Text:     opt.Text(),
			FullText: opt.Attr(FullTextAttr),
			el:       opt,
		})
		if opt.HasAttr("selected") {
			s.Selected = i
		}
	}
	return s, nil
}

// Choose selects the option at index i and collapses it.
func (s *Select) Choose(i int) error {
	if i < 0 || i >= len(s.Options) {
		return fmt.Errorf("option %d out of range (%d options)", i, len(s.Options))
	}
	s.Selected = i
	s.Collapse()
	return nil
}

// Collapse shows only the country code on the selected option. Options
// without a code are left alone.
func (s *Select) Collapse() {
	if s.Selected < 0 || s.Selected >= len(s.Options) {
		return
	}
	opt := &s.Options[s.Selected]
	code, ok := CountryCode(opt.Text)
	if !ok {
		return
	}
	if opt.FullText == "" {
		opt.FullText = opt.Text
		if opt.el != nil {
			opt.el.SetAttr(FullTextAttr, opt.FullText)
		}
	}
	opt.setText(code)
}

// Expand restores every option's full label.
func (s *Select) Expand() {
	for i := range s.Options {
		opt := &s.Options[i]
		if opt.FullText != "" {
			opt.setText(opt.FullText)
		}
	}
}

// Label returns the text displayed for the selected option.
func (s *Select) Label() string {
	if s.Selected < 0 || s.Selected >= len(s.Options) {
		return ""
	}
	return s.Options[s.Selected].Text
}

func (o *Option) setText(text string) {
	o.Text = text
	if o.el != nil {
		o.el.SetText(text)
	}
}
