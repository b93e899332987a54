// Package browser defines the automation capability the session core drives
// and a go-rod implementation of it.
//
// The core only sees Driver and Element. Any binding that can navigate,
// locate elements by an ordered list of candidate locators, read text, click,
// type and report its current URL can back a session.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when none of the candidate locators matched.
var ErrNotFound = errors.New("browser: element not found")

// Strategy selects how a Locator is interpreted.
type Strategy string

const (
	// ByCSS matches Selector as a CSS selector.
	ByCSS Strategy = "css"
	// ByXPath matches Selector as an XPath expression.
	ByXPath Strategy = "xpath"
	// ByText matches elements selected by the CSS Selector whose visible
	// text contains Text.
	ByText Strategy = "text"
)

// Locator is one way of identifying an element.
type Locator struct {
	By       Strategy
	Selector string
	Text     string
}

// CSS builds a CSS locator.
func CSS(selector string) Locator { return Locator{By: ByCSS, Selector: selector} }

// XPath builds an XPath locator.
func XPath(expr string) Locator { return Locator{By: ByXPath, Selector: expr} }

// Text builds a locator for elements matching selector that contain text.
func Text(selector, text string) Locator {
	return Locator{By: ByText, Selector: selector, Text: text}
}

func (l Locator) String() string {
	if l.By == ByText {
		return fmt.Sprintf("%s:%s[%q]", l.By, l.Selector, l.Text)
	}
	return fmt.Sprintf("%s:%s", l.By, l.Selector)
}

// Locators is an ordered candidate list; the first match wins.
type Locators []Locator

func (ls Locators) String() string {
	parts := make([]string, len(ls))
	for i, l := range ls {
		parts[i] = l.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Finder locates elements without waiting.
type Finder interface {
	// FindFirst returns the first element matched by the candidates, in
	// order. It returns ErrNotFound when nothing matches and any other error
	// when the underlying context is unusable.
	FindFirst(ctx context.Context, locators Locators) (Element, error)
}

// Driver is one live browser context positioned on a single page.
// Implementations need not be safe for concurrent use.
type Driver interface {
	Finder

	// Navigate loads url and waits for the page load event.
	Navigate(ctx context.Context, url string) error

	// Reload reloads the current page and waits for the load event.
	Reload(ctx context.Context) error

	// CurrentURL is the cheap liveness probe: it fails when the context is dead.
	CurrentURL(ctx context.Context) (string, error)

	// Close releases the browser context. It is safe to call more than once.
	Close() error
}

// SelectBy chooses how Element.Select matches an option.
type SelectBy int

const (
	SelectByValue SelectBy = iota
	SelectByLabel
)

// Element is a handle to a node on the current page.
type Element interface {
	Finder

	Clear(ctx context.Context) error

	// Empty removes every child node, leaving the element itself in place.
	Empty(ctx context.Context) error

	Type(ctx context.Context, text string) error
	Click(ctx context.Context) error

	// Text returns the rendered (innerText) content.
	Text(ctx context.Context) (string, error)

	// HTML returns the outer HTML.
	HTML(ctx context.Context) (string, error)

	// Select picks an <option> of a <select> element by value or exact
	// visible label. It fails when no option matches.
	Select(ctx context.Context, by SelectBy, value string) error
}

// LaunchFunc builds a fresh Driver. A session calls it on every (re)start.
type LaunchFunc func(ctx context.Context) (Driver, error)
