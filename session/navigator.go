package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/tukibridge/browser"
	"github.com/use-agent/tukibridge/config"
	"github.com/use-agent/tukibridge/models"
)

// Outcome is the result of an optional navigation step.
type Outcome int

const (
	// NotApplicable means the step's control was absent.
	NotApplicable Outcome = iota
	// Matched means the step ran to completion.
	Matched
	// FailedSoft means the control was present but the step could not
	// complete. The flow continues regardless.
	FailedSoft
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case FailedSoft:
		return "failed_soft"
	default:
		return "not_applicable"
	}
}

// Navigator drives a Driver through the site's entry flow and search form.
type Navigator struct {
	site  Site
	waits config.WaitConfig
}

// NewNavigator builds a Navigator for site.
func NewNavigator(site Site, waits config.WaitConfig) *Navigator {
	return &Navigator{site: site, waits: waits}
}

// GoToSearchForm loads the site and passes the optional identifier step until
// the query field is present. It reloads at most once per phase.
func (n *Navigator) GoToSearchForm(ctx context.Context, d browser.Driver) error {
	if err := d.Navigate(ctx, n.site.URL); err != nil {
		return models.NewFetchError(models.ErrCodeNavigation, "could not load the search page", err)
	}

	// Either the identifier step or the search form must show up.
	entry := append(append(browser.Locators{}, n.site.IdentifierField...), n.site.QueryField...)
	reloaded := false
	if err := n.waitOrReload(ctx, d, entry, &reloaded); err != nil {
		return err
	}

	outcome := n.passIdentifierStep(ctx, d)
	slog.Debug("identifier step", "outcome", outcome)

	_, err := browser.WaitFor(ctx, d, n.site.QueryField, n.waits.Long, n.waits.Poll)
	if err == nil {
		return nil
	}
	if !errors.Is(err, browser.ErrNotFound) || reloaded {
		return navigationError("search form did not appear", err)
	}

	// The identifier step may have left the page mid-transition; retry once.
	if err := d.Reload(ctx); err != nil {
		return navigationError("reload failed", err)
	}
	outcome = n.passIdentifierStep(ctx, d)
	slog.Debug("identifier step after reload", "outcome", outcome)

	if _, err := browser.WaitFor(ctx, d, n.site.QueryField, n.waits.Long, n.waits.Poll); err != nil {
		return navigationError("search form did not appear after reload", err)
	}
	return nil
}

func (n *Navigator) waitOrReload(ctx context.Context, d browser.Driver, locs browser.Locators, reloaded *bool) error {
	_, err := browser.WaitFor(ctx, d, locs, n.waits.Long, n.waits.Poll)
	if err == nil {
		return nil
	}
	if !errors.Is(err, browser.ErrNotFound) {
		return err
	}

	*reloaded = true
	if err := d.Reload(ctx); err != nil {
		return navigationError("reload failed", err)
	}
	if _, err := browser.WaitFor(ctx, d, locs, n.waits.Long, n.waits.Poll); err != nil {
		return navigationError("entry page did not render", err)
	}
	return nil
}

// passIdentifierStep fills and submits the identifier form when the site
// shows one. It never fails the flow.
func (n *Navigator) passIdentifierStep(ctx context.Context, d browser.Driver) Outcome {
	field, err := d.FindFirst(ctx, n.site.IdentifierField)
	if errors.Is(err, browser.ErrNotFound) {
		return NotApplicable
	}
	if err != nil {
		slog.Debug("identifier lookup failed", "error", err)
		return FailedSoft
	}
	if n.site.Identifier == "" {
		slog.Warn("identifier step present but TUKI_USERNAME is not set")
		return FailedSoft
	}

	if err := field.Clear(ctx); err != nil {
		slog.Debug("clear identifier field", "error", err)
	}
	if err := field.Type(ctx, n.site.Identifier); err != nil {
		slog.Debug("type identifier", "error", err)
		return FailedSoft
	}
	if ok, err := n.clickFirst(ctx, d, n.site.ContinueButtons, n.waits.Short); !ok {
		slog.Debug("no continue button clicked", "error", err)
		return FailedSoft
	}
	return Matched
}

// SelectCondition picks the option for kind in the condition control: values
// first, then visible labels.
func (n *Navigator) SelectCondition(ctx context.Context, d browser.Driver, kind models.Kind) Outcome {
	sel, err := d.FindFirst(ctx, n.site.ConditionSelect)
	if errors.Is(err, browser.ErrNotFound) {
		return NotApplicable
	}
	if err != nil {
		slog.Debug("condition lookup failed", "error", err)
		return FailedSoft
	}

	choices := n.site.Conditions[kind]
	for _, v := range choices.Values {
		if err := sel.Select(ctx, browser.SelectByValue, v); err == nil {
			return Matched
		}
	}
	for _, label := range choices.Labels {
		if err := sel.Select(ctx, browser.SelectByLabel, label); err == nil {
			return Matched
		}
	}
	return FailedSoft
}

// SubmitQuery fills the query field, selects the condition for kind and
// clicks the search button. The returned Outcome is the condition step's.
func (n *Navigator) SubmitQuery(ctx context.Context, d browser.Driver, identifier string, kind models.Kind) (Outcome, error) {
	field, err := browser.WaitFor(ctx, d, n.site.QueryField, n.waits.Medium, n.waits.Poll)
	if err != nil {
		return NotApplicable, navigationError("query field not present", err)
	}
	if err := field.Clear(ctx); err != nil {
		slog.Debug("clear query field", "error", err)
	}
	if err := field.Type(ctx, identifier); err != nil {
		return NotApplicable, fmt.Errorf("type query: %w", err)
	}

	outcome := n.SelectCondition(ctx, d, kind)
	switch outcome {
	case FailedSoft:
		if n.site.StrictCondition {
			return outcome, models.NewFetchError(models.ErrCodeSubmission,
				fmt.Sprintf("no condition option matched %s", kind), nil)
		}
		slog.Warn("no condition option matched, submitting with the preselected one", "kind", kind)
	case NotApplicable:
		slog.Debug("no condition control on the form", "kind", kind)
	}

	if ok, err := n.clickFirst(ctx, d, n.site.SubmitButtons, n.waits.Short); !ok {
		return outcome, models.NewFetchError(models.ErrCodeSubmission, "search button was not clickable", err)
	}
	return outcome, nil
}

// clickFirst waits up to ceiling for each candidate in turn and clicks the
// first one found. It returns the last error seen when nothing was clicked.
func (n *Navigator) clickFirst(ctx context.Context, d browser.Driver, locs browser.Locators, ceiling time.Duration) (bool, error) {
	var lastErr error
	for _, loc := range locs {
		el, err := browser.WaitFor(ctx, d, browser.Locators{loc}, ceiling, n.waits.Poll)
		if err != nil {
			lastErr = err
			continue
		}
		if err := el.Click(ctx); err != nil {
			lastErr = fmt.Errorf("click %s: %w", loc, err)
			continue
		}
		return true, nil
	}
	return false, lastErr
}

func navigationError(msg string, err error) error {
	var fe *models.FetchError
	if errors.As(err, &fe) {
		return err
	}
	if errors.Is(err, browser.ErrNotFound) || errors.Is(err, context.DeadlineExceeded) {
		return models.NewFetchError(models.ErrCodeNavigation, msg, err)
	}
	return err
}
