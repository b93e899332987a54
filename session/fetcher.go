package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/use-agent/tukibridge/browser"
	"github.com/use-agent/tukibridge/extract"
	"github.com/use-agent/tukibridge/models"
)

// ServerTimeLayout is the human-readable form of server-sourced timestamps.
const ServerTimeLayout = "Mon, 02 Jan 2006 15:04:05 MST"

const (
	transientMessage = "upstream session error, please retry"
	emptyWarning     = "Không tìm thấy dữ liệu."
)

// Fetcher is the single entry point for queries. It serializes every caller
// through one Session and never returns an error: failures come back as a
// FetchResult with Success false.
type Fetcher struct {
	s *Session
}

// NewFetcher wraps s.
func NewFetcher(s *Session) *Fetcher {
	return &Fetcher{s: s}
}

// Session returns the underlying session.
func (f *Fetcher) Session() *Session {
	return f.s
}

// Fetch runs one query. Cancelling ctx does not abort a fetch in flight;
// every wait inside has its own ceiling.
func (f *Fetcher) Fetch(ctx context.Context, req models.FetchRequest) models.FetchResult {
	ctx = context.WithoutCancel(ctx)
	s := f.s

	started := s.now()
	serverNow := started.In(s.opts.Location)
	serverRaw := serverNow.Format(ServerTimeLayout)
	serverISO := serverNow.Format(time.RFC3339)

	s.mu.Lock()
	res := f.fetchLocked(ctx, req)
	elapsed := s.now().Sub(started)
	s.observer.FetchCompleted(req.Kind, res, elapsed)
	s.mu.Unlock()

	res.ServerTimeRaw = serverRaw
	res.ServerTimeISO = serverISO
	if res.Success && res.ReceivedAtRaw == "" && res.ReceivedAtISO == "" {
		res.ReceivedAtRaw = serverRaw
		res.ReceivedAtISO = serverISO
		res.ServerTime = true
	}

	slog.Info("fetch completed",
		"kind", req.Kind,
		"success", res.Success,
		"failure", res.Failure,
		"parse_path", res.ParsePath,
		"elapsed", elapsed,
	)
	return res
}

// Restart rebuilds the session, waiting for any fetch in flight.
func (f *Fetcher) Restart(ctx context.Context, reason string) error {
	return f.s.Restart(context.WithoutCancel(ctx), reason)
}

func (f *Fetcher) fetchLocked(ctx context.Context, req models.FetchRequest) models.FetchResult {
	s := f.s

	if err := s.ensureReady(ctx); err != nil {
		return f.fail(ctx, req, err)
	}
	d := s.driver

	// The previous query's result stays on the page until the site renders
	// the next one.
	if err := emptyResultArea(ctx, d, s.opts.Site.ResultArea); err != nil {
		return f.fail(ctx, req, err)
	}

	outcome, err := s.nav.SubmitQuery(ctx, d, req.Identifier, req.Kind)
	if outcome == FailedSoft {
		s.observer.ConditionUnmatched(req.Kind)
	}
	if err != nil {
		return f.fail(ctx, req, err)
	}

	root, err := waitForResult(ctx, d, s.opts.Site.ResultArea, s.opts.Waits.Result, s.opts.Waits.Poll)
	if err != nil {
		return f.fail(ctx, req, navigationError("result area did not appear", err))
	}

	area, err := readResultArea(ctx, root, s.opts.Site.Warning)
	if err != nil {
		return f.fail(ctx, req, err)
	}

	res := extract.Parse(area)
	s.recordUse(outcome == FailedSoft)
	return res
}

// fail logs err, converts it to a failure result and rebuilds the session
// unless the site simply had no data.
func (f *Fetcher) fail(ctx context.Context, req models.FetchRequest, err error) models.FetchResult {
	kind, msg := classify(err)
	slog.Warn("fetch failed",
		"kind", req.Kind,
		"failure", kind,
		"error", err,
	)

	// A nil driver means the failure came from building the session itself;
	// the next fetch starts from scratch anyway.
	if kind.NeedsRestart() && f.s.driver != nil {
		if rerr := f.s.restart(ctx, string(kind)); rerr != nil {
			slog.Error("session restart failed", "error", rerr)
		}
	}
	return models.Failed(kind, msg)
}

// emptyResultArea clears a result area left over from an earlier query.
func emptyResultArea(ctx context.Context, d browser.Driver, locs browser.Locators) error {
	area, err := d.FindFirst(ctx, locs)
	if errors.Is(err, browser.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := area.Empty(ctx); err != nil {
		return fmt.Errorf("empty previous result: %w", err)
	}
	return nil
}

// waitForResult waits until the result area is present and has content.
// On timeout the returned error wraps browser.ErrNotFound.
func waitForResult(ctx context.Context, d browser.Driver, locs browser.Locators, ceiling, poll time.Duration) (browser.Element, error) {
	var found browser.Element
	ok, err := browser.WaitUntil(ctx, ceiling, poll, func(ctx context.Context) (bool, error) {
		el, err := d.FindFirst(ctx, locs)
		if errors.Is(err, browser.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		// A read error here usually means the area was replaced mid-render.
		text, err := el.Text(ctx)
		if err != nil || strings.TrimSpace(text) == "" {
			return false, nil
		}
		found = el
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w within %s: %s", browser.ErrNotFound, ceiling, locs)
	}
	return found, nil
}

// readResultArea reads the warning banner, or else the payload, from root.
func readResultArea(ctx context.Context, root browser.Element, warning browser.Locators) (extract.ResultArea, error) {
	banner, err := root.FindFirst(ctx, warning)
	switch {
	case err == nil:
		text, terr := banner.Text(ctx)
		if terr != nil {
			return extract.ResultArea{}, terr
		}
		if strings.TrimSpace(text) == "" {
			text = emptyWarning
		}
		return extract.ResultArea{Warning: text}, nil
	case !errors.Is(err, browser.ErrNotFound):
		return extract.ResultArea{}, err
	}

	if html, err := root.HTML(ctx); err == nil {
		if fields, ok := extract.StructuredFromHTML(html); ok {
			return extract.ResultArea{Payload: fields}, nil
		}
	}

	text, err := root.Text(ctx)
	if err != nil {
		return extract.ResultArea{}, err
	}
	return extract.ResultArea{Payload: extract.RawText(text)}, nil
}

// classify maps an error to a failure kind and the message callers see.
// Transient errors get a generic message; the detail stays in the logs.
func classify(err error) (models.FailureKind, string) {
	var fe *models.FetchError
	if errors.As(err, &fe) {
		kind := fe.Failure()
		if kind == models.FailureTransient {
			return kind, transientMessage
		}
		return kind, fe.Message
	}

	switch {
	case errors.Is(err, browser.ErrNotFound):
		return models.FailureNavigation, "expected page element did not appear"
	case errors.Is(err, context.DeadlineExceeded):
		return models.FailureTransient, "timed out waiting for the upstream site"
	default:
		return models.FailureTransient, transientMessage
	}
}
