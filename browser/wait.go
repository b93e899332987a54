package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultPoll is the polling interval used when none is given.
const DefaultPoll = 200 * time.Millisecond

// Predicate is evaluated repeatedly by WaitUntil.
type Predicate func(ctx context.Context) (bool, error)

// WaitUntil evaluates pred every poll interval until it returns true or the
// ceiling elapses. It returns (false, nil) on timeout. An error from pred
// aborts the wait unless it was caused by the ceiling itself.
func WaitUntil(ctx context.Context, ceiling, poll time.Duration, pred Predicate) (bool, error) {
	if poll <= 0 {
		poll = DefaultPoll
	}
	ctx, cancel := context.WithTimeout(ctx, ceiling)
	defer cancel()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		ok, err := pred(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return false, nil
			}
			return false, err
		}
		if ok {
			return true, nil
		}

		select {
		case <-ctx.Done():
			return false, nil
		case <-ticker.C:
		}
	}
}

// WaitFor polls f until one of the locators matches, bounded by ceiling.
// On timeout the returned error wraps ErrNotFound.
func WaitFor(ctx context.Context, f Finder, locators Locators, ceiling, poll time.Duration) (Element, error) {
	var found Element
	ok, err := WaitUntil(ctx, ceiling, poll, func(ctx context.Context) (bool, error) {
		el, err := f.FindFirst(ctx, locators)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		found = el
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w within %s: %s", ErrNotFound, ceiling, locators)
	}
	return found, nil
}

// Present reports whether any locator matches right now.
func Present(ctx context.Context, f Finder, locators Locators) (bool, error) {
	_, err := f.FindFirst(ctx, locators)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
