// Package session owns the single long-lived browser session used to query
// the target site, and the Fetcher that serializes every query through it.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/tukibridge/browser"
	"github.com/use-agent/tukibridge/config"
	"github.com/use-agent/tukibridge/models"
)

// State is the lifecycle state of a Session.
type State int32

const (
	// StateUninitialized means no driver is held.
	StateUninitialized State = iota
	// StateReady means the driver is live and positioned on the search form.
	StateReady
	// StateBroken means the driver failed its liveness probe.
	StateBroken
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateBroken:
		return "broken"
	default:
		return "uninitialized"
	}
}

// Options configures a Session.
type Options struct {
	Site   Site
	Waits  config.WaitConfig
	Policy config.SessionConfig

	// Location is used for server-sourced timestamps. Defaults to time.Local.
	Location *time.Location

	// Observer receives session events. Defaults to NopObserver.
	Observer Observer

	// Now defaults to time.Now.
	Now func() time.Time
}

// OptionsFromConfig builds Options from the application config. cfg must
// already be validated.
func OptionsFromConfig(cfg *config.Config) Options {
	loc, err := cfg.Session.Location()
	if err != nil {
		loc = time.Local
	}
	return Options{
		Site:     DefaultSite(cfg.Site),
		Waits:    cfg.Waits,
		Policy:   cfg.Session,
		Location: loc,
	}
}

// Session owns exactly one browser.Driver at a time. All methods that touch
// the driver hold mu; the driver never escapes it.
type Session struct {
	launch   browser.LaunchFunc
	nav      *Navigator
	opts     Options
	observer Observer
	now      func() time.Time

	mu     sync.Mutex
	driver browser.Driver
	health health

	// Read without the lock by Stats.
	state        atomic.Int32
	lastActivity atomic.Int64
	startedAt    atomic.Int64
	uses         atomic.Int64
	restarts     atomic.Int64
}

// New builds an Uninitialized session. No browser is started until Start or
// the first fetch. It returns a CONFIGURATION_ERROR when the site URL is
// missing.
func New(launch browser.LaunchFunc, opts Options) (*Session, error) {
	if opts.Site.URL == "" {
		return nil, models.NewFetchError(models.ErrCodeConfiguration, "target site URL is required", nil)
	}
	if launch == nil {
		return nil, models.NewFetchError(models.ErrCodeConfiguration, "no browser launcher configured", nil)
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Waits.Poll <= 0 {
		opts.Waits.Poll = browser.DefaultPoll
	}
	obs := opts.Observer
	if obs == nil {
		obs = NopObserver{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Session{
		launch:   launch,
		nav:      NewNavigator(opts.Site, opts.Waits),
		opts:     opts,
		observer: obs,
		now:      now,
	}, nil
}

// Start launches the browser and positions it on the search form.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restart(ctx, "startup")
}

// EnsureReady returns nil once the driver is live and on the search form.
func (s *Session) EnsureReady(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureReady(ctx)
}

// Restart discards the current driver and builds a fresh one.
func (s *Session) Restart(ctx context.Context, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restart(ctx, reason)
}

// Close releases the driver. The session can be started again afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.discard()
	s.setState(StateUninitialized)
	return err
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Stats returns a snapshot for health reporting. It does not wait for an
// in-flight fetch.
func (s *Session) Stats() models.SessionStats {
	stats := models.SessionStats{
		State:    s.State().String(),
		Uses:     int(s.uses.Load()),
		Restarts: int(s.restarts.Load()),
	}
	if v := s.lastActivity.Load(); v > 0 {
		stats.LastActivity = time.Unix(0, v).In(s.opts.Location).Format(time.RFC3339)
	}
	if v := s.startedAt.Load(); v > 0 {
		stats.StartedAt = time.Unix(0, v).In(s.opts.Location).Format(time.RFC3339)
	}
	return stats
}

// ── lock held below ────────────────────────────────────────────────

func (s *Session) ensureReady(ctx context.Context) error {
	if s.driver == nil {
		return s.restart(ctx, "start")
	}

	if _, err := s.driver.CurrentURL(ctx); err != nil {
		slog.Warn("session liveness probe failed", "error", err)
		s.setState(StateBroken)
		return s.restart(ctx, "broken")
	}

	now := s.now()
	if reason := s.health.retireReason(s.opts.Policy, now); reason != "" {
		slog.Info("retiring session", "reason", reason, "uses", s.health.uses)
		return s.restart(ctx, reason)
	}

	idle := now.Sub(time.Unix(0, s.lastActivity.Load()))
	if s.opts.Policy.IdleRefresh > 0 && idle > s.opts.Policy.IdleRefresh {
		slog.Debug("session idle, refreshing", "idle", idle)
		if err := s.refresh(ctx); err != nil {
			slog.Warn("idle refresh failed", "error", err)
			return s.restart(ctx, "idle_refresh_failed")
		}
		s.markActive()
	}

	present, err := browser.Present(ctx, s.driver, s.opts.Site.QueryField)
	if err != nil {
		return err
	}
	if !present {
		return s.nav.GoToSearchForm(ctx, s.driver)
	}
	return nil
}

// refresh reloads the page and waits for the query field.
func (s *Session) refresh(ctx context.Context) error {
	if err := s.driver.Reload(ctx); err != nil {
		return err
	}
	_, err := browser.WaitFor(ctx, s.driver, s.opts.Site.QueryField, s.opts.Waits.Medium, s.opts.Waits.Poll)
	return err
}

// restart always discards the current driver first, so a failed launch
// leaves the session Uninitialized rather than half-built.
func (s *Session) restart(ctx context.Context, reason string) error {
	hadDriver := s.driver != nil
	if err := s.discard(); err != nil {
		slog.Debug("closing previous driver", "error", err)
	}
	s.setState(StateUninitialized)
	if hadDriver {
		s.restarts.Add(1)
		s.observer.SessionRestarted(reason)
	}
	slog.Info("starting session", "reason", reason)

	d, err := s.launch(ctx)
	if err != nil {
		return models.NewFetchError(models.ErrCodeUpstream, "browser launch failed", err)
	}
	if err := s.nav.GoToSearchForm(ctx, d); err != nil {
		_ = d.Close()
		return err
	}

	now := s.now()
	s.driver = d
	s.health = newHealth(now)
	s.uses.Store(0)
	s.startedAt.Store(now.UnixNano())
	s.markActive()
	s.setState(StateReady)
	return nil
}

func (s *Session) discard() error {
	if s.driver == nil {
		return nil
	}
	err := s.driver.Close()
	s.driver = nil
	return err
}

func (s *Session) markActive() {
	s.lastActivity.Store(s.now().UnixNano())
}

func (s *Session) setState(st State) {
	if State(s.state.Swap(int32(st))) != st {
		s.observer.StateChanged(st)
	}
}

// recordUse updates health after a completed query.
func (s *Session) recordUse(soft bool) {
	if soft {
		s.health.recordSoftFailure()
	} else {
		s.health.recordSuccess()
	}
	s.uses.Add(1)
	s.markActive()
}
