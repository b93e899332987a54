package session

import (
	"context"
	"errors"
	"fmt"
	"html"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/tukibridge/browser"
	"github.com/use-agent/tukibridge/config"
	"github.com/use-agent/tukibridge/models"
)

var errCrashed = errors.New("browser crashed")

// fakeSite simulates the target website. Each launched fakeDriver browses it.
type fakeSite struct {
	identifierStep  bool
	conditionValues []string
	conditionLabels []string
	noCondition     bool
	noSubmit        bool
	noResult        bool
	result          string
	resultHTML      string
	warning         string
	delay           time.Duration

	// renderLag keeps the previous result area on the page for this many
	// driver lookups after the search button is clicked.
	renderLag int

	mu       sync.Mutex
	launches int
	reloads  int
	queries  []string
	selected []string
	drivers  []*fakeDriver

	inFlight  atomic.Int32
	reentered atomic.Bool
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		conditionValues: []string{"netflix_code", "netflix_verify"},
		result:          "Nội dung: 583920\nThời gian nhận: Wed, 05 Mar 2025 14:22:01",
	}
}

func (fs *fakeSite) launch(context.Context) (browser.Driver, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.launches++
	d := &fakeDriver{site: fs}
	fs.drivers = append(fs.drivers, d)
	return d, nil
}

// enter flags overlapping calls into the site.
func (fs *fakeSite) enter() func() {
	if fs.inFlight.Add(1) > 1 {
		fs.reentered.Store(true)
	}
	if fs.delay > 0 {
		time.Sleep(fs.delay)
	}
	return func() { fs.inFlight.Add(-1) }
}

func (fs *fakeSite) launchCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.launches
}

func (fs *fakeSite) reloadCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.reloads
}

func (fs *fakeSite) lastDriver() *fakeDriver {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.drivers[len(fs.drivers)-1]
}

// fakeArea is the rendered content of the result area.
type fakeArea struct {
	text    string
	html    string
	warning string
}

type fakeDriver struct {
	site   *fakeSite
	page   string
	closed bool

	area    *fakeArea
	next    *fakeArea
	pending int
	emptied int

	probeErr  error
	reloadErr error
	clickErr  error
}

func (d *fakeDriver) check() error {
	if d.closed {
		return errors.New("driver closed")
	}
	return nil
}

func (d *fakeDriver) entryPage() string {
	if d.site.identifierStep {
		return "identifier"
	}
	return "search"
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	defer d.site.enter()()
	if err := d.check(); err != nil {
		return err
	}
	d.page = d.entryPage()
	d.area, d.next, d.pending = nil, nil, 0
	return nil
}

func (d *fakeDriver) Reload(ctx context.Context) error {
	defer d.site.enter()()
	d.site.mu.Lock()
	d.site.reloads++
	d.site.mu.Unlock()
	if err := d.check(); err != nil {
		return err
	}
	if d.reloadErr != nil {
		return d.reloadErr
	}
	if d.page != "identifier" {
		d.page = "search"
	}
	d.area, d.next, d.pending = nil, nil, 0
	return nil
}

func (d *fakeDriver) CurrentURL(ctx context.Context) (string, error) {
	defer d.site.enter()()
	if err := d.check(); err != nil {
		return "", err
	}
	if d.probeErr != nil {
		return "", d.probeErr
	}
	return "https://tuki.test/" + d.page, nil
}

func (d *fakeDriver) Close() error {
	d.closed = true
	return nil
}

func (d *fakeDriver) FindFirst(ctx context.Context, locs browser.Locators) (browser.Element, error) {
	defer d.site.enter()()
	if err := d.check(); err != nil {
		return nil, err
	}
	if d.pending > 0 {
		d.pending--
		if d.pending == 0 {
			d.area, d.next = d.next, nil
		}
	}
	for _, l := range locs {
		if role := d.lookup(l); role != "" {
			return &fakeElement{d: d, role: role}, nil
		}
	}
	return nil, browser.ErrNotFound
}

func (d *fakeDriver) lookup(l browser.Locator) string {
	onForm := d.page == "search" || d.page == "result"
	fs := d.site
	switch l.Selector {
	case "#username":
		if d.page == "identifier" {
			return "identifier"
		}
	case "button.btn.btn-success.w-100":
		if d.page == "identifier" {
			return "continue"
		}
	case "#email":
		if onForm {
			return "query"
		}
	case "select#condition":
		if onForm && !fs.noCondition {
			return "select"
		}
	case "//button[contains(., 'Tìm kiếm')]":
		if onForm && !fs.noSubmit {
			return "submit"
		}
	case "#results-content":
		if d.area != nil && !fs.noResult {
			return "result"
		}
	}
	return ""
}

type fakeElement struct {
	d    *fakeDriver
	role string
}

func (e *fakeElement) Clear(ctx context.Context) error {
	defer e.d.site.enter()()
	return e.d.check()
}

func (e *fakeElement) Type(ctx context.Context, text string) error {
	defer e.d.site.enter()()
	if err := e.d.check(); err != nil {
		return err
	}
	if e.role == "query" {
		e.d.site.mu.Lock()
		e.d.site.queries = append(e.d.site.queries, text)
		e.d.site.mu.Unlock()
	}
	return nil
}

func (e *fakeElement) Click(ctx context.Context) error {
	defer e.d.site.enter()()
	if err := e.d.check(); err != nil {
		return err
	}
	if e.d.clickErr != nil {
		return e.d.clickErr
	}
	switch e.role {
	case "continue":
		e.d.page = "search"
	case "submit":
		e.d.page = "result"
		rendered := e.d.site.render()
		if e.d.site.renderLag > 0 {
			e.d.next, e.d.pending = rendered, e.d.site.renderLag
		} else {
			e.d.area = rendered
		}
	}
	return nil
}

// render snapshots what the site shows for the current query.
func (fs *fakeSite) render() *fakeArea {
	a := &fakeArea{text: fs.result, html: fs.resultHTML, warning: fs.warning}
	if a.html == "" {
		a.html = `<div id="results-content"><pre>` + html.EscapeString(fs.result) + `</pre></div>`
	}
	if a.warning != "" {
		a.text = strings.TrimSpace(a.warning + "\n" + a.text)
	}
	return a
}

func (e *fakeElement) Empty(ctx context.Context) error {
	defer e.d.site.enter()()
	if err := e.d.check(); err != nil {
		return err
	}
	if e.role == "result" && e.d.area != nil {
		e.d.area = &fakeArea{html: `<div id="results-content"></div>`}
		e.d.emptied++
	}
	return nil
}

func (e *fakeElement) Text(ctx context.Context) (string, error) {
	defer e.d.site.enter()()
	if err := e.d.check(); err != nil {
		return "", err
	}
	switch e.role {
	case "result":
		if e.d.area != nil {
			return e.d.area.text, nil
		}
	case "warning":
		if e.d.area != nil {
			return e.d.area.warning, nil
		}
	}
	return "", nil
}

func (e *fakeElement) HTML(ctx context.Context) (string, error) {
	defer e.d.site.enter()()
	if err := e.d.check(); err != nil {
		return "", err
	}
	if e.role == "result" && e.d.area != nil {
		return e.d.area.html, nil
	}
	return "", nil
}

func (e *fakeElement) Select(ctx context.Context, by browser.SelectBy, value string) error {
	defer e.d.site.enter()()
	if err := e.d.check(); err != nil {
		return err
	}
	options := e.d.site.conditionValues
	if by == browser.SelectByLabel {
		options = e.d.site.conditionLabels
	}
	if !slices.Contains(options, value) {
		return fmt.Errorf("no option %q", value)
	}
	e.d.site.mu.Lock()
	e.d.site.selected = append(e.d.site.selected, value)
	e.d.site.mu.Unlock()
	return nil
}

func (e *fakeElement) FindFirst(ctx context.Context, locs browser.Locators) (browser.Element, error) {
	defer e.d.site.enter()()
	if err := e.d.check(); err != nil {
		return nil, err
	}
	for _, l := range locs {
		if e.role == "result" && l.Selector == ".alert.alert-warning" && e.d.area != nil && e.d.area.warning != "" {
			return &fakeElement{d: e.d, role: "warning"}, nil
		}
	}
	return nil, browser.ErrNotFound
}

// brokenDriver fails every operation.
type brokenDriver struct{}

func (brokenDriver) Navigate(context.Context, string) error { return errCrashed }
func (brokenDriver) Reload(context.Context) error { return errCrashed }
func (brokenDriver) CurrentURL(context.Context) (string, error) {
	return "", errCrashed
}
func (brokenDriver) Close() error { return errCrashed }
func (brokenDriver) FindFirst(context.Context, browser.Locators) (browser.Element, error) {
	return nil, errCrashed
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingObserver keeps every event.
type recordingObserver struct {
	mu        sync.Mutex
	states    []State
	restarts  []string
	unmatched []models.Kind
	fetches   int
}

func (o *recordingObserver) StateChanged(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, s)
}

func (o *recordingObserver) SessionRestarted(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.restarts = append(o.restarts, reason)
}

func (o *recordingObserver) ConditionUnmatched(kind models.Kind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unmatched = append(o.unmatched, kind)
}

func (o *recordingObserver) FetchCompleted(models.Kind, models.FetchResult, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fetches++
}

func testWaits() config.WaitConfig {
	return config.WaitConfig{
		Short:    30 * time.Millisecond,
		Medium:   50 * time.Millisecond,
		Long:     50 * time.Millisecond,
		Result:   50 * time.Millisecond,
		PageLoad: 50 * time.Millisecond,
		Poll:     2 * time.Millisecond,
	}
}

func testOptions() Options {
	return Options{
		Site: DefaultSite(config.SiteConfig{
			URL:               "https://tuki.test/",
			DefaultIdentifier: "CTV0047",
			StrictCondition:   true,
			Conditions:        config.DefaultConditions(),
		}),
		Waits:  testWaits(),
		Policy: config.SessionConfig{IdleRefresh: 300 * time.Second},
	}
}
