package browser

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/tukibridge/config"
	"github.com/ysmood/gson"
)

// rodDriver is a Driver backed by one Chromium process and one page.
type rodDriver struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	router   *rod.HijackRouter
	pageLoad time.Duration

	closeOnce sync.Once
	closeErr  error
}

// Launch starts a Chromium process configured by cfg and opens the single
// page a session works on. pageLoad bounds every navigation.
func Launch(ctx context.Context, cfg config.BrowserConfig, pageLoad time.Duration) (Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}
	if cfg.WindowSize != "" {
		l.Set(flags.Flag("window-size"), cfg.WindowSize)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "TranslateUI")
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	slog.Debug("browser launched", "controlURL", controlURL)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, fmt.Errorf("open page: %w", err)
	}

	d := &rodDriver{
		launcher: l,
		browser:  b,
		page:     page,
		pageLoad: pageLoad,
	}
	if err := d.prepare(cfg); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// prepare applies page-level settings before the first navigation.
func (d *rodDriver) prepare(cfg config.BrowserConfig) error {
	if cfg.Stealth {
		if _, err := d.page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}

	if cfg.UserAgent != "" || cfg.AcceptLanguage != "" {
		err := d.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      userAgentOr(d.browser, cfg.UserAgent),
			AcceptLanguage: cfg.AcceptLanguage,
		})
		if err != nil {
			return fmt.Errorf("set user agent: %w", err)
		}
	}

	if cfg.AcceptLanguage != "" {
		err := proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(map[string]string{"Accept-Language": cfg.AcceptLanguage}),
		}.Call(d.page)
		if err != nil {
			slog.Warn("extra headers not applied", "header", "Accept-Language", "error", err)
		}
	}

	d.router = blockResources(d.page, cfg.BlockedResourceTypes)
	return nil
}

// userAgentOr returns ua, or the browser's own user agent with the headless
// marker removed when ua is empty.
func userAgentOr(b *rod.Browser, ua string) string {
	if ua != "" {
		return ua
	}
	v, err := proto.BrowserGetVersion{}.Call(b)
	if err != nil {
		return ""
	}
	return regexp.MustCompile(`HeadlessChrome`).ReplaceAllString(v.UserAgent, "Chrome")
}

func (d *rodDriver) Navigate(ctx context.Context, url string) error {
	p := d.page.Context(ctx).Timeout(d.pageLoad)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

func (d *rodDriver) Reload(ctx context.Context) error {
	p := d.page.Context(ctx).Timeout(d.pageLoad)
	if err := p.Reload(); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load after reload: %w", err)
	}
	return nil
}

func (d *rodDriver) CurrentURL(ctx context.Context) (string, error) {
	info, err := d.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", err)
	}
	return info.URL, nil
}

func (d *rodDriver) FindFirst(ctx context.Context, locators Locators) (Element, error) {
	return findFirst(d.page.Context(ctx), locators)
}

func (d *rodDriver) Close() error {
	d.closeOnce.Do(func() {
		if d.router != nil {
			_ = d.router.Stop()
		}
		d.closeErr = d.browser.Close()
		d.launcher.Kill()
		d.launcher.Cleanup()
	})
	return d.closeErr
}

// searcher is the lookup surface shared by *rod.Page and *rod.Element.
type searcher interface {
	Has(selector string) (bool, *rod.Element, error)
	HasX(selector string) (bool, *rod.Element, error)
	HasR(selector, jsRegex string) (bool, *rod.Element, error)
}

func findFirst(s searcher, locators Locators) (Element, error) {
	for _, loc := range locators {
		var (
			ok  bool
			el  *rod.Element
			err error
		)
		switch loc.By {
		case ByCSS:
			ok, el, err = s.Has(loc.Selector)
		case ByXPath:
			ok, el, err = s.HasX(loc.Selector)
		case ByText:
			ok, el, err = s.HasR(loc.Selector, "/"+regexp.QuoteMeta(loc.Text)+"/")
		default:
			return nil, fmt.Errorf("unknown locator strategy %q", loc.By)
		}
		if err != nil {
			return nil, fmt.Errorf("find %s: %w", loc, err)
		}
		if ok {
			return &rodElement{el: el}, nil
		}
	}
	return nil, ErrNotFound
}

// rodElement rebinds the element to the caller's context on every call so a
// handle found inside a short wait stays usable afterwards.
type rodElement struct {
	el *rod.Element
}

const clearJS = `() => {
	this.value = "";
	this.dispatchEvent(new Event("input", { bubbles: true }));
	this.dispatchEvent(new Event("change", { bubbles: true }));
}`

func (e *rodElement) Clear(ctx context.Context) error {
	_, err := e.el.Context(ctx).Eval(clearJS)
	return err
}

func (e *rodElement) Empty(ctx context.Context) error {
	_, err := e.el.Context(ctx).Eval(`() => { this.replaceChildren() }`)
	return err
}

func (e *rodElement) Type(ctx context.Context, text string) error {
	return e.el.Context(ctx).Input(text)
}

func (e *rodElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *rodElement) HTML(ctx context.Context) (string, error) {
	return e.el.Context(ctx).HTML()
}

func (e *rodElement) Select(ctx context.Context, by SelectBy, value string) error {
	el := e.el.Context(ctx)
	switch by {
	case SelectByValue:
		return el.Select([]string{"option[value=" + strconv.Quote(value) + "]"}, true, rod.SelectorTypeCSSSector)
	case SelectByLabel:
		return el.Select([]string{`^\s*` + regexp.QuoteMeta(value) + `\s*$`}, true, rod.SelectorTypeRegex)
	default:
		return fmt.Errorf("unknown select mode %d", by)
	}
}

func (e *rodElement) FindFirst(ctx context.Context, locators Locators) (Element, error) {
	return findFirst(e.el.Context(ctx), locators)
}

// toHeadersMap converts a plain string map to proto.NetworkHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
