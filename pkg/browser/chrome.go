package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// Chrome drives a Chromium instance over the DevTools protocol.
type Chrome struct {
	opts Options

	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	tabCtx      context.Context
	cancelTab   context.CancelFunc

	// localStorage from a loaded State, applied lazily on Navigate because
	// localStorage can only be written in the context of its origin.
	pendingOrigins []OriginState
}

// NewChrome returns the plain Chromium-backed browser.
func NewChrome(opts Options) Browser {
	return &Chrome{opts: opts}
}

func (c *Chrome) timeout() time.Duration {
	if c.opts.Timeout > 0 {
		return c.opts.Timeout
	}
	return DefaultTimeout
}

func (c *Chrome) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("headless", c.opts.Headless))
	if c.opts.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(c.opts.Proxy))
	}
	return opts
}

func (c *Chrome) Launch(ctx context.Context) error {
	if c.tabCtx != nil {
		return fmt.Errorf("browser already launched")
	}
	c.allocCtx, c.cancelAlloc = chromedp.NewExecAllocator(ctx, c.allocatorOptions()...)
	c.tabCtx, c.cancelTab = chromedp.NewContext(c.allocCtx)

	// Force the browser process to start now so launch failures surface here
	// rather than on the first navigation.
	cctx, cancel := context.WithTimeout(c.tabCtx, c.timeout())
	defer cancel()
	if err := chromedp.Run(cctx); err != nil {
		c.teardown()
		return fmt.Errorf("launch browser: %w", err)
	}
	return nil
}

func (c *Chrome) Navigate(ctx context.Context, rawURL string) error {
	if c.tabCtx == nil {
		return fmt.Errorf("browser not launched")
	}
	cctx, cancel := context.WithTimeout(c.tabCtx, c.timeout())
	defer cancel()

	if err := chromedp.Run(cctx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate %s: %w", rawURL, err)
	}

	if origin := originOf(rawURL); origin != "" {
		if err := c.applyPendingOrigin(cctx, origin); err != nil {
			return err
		}
	}
	return nil
}

// applyPendingOrigin writes saved localStorage for the given origin and
// reloads so the application boots with the restored state.
func (c *Chrome) applyPendingOrigin(ctx context.Context, origin string) error {
	for i, o := range c.pendingOrigins {
		if o.Origin != origin {
			continue
		}
		for k, v := range o.LocalStorage {
			if err := chromedp.Run(ctx,
				chromedp.Evaluate(fmt.Sprintf("window.localStorage.setItem(%q, %q)", k, v), nil),
			); err != nil {
				return fmt.Errorf("restore localStorage: %w", err)
			}
		}
		c.pendingOrigins = append(c.pendingOrigins[:i], c.pendingOrigins[i+1:]...)
		if err := chromedp.Run(ctx,
			chromedp.Reload(),
			chromedp.WaitReady("body", chromedp.ByQuery),
		); err != nil {
			return fmt.Errorf("reload after state restore: %w", err)
		}
		return nil
	}
	return nil
}

func (c *Chrome) LoadState(ctx context.Context, state *State) error {
	if c.tabCtx == nil {
		return fmt.Errorf("browser not launched")
	}
	if state == nil {
		return nil
	}

	params := make([]*network.CookieParam, 0, len(state.Cookies))
	for _, ck := range state.Cookies {
		p := &network.CookieParam{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			HTTPOnly: ck.HTTPOnly,
			Secure:   ck.Secure,
		}
		if ck.SameSite != "" {
			p.SameSite = network.CookieSameSite(ck.SameSite)
		}
		if ck.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(ck.Expires), 0))
			p.Expires = &exp
		}
		params = append(params, p)
	}

	cctx, cancel := context.WithTimeout(c.tabCtx, c.timeout())
	defer cancel()
	if err := chromedp.Run(cctx, storage.SetCookies(params)); err != nil {
		return fmt.Errorf("restore cookies: %w", err)
	}

	c.pendingOrigins = append([]OriginState{}, state.Origins...)
	return nil
}

func (c *Chrome) State(ctx context.Context) (*State, error) {
	if c.tabCtx == nil {
		return nil, fmt.Errorf("browser not launched")
	}
	cctx, cancel := context.WithTimeout(c.tabCtx, c.timeout())
	defer cancel()

	var cookies []*network.Cookie
	var origin string
	var local map[string]string
	err := chromedp.Run(cctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = storage.GetCookies().Do(ctx)
			return err
		}),
		chromedp.Evaluate("window.location.origin", &origin),
		chromedp.Evaluate("Object.assign({}, window.localStorage)", &local),
	)
	if err != nil {
		return nil, fmt.Errorf("capture state: %w", err)
	}

	state := &State{}
	for _, ck := range cookies {
		state.Cookies = append(state.Cookies, Cookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Expires:  ck.Expires,
			HTTPOnly: ck.HTTPOnly,
			Secure:   ck.Secure,
			SameSite: string(ck.SameSite),
		})
	}
	if origin != "" && len(local) > 0 {
		state.Origins = append(state.Origins, OriginState{Origin: origin, LocalStorage: local})
	}
	return state, nil
}

func (c *Chrome) Close(ctx context.Context) error {
	if c.tabCtx == nil {
		return nil
	}
	err := chromedp.Cancel(c.tabCtx)
	c.teardown()
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

func (c *Chrome) teardown() {
	if c.cancelTab != nil {
		c.cancelTab()
	}
	if c.cancelAlloc != nil {
		c.cancelAlloc()
	}
	c.tabCtx = nil
	c.allocCtx = nil
	c.cancelTab = nil
	c.cancelAlloc = nil
}

func (c *Chrome) Surface() Surface {
	return &chromeSurface{chrome: c}
}

func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// chromeSurface implements Surface against the Chrome tab.
type chromeSurface struct {
	chrome *Chrome
}

const waitAnyProbeInterval = 250 * time.Millisecond

func (s *chromeSurface) WaitAny(ctx context.Context, timeout time.Duration, selectors ...string) (string, error) {
	if s.chrome.tabCtx == nil {
		return "", fmt.Errorf("browser not launched")
	}
	if timeout <= 0 {
		timeout = s.chrome.timeout()
	}
	deadline := time.Now().Add(timeout)

	for {
		for _, sel := range selectors {
			visible, err := s.isVisible(sel)
			if err != nil {
				return "", err
			}
			if visible {
				return sel, nil
			}
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w: none of %s visible within %s",
				ErrElementNotFound, strings.Join(selectors, ", "), timeout)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(waitAnyProbeInterval):
		}
	}
}

func (s *chromeSurface) isVisible(selector string) (bool, error) {
	cctx, cancel := context.WithTimeout(s.chrome.tabCtx, s.chrome.timeout())
	defer cancel()

	expr := fmt.Sprintf(
		"(() => { const el = document.querySelector(%q); return !!el && el.offsetParent !== null; })()",
		selector)
	var visible bool
	if err := chromedp.Run(cctx, chromedp.Evaluate(expr, &visible)); err != nil {
		return false, fmt.Errorf("probe selector %s: %w", selector, err)
	}
	return visible, nil
}

func (s *chromeSurface) Click(ctx context.Context, selector string) error {
	cctx, cancel := context.WithTimeout(s.chrome.tabCtx, s.chrome.timeout())
	defer cancel()
	if err := chromedp.Run(cctx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (s *chromeSurface) Fill(ctx context.Context, selector, value string) error {
	cctx, cancel := context.WithTimeout(s.chrome.tabCtx, s.chrome.timeout())
	defer cancel()
	if err := chromedp.Run(cctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return nil
}

func (s *chromeSurface) Press(ctx context.Context, selector, key string) error {
	cctx, cancel := context.WithTimeout(s.chrome.tabCtx, s.chrome.timeout())
	defer cancel()

	keys := key
	if key == "Enter" {
		keys = kb.Enter
	}
	if err := chromedp.Run(cctx, chromedp.SendKeys(selector, keys, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("press %s on %s: %w", key, selector, err)
	}
	return nil
}

func (s *chromeSurface) Value(ctx context.Context, selector string) (string, error) {
	cctx, cancel := context.WithTimeout(s.chrome.tabCtx, s.chrome.timeout())
	defer cancel()
	var v string
	if err := chromedp.Run(cctx, chromedp.Value(selector, &v, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read value of %s: %w", selector, err)
	}
	return v, nil
}
