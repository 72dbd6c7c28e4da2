// Package browser abstracts the automated browser driven by the login flow.
//
// The orchestration core depends only on the Browser and Surface interfaces;
// the chromedp-backed implementations live in this package and a scripted
// in-memory implementation lives in browsertest.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrElementNotFound is returned by Surface waits when no candidate
// selector became visible within the bound.
var ErrElementNotFound = errors.New("element not found")

// Cookie is one browser cookie captured in a State snapshot.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"http_only,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"same_site,omitempty"`
}

// OriginState captures localStorage for one origin.
type OriginState struct {
	Origin       string            `json:"origin"`
	LocalStorage map[string]string `json:"local_storage"`
}

// State is a serializable snapshot of browser authentication state,
// sufficient to reconstruct a logged-in context.
type State struct {
	Cookies []Cookie      `json:"cookies"`
	Origins []OriginState `json:"origins,omitempty"`
}

// Surface is the element-level interaction handle of a live browser.
// All waits are bounded; callers pass the bound explicitly.
type Surface interface {
	// WaitAny blocks until one of the selectors is visible and returns it,
	// or returns ErrElementNotFound once the timeout elapses.
	WaitAny(ctx context.Context, timeout time.Duration, selectors ...string) (string, error)
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	Press(ctx context.Context, selector, key string) error
	Value(ctx context.Context, selector string) (string, error)
}

// Browser is an exclusively-owned automation browser. Exactly one live
// instance exists per login job and it is never shared across jobs.
type Browser interface {
	Launch(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
	// LoadState primes the browser with a previously saved State. Must be
	// called after Launch and before Navigate.
	LoadState(ctx context.Context, state *State) error
	// State captures the current authentication state.
	State(ctx context.Context) (*State, error)
	Close(ctx context.Context) error
	Surface() Surface
}

// Options configures a browser instance at creation time.
type Options struct {
	Headless bool
	// Proxy is an optional proxy URL (e.g. socks5://host:port).
	Proxy string
	// Timeout bounds individual page interactions. Zero means DefaultTimeout.
	Timeout time.Duration
}

// DefaultTimeout bounds a single page interaction when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Factory constructs a Browser for one job.
type Factory func(opts Options) Browser
