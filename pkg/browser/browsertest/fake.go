// Package browsertest provides a scripted in-memory Browser for tests.
//
// The fake models the login UI as a handful of screens and advances between
// them in response to Fill/Click/Press, so flow and registry tests can run
// the real state machine without a live browser.
package browsertest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/seralabs/telepilot/pkg/browser"
)

// Screens the fake can present.
const (
	ScreenLogin     = "login"
	ScreenOTP       = "otp"
	ScreenTwoFactor = "2fa"
	ScreenHome      = "home"
	// ScreenBlank shows no known indicators at all; used to exercise the
	// lenient verification default.
	ScreenBlank = "blank"
)

// Config scripts the fake's behavior for one scenario.
type Config struct {
	// TwoFactor makes OTP submission land on the 2FA password screen.
	TwoFactor bool
	// Password is the accepted 2FA password. Empty accepts any non-empty input.
	Password string
	// RejectOTP keeps the fake on the OTP screen after submission, so the
	// subsequent verification fails.
	RejectOTP bool
	// SavedStateValid makes a LoadState+Navigate land directly on the home
	// screen, modeling a still-valid saved session.
	SavedStateValid bool

	LaunchErr   error
	NavigateErr error
	StateErr    error
	CloseErr    error
}

// Fake implements browser.Browser and browser.Surface.
type Fake struct {
	mu  sync.Mutex
	cfg Config

	screen      string
	launched    bool
	closes      int
	stateLoaded bool

	phone    string
	otp      string
	password string
}

var _ browser.Browser = (*Fake)(nil)
var _ browser.Surface = (*Fake)(nil)

func New(cfg Config) *Fake {
	return &Fake{cfg: cfg}
}

func (f *Fake) Launch(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cfg.LaunchErr != nil {
		return f.cfg.LaunchErr
	}
	f.launched = true
	return nil
}

func (f *Fake) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cfg.NavigateErr != nil {
		return f.cfg.NavigateErr
	}
	if f.stateLoaded && f.cfg.SavedStateValid {
		f.screen = ScreenHome
	} else {
		f.screen = ScreenLogin
	}
	return nil
}

func (f *Fake) LoadState(ctx context.Context, state *browser.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stateLoaded = state != nil
	return nil
}

func (f *Fake) State(ctx context.Context) (*browser.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cfg.StateErr != nil {
		return nil, f.cfg.StateErr
	}
	return &browser.State{
		Cookies: []browser.Cookie{{Name: "auth", Value: "fake-session", Domain: "web.telegram.org"}},
	}, nil
}

func (f *Fake) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return f.cfg.CloseErr
}

func (f *Fake) Surface() browser.Surface {
	return f
}

// visible reports whether a selector is present on the current screen. The
// selector strings mirror the ones the login flow uses.
func (f *Fake) visible(sel string) bool {
	switch f.screen {
	case ScreenLogin:
		switch sel {
		case `input[type="tel"]`, `input[placeholder*="phone" i]`, `button[type="submit"]`:
			return true
		}
	case ScreenOTP:
		switch sel {
		case `input[inputmode="numeric"]`, `input[name*="code" i]`, `button[type="submit"]`:
			return true
		}
	case ScreenTwoFactor:
		switch sel {
		case `input[type="password"]`, `button[type="submit"]`:
			return true
		}
	case ScreenHome:
		switch sel {
		case `.chat-list`, `input[placeholder*="Search" i]`, `.sidebar`:
			return true
		}
	}
	return false
}

func (f *Fake) WaitAny(ctx context.Context, timeout time.Duration, selectors ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sel := range selectors {
		if f.visible(sel) {
			return sel, nil
		}
	}
	return "", browser.ErrElementNotFound
}

func (f *Fake) Click(ctx context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.visible(selector) {
		return browser.ErrElementNotFound
	}
	if selector == `button[type="submit"]` {
		f.advance()
	}
	return nil
}

func (f *Fake) Fill(ctx context.Context, selector, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.visible(selector) {
		return browser.ErrElementNotFound
	}
	switch f.screen {
	case ScreenLogin:
		f.phone = value
	case ScreenOTP:
		f.otp = value
	case ScreenTwoFactor:
		f.password = value
	}
	return nil
}

func (f *Fake) Press(ctx context.Context, selector, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if key == "Enter" {
		f.advance()
	}
	return nil
}

func (f *Fake) Value(ctx context.Context, selector string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.screen {
	case ScreenLogin:
		return f.phone, nil
	case ScreenOTP:
		return f.otp, nil
	case ScreenTwoFactor:
		return f.password, nil
	}
	return "", nil
}

// advance moves to the next screen after a form submission. Callers hold f.mu.
func (f *Fake) advance() {
	switch f.screen {
	case ScreenLogin:
		if f.phone != "" {
			f.screen = ScreenOTP
		}
	case ScreenOTP:
		if f.cfg.RejectOTP {
			return
		}
		if f.cfg.TwoFactor {
			f.screen = ScreenTwoFactor
		} else {
			f.screen = ScreenHome
		}
	case ScreenTwoFactor:
		if f.password != "" && (f.cfg.Password == "" || f.password == f.cfg.Password) {
			f.screen = ScreenHome
		}
	}
}

// Screen returns the current screen.
func (f *Fake) Screen() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.screen
}

// SetScreen forces a screen, for tests that start mid-flow.
func (f *Fake) SetScreen(screen string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.screen = screen
}

// Closes returns how many times Close was called.
func (f *Fake) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// FilledPhone returns the phone number typed into the login form.
func (f *Fake) FilledPhone() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phone
}

// StateJSON is a convenience for seeding session stores in tests.
func StateJSON() json.RawMessage {
	return json.RawMessage(`{"cookies":[{"name":"auth","value":"seeded","domain":"web.telegram.org"}]}`)
}
