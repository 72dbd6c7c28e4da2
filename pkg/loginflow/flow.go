// Package loginflow drives a browser through the Telegram Web login flow.
//
// A Flow owns no goroutines and holds no locks; it is re-entered from the
// job registry at its suspension points (waiting for OTP, waiting for 2FA).
package loginflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/seralabs/telepilot/pkg/browser"
	"github.com/seralabs/telepilot/pkg/sessionstore"
	"github.com/seralabs/telepilot/pkg/telemetry"
)

// TelegramWebURL is the entry page of the target application.
const TelegramWebURL = "https://web.telegram.org/a/"

const (
	loginFormTimeout     = 10 * time.Second
	otpFieldTimeout      = 30 * time.Second
	inputTimeout         = 5 * time.Second
	submitButtonTimeout  = 2 * time.Second
	verifySuccessTimeout = 5 * time.Second
	verifyFailureTimeout = 2 * time.Second
	twoFactorProbe       = 3 * time.Second
)

// Flow is the login state machine for one job. It is bound to exactly one
// Browser, one session store handle, and one tracer.
type Flow struct {
	browser  browser.Browser
	sessions *sessionstore.Store
	tracer   *telemetry.Tracer
	log      *zap.Logger
}

func New(b browser.Browser, sessions *sessionstore.Store, tracer *telemetry.Tracer, log *zap.Logger) *Flow {
	if log == nil {
		log = zap.NewNop()
	}
	return &Flow{browser: b, sessions: sessions, tracer: tracer, log: log}
}

// TrySavedSession attempts to restore a previously saved session for the
// phone number and verify it still works. Returns false (never an error)
// when the session is absent, stale, or fails to load; callers fall through
// to the fresh login path.
func (f *Flow) TrySavedSession(ctx context.Context, phone string) bool {
	rec, err := f.sessions.Load(phone)
	if err != nil {
		f.log.Warn("Failed to load saved session", zap.String("phone", phone), zap.Error(err))
		return false
	}
	if rec == nil || len(rec.StorageState) == 0 {
		return false
	}

	var state browser.State
	if err := json.Unmarshal(rec.StorageState, &state); err != nil {
		f.log.Warn("Saved session is corrupt", zap.String("phone", phone), zap.Error(err))
		return false
	}

	if err := f.browser.LoadState(ctx, &state); err != nil {
		f.log.Warn("Failed to restore saved session", zap.String("phone", phone), zap.Error(err))
		return false
	}
	if err := f.browser.Navigate(ctx, TelegramWebURL); err != nil {
		f.log.Warn("Navigation failed during session reuse", zap.Error(err))
		return false
	}

	if !f.VerifyLoggedIn(ctx) {
		f.log.Warn("Saved session appears to be expired", zap.String("phone", phone))
		return false
	}

	f.tracer.LogOperation("login", "saved_session_reuse", telemetry.StatusCompleted,
		map[string]any{"phone": phone})
	return true
}

// StartFresh runs the fresh-login path up to (and including) the OTP entry
// surface becoming ready. It stops there: OTP submission happens in a later
// EnterOTP call.
func (f *Flow) StartFresh(ctx context.Context, phone string) error {
	f.tracer.LogOperation("login", "login_with_phone", telemetry.StatusStarted,
		map[string]any{"phone": phone})

	if err := f.browser.Navigate(ctx, TelegramWebURL); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}

	surface := f.browser.Surface()
	if _, err := surface.WaitAny(ctx, loginFormTimeout, loginFormSelectors...); err != nil {
		return fmt.Errorf("login form not ready: %w", err)
	}

	if err := f.enterPhone(ctx, phone); err != nil {
		return err
	}

	if _, err := surface.WaitAny(ctx, otpFieldTimeout, otpInputSelectors...); err != nil {
		return fmt.Errorf("OTP input not ready: %w", err)
	}
	f.log.Info("OTP input ready", zap.String("phone", phone))
	return nil
}

func (f *Flow) enterPhone(ctx context.Context, phone string) error {
	surface := f.browser.Surface()

	sel, err := surface.WaitAny(ctx, inputTimeout, phoneInputSelectors...)
	if err != nil {
		return fmt.Errorf("phone input not found: %w", err)
	}
	if err := surface.Fill(ctx, sel, phone); err != nil {
		return fmt.Errorf("enter phone: %w", err)
	}
	if err := f.submit(ctx, sel); err != nil {
		return fmt.Errorf("submit phone: %w", err)
	}
	f.log.Info("Phone number submitted", zap.String("phone", phone))
	return nil
}

// EnterOTP types the OTP into the code field and submits it.
func (f *Flow) EnterOTP(ctx context.Context, code string) error {
	surface := f.browser.Surface()

	sel, err := surface.WaitAny(ctx, inputTimeout, otpInputSelectors...)
	if err != nil {
		return fmt.Errorf("OTP input not found: %w", err)
	}
	if err := surface.Fill(ctx, sel, code); err != nil {
		return fmt.Errorf("enter OTP: %w", err)
	}
	if err := f.submit(ctx, sel); err != nil {
		return fmt.Errorf("submit OTP: %w", err)
	}
	f.tracer.LogOperation("login", "otp_submitted", telemetry.StatusCompleted, nil)
	return nil
}

// TwoFactorPending reports whether a 2FA password prompt is now present.
func (f *Flow) TwoFactorPending(ctx context.Context) bool {
	_, err := f.browser.Surface().WaitAny(ctx, twoFactorProbe, twoFactorSelectors...)
	return err == nil
}

// Handle2FA enters the cloud password and submits it. Returns whether the
// browser ended up logged in. A missing password prompt counts as success
// (2FA was not actually required).
func (f *Flow) Handle2FA(ctx context.Context, password string) (bool, error) {
	surface := f.browser.Surface()

	sel, err := surface.WaitAny(ctx, inputTimeout, twoFactorSelectors...)
	if err != nil {
		f.log.Info("No 2FA password field present")
		return true, nil
	}
	if err := surface.Fill(ctx, sel, password); err != nil {
		return false, fmt.Errorf("enter 2FA password: %w", err)
	}
	if err := f.submit(ctx, sel); err != nil {
		return false, fmt.Errorf("submit 2FA password: %w", err)
	}

	ok := f.VerifyLoggedIn(ctx)
	if ok {
		f.tracer.LogOperation("login", "2fa_completed", telemetry.StatusCompleted, nil)
	}
	return ok, nil
}

// VerifyLoggedIn checks page indicators to decide whether the browser is
// authenticated. When a logged-in indicator appears it returns true; when
// only login-form indicators appear it returns false; when neither appears
// it returns true. The lenient default is deliberate: selector drift on an
// ambiguous page should not fail an otherwise working login.
func (f *Flow) VerifyLoggedIn(ctx context.Context) bool {
	surface := f.browser.Surface()

	if _, err := surface.WaitAny(ctx, verifySuccessTimeout, loggedInSelectors...); err == nil {
		return true
	}
	if _, err := surface.WaitAny(ctx, verifyFailureTimeout, loginFormSelectors...); err == nil {
		f.log.Warn("Still on login page, login may have failed")
		return false
	}
	f.log.Warn("Could not determine login status, assuming success")
	return true
}

// PersistSession captures the browser's authentication state and saves it
// for the phone number, overwriting any previous record.
func (f *Flow) PersistSession(ctx context.Context, phone string) error {
	state, err := f.browser.State(ctx)
	if err != nil {
		return fmt.Errorf("capture session state: %w", err)
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}
	meta := map[string]any{"saved_at": time.Now().UTC().Format(time.RFC3339)}
	if err := f.sessions.Save(phone, raw, meta); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// submit clicks a submit button when one is present, falling back to
// pressing Enter in the given input.
func (f *Flow) submit(ctx context.Context, inputSel string) error {
	surface := f.browser.Surface()
	if sel, err := surface.WaitAny(ctx, submitButtonTimeout, submitButtonSelectors...); err == nil {
		return surface.Click(ctx, sel)
	}
	return surface.Press(ctx, inputSel, "Enter")
}
