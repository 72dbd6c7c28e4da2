package loginflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seralabs/telepilot/pkg/browser/browsertest"
	"github.com/seralabs/telepilot/pkg/sessionstore"
	"github.com/seralabs/telepilot/pkg/telemetry"
)

func newTestFlow(t *testing.T, fake *browsertest.Fake) (*Flow, *sessionstore.Store) {
	t.Helper()
	sessions := sessionstore.NewStore(t.TempDir())
	tracer := telemetry.NewTracer(t.TempDir(), "flow-test")
	return New(fake, sessions, tracer, zap.NewNop()), sessions
}

func TestStartFresh_ReachesOTPField(t *testing.T) {
	fake := browsertest.New(browsertest.Config{})
	flow, _ := newTestFlow(t, fake)
	ctx := context.Background()

	require.NoError(t, fake.Launch(ctx))
	require.NoError(t, flow.StartFresh(ctx, "+15551234567"))

	assert.Equal(t, browsertest.ScreenOTP, fake.Screen())
	assert.Equal(t, "+15551234567", fake.FilledPhone())
}

func TestEnterOTP_NoTwoFactorLandsOnHome(t *testing.T) {
	fake := browsertest.New(browsertest.Config{})
	flow, _ := newTestFlow(t, fake)
	ctx := context.Background()

	require.NoError(t, fake.Launch(ctx))
	require.NoError(t, flow.StartFresh(ctx, "+15551234567"))
	require.NoError(t, flow.EnterOTP(ctx, "12345"))

	assert.False(t, flow.TwoFactorPending(ctx))
	assert.True(t, flow.VerifyLoggedIn(ctx))
}

func TestEnterOTP_TwoFactorRequired(t *testing.T) {
	fake := browsertest.New(browsertest.Config{TwoFactor: true, Password: "hunter2"})
	flow, _ := newTestFlow(t, fake)
	ctx := context.Background()

	require.NoError(t, fake.Launch(ctx))
	require.NoError(t, flow.StartFresh(ctx, "+15551234567"))
	require.NoError(t, flow.EnterOTP(ctx, "12345"))

	require.True(t, flow.TwoFactorPending(ctx))

	ok, err := flow.Handle2FA(ctx, "hunter2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, browsertest.ScreenHome, fake.Screen())
}

func TestHandle2FA_WrongPasswordFailsVerification(t *testing.T) {
	fake := browsertest.New(browsertest.Config{TwoFactor: true, Password: "hunter2"})
	flow, _ := newTestFlow(t, fake)
	ctx := context.Background()

	require.NoError(t, fake.Launch(ctx))
	require.NoError(t, flow.StartFresh(ctx, "+15551234567"))
	require.NoError(t, flow.EnterOTP(ctx, "12345"))

	ok, err := flow.Handle2FA(ctx, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTrySavedSession(t *testing.T) {
	ctx := context.Background()

	t.Run("absent session", func(t *testing.T) {
		fake := browsertest.New(browsertest.Config{SavedStateValid: true})
		flow, _ := newTestFlow(t, fake)

		require.NoError(t, fake.Launch(ctx))
		assert.False(t, flow.TrySavedSession(ctx, "+15551234567"))
	})

	t.Run("valid session verifies", func(t *testing.T) {
		fake := browsertest.New(browsertest.Config{SavedStateValid: true})
		flow, sessions := newTestFlow(t, fake)
		require.NoError(t, sessions.Save("+15551234567", browsertest.StateJSON(), nil))

		require.NoError(t, fake.Launch(ctx))
		assert.True(t, flow.TrySavedSession(ctx, "+15551234567"))
		assert.Equal(t, browsertest.ScreenHome, fake.Screen())
	})

	t.Run("stale session falls through", func(t *testing.T) {
		fake := browsertest.New(browsertest.Config{SavedStateValid: false})
		flow, sessions := newTestFlow(t, fake)
		require.NoError(t, sessions.Save("+15551234567", browsertest.StateJSON(), nil))

		require.NoError(t, fake.Launch(ctx))
		assert.False(t, flow.TrySavedSession(ctx, "+15551234567"))
	})
}

func TestVerifyLoggedIn_AmbiguousPageAssumesSuccess(t *testing.T) {
	fake := browsertest.New(browsertest.Config{})
	flow, _ := newTestFlow(t, fake)
	ctx := context.Background()

	require.NoError(t, fake.Launch(ctx))
	fake.SetScreen(browsertest.ScreenBlank)

	// Neither logged-in nor login-form indicators: the lenient default
	// treats the page as authenticated.
	assert.True(t, flow.VerifyLoggedIn(ctx))
}

func TestVerifyLoggedIn_LoginFormMeansFailure(t *testing.T) {
	fake := browsertest.New(browsertest.Config{})
	flow, _ := newTestFlow(t, fake)
	ctx := context.Background()

	require.NoError(t, fake.Launch(ctx))
	require.NoError(t, fake.Navigate(ctx, TelegramWebURL))

	assert.False(t, flow.VerifyLoggedIn(ctx))
}

func TestPersistSession(t *testing.T) {
	fake := browsertest.New(browsertest.Config{})
	flow, sessions := newTestFlow(t, fake)
	ctx := context.Background()

	require.NoError(t, fake.Launch(ctx))
	require.NoError(t, flow.PersistSession(ctx, "+15551234567"))

	rec, err := sessions.Load("+15551234567")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.NotEmpty(t, rec.StorageState)
	assert.Contains(t, rec.Metadata, "saved_at")
}
