// Package jobs holds the in-process registry of login jobs.
//
// Why jobs? Browser sessions are expensive, and login needs multiple client
// round-trips (start, submit OTP, optionally submit 2FA). The registry lets
// the stateless HTTP surface drive a stateful background task: a job is
// created with a live browser, suspends while waiting for codes, and is
// re-entered by later submit calls.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/seralabs/telepilot/pkg/browser"
	"github.com/seralabs/telepilot/pkg/loginflow"
	"github.com/seralabs/telepilot/pkg/phone"
	"github.com/seralabs/telepilot/pkg/sessionstore"
	"github.com/seralabs/telepilot/pkg/telemetry"
)

var (
	// ErrNotFound is returned when the referenced job does not exist.
	ErrNotFound = errors.New("job not found")
	// ErrInvalidState is returned when a submit call arrives while the job
	// is not in the required waiting state.
	ErrInvalidState = errors.New("job is not in the required state")
	// ErrRateLimited is returned when job creation exceeds the configured rate.
	ErrRateLimited = errors.New("login job creation rate exceeded")
)

// Options configures a Registry.
type Options struct {
	RunsDir    string
	ReportsDir string

	// CreateRate limits job creation (jobs per second). Zero disables the
	// limiter.
	CreateRate  rate.Limit
	CreateBurst int

	// IdleTimeout fails jobs stuck in a waiting state for longer than this
	// and releases their browsers. Zero keeps them indefinitely.
	IdleTimeout time.Duration
}

// job pairs the caller-visible snapshot with the runtime objects the job
// exclusively owns: one browser, one flow, one tracer.
type job struct {
	snap    LoginJob
	browser browser.Browser
	flow    *loginflow.Flow
	tracer  *telemetry.Tracer
}

// Registry is the single authoritative map from job id to login job. It is
// the only component that creates, looks up, or mutates jobs. One mutex
// guards the map and every job transition; browser I/O never runs under it.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*job

	newBrowser browser.Factory
	sessions   *sessionstore.Store
	opts       Options
	limiter    *rate.Limiter
	observer   Observer
	log        *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates a registry. The factory is invoked once per job; each
// job owns its browser exclusively.
func NewRegistry(factory browser.Factory, sessions *sessionstore.Store, opts Options, observer Observer, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}

	var limiter *rate.Limiter
	if opts.CreateRate > 0 {
		burst := opts.CreateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(opts.CreateRate, burst)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		jobs:       make(map[string]*job),
		newBrowser: factory,
		sessions:   sessions,
		opts:       opts,
		limiter:    limiter,
		observer:   observer,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
	}

	if opts.IdleTimeout > 0 {
		r.wg.Add(1)
		go r.runJanitor()
	}
	return r
}

// Close stops the janitor and waits for background drivers to settle. Jobs
// themselves are not persisted; they die with the process.
func (r *Registry) Close() {
	r.cancel()
	r.wg.Wait()
}

// Sessions returns the shared session store handle.
func (r *Registry) Sessions() *sessionstore.Store {
	return r.sessions
}

// CreateLoginJob registers a new login job and launches its background
// driver. It returns immediately; by the time the caller reads the snapshot
// the status may already have advanced.
func (r *Registry) CreateLoginJob(p CreateParams) (LoginJob, error) {
	number := phone.Normalize(p.Phone)
	if number == "" {
		return LoginJob{}, fmt.Errorf("phone is required")
	}
	if r.limiter != nil && !r.limiter.Allow() {
		return LoginJob{}, ErrRateLimited
	}

	runLabel := p.RunLabel
	if runLabel == "" {
		runLabel = fmt.Sprintf("login_%s_%s", phone.SafeKey(number), time.Now().UTC().Format("20060102_150405"))
	}

	tracer := telemetry.NewTracer(r.opts.RunsDir, runLabel)
	b := r.newBrowser(browser.Options{Headless: p.Headless, Proxy: p.Proxy})
	flow := loginflow.New(b, r.sessions, tracer, r.log)

	now := time.Now().UTC()
	j := &job{
		snap: LoginJob{
			ID:        uuid.New().String(),
			Status:    StatusQueued,
			Phone:     number,
			RunLabel:  runLabel,
			CreatedAt: now,
			UpdatedAt: now,
		},
		browser: b,
		flow:    flow,
		tracer:  tracer,
	}

	r.mu.Lock()
	r.jobs[j.snap.ID] = j
	r.mu.Unlock()
	r.observer.JobCreated()

	r.log.Info("Login job created",
		zap.String("job_id", j.snap.ID),
		zap.String("phone", number),
		zap.String("run_label", runLabel),
		zap.Bool("force", p.Force))

	r.wg.Add(1)
	go r.runLoginStart(j, p.Force)

	return j.snap, nil
}

// Get returns a snapshot of the job, or ErrNotFound.
func (r *Registry) Get(id string) (LoginJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return LoginJob{}, ErrNotFound
	}
	return j.snap, nil
}

// SubmitOTP resumes a job waiting for its OTP. Automation failures are
// absorbed into the job (status becomes failed); only ErrNotFound and
// ErrInvalidState surface as errors.
func (r *Registry) SubmitOTP(ctx context.Context, id, code string) (LoginJob, error) {
	j, err := r.beginTransition(id, StatusWaitingForOTP)
	if err != nil {
		return LoginJob{}, err
	}

	if err := j.flow.EnterOTP(ctx, code); err != nil {
		r.fail(j, err.Error())
		return r.snapshot(j), nil
	}

	if j.flow.TwoFactorPending(ctx) {
		r.setStatus(j, StatusWaitingFor2FA)
		return r.snapshot(j), nil
	}

	if err := r.finalize(ctx, j, false); err != nil {
		r.fail(j, err.Error())
	}
	return r.snapshot(j), nil
}

// SubmitTwoFactor resumes a job waiting for its 2FA password. A password
// the application does not accept fails the job.
func (r *Registry) SubmitTwoFactor(ctx context.Context, id, password string) (LoginJob, error) {
	j, err := r.beginTransition(id, StatusWaitingFor2FA)
	if err != nil {
		return LoginJob{}, err
	}

	ok, err := j.flow.Handle2FA(ctx, password)
	if err != nil {
		r.fail(j, err.Error())
		return r.snapshot(j), nil
	}
	if !ok {
		r.fail(j, "2FA verification failed")
		return r.snapshot(j), nil
	}

	if err := r.finalize(ctx, j, false); err != nil {
		r.fail(j, err.Error())
	}
	return r.snapshot(j), nil
}

// beginTransition atomically checks the required state and moves the job to
// running. A concurrent submit observes running and is rejected, so at most
// one in-flight transition exists per job.
func (r *Registry) beginTransition(id string, required Status) (*job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if j.snap.Status != required {
		return nil, fmt.Errorf("%w: job %s is %s, need %s", ErrInvalidState, id, j.snap.Status, required)
	}
	j.snap.Status = StatusRunning
	j.snap.UpdatedAt = time.Now().UTC()
	return j, nil
}

// runLoginStart is the background driver: it launches the browser, tries
// the saved session unless forced, and otherwise advances the fresh login
// to the OTP suspension point. Every failure path lands in fail; nothing
// escapes the goroutine.
func (r *Registry) runLoginStart(j *job, force bool) {
	defer r.wg.Done()
	defer func() {
		if p := recover(); p != nil {
			r.fail(j, fmt.Sprintf("login driver panic: %v", p))
		}
	}()

	ctx := r.ctx
	r.setStatus(j, StatusRunning)

	if err := j.browser.Launch(ctx); err != nil {
		r.fail(j, err.Error())
		return
	}
	r.observer.BrowserOpened()

	if !force && j.flow.TrySavedSession(ctx, j.snap.Phone) {
		if err := r.finalize(ctx, j, true); err != nil {
			r.fail(j, err.Error())
		}
		return
	}

	if err := j.flow.StartFresh(ctx, j.snap.Phone); err != nil {
		r.fail(j, err.Error())
		return
	}

	r.setStatus(j, StatusWaitingForOTP)
	r.log.Info("Job waiting for OTP", zap.String("job_id", j.snap.ID))
}

// finalize is the terminal success path: verify, persist the session, mark
// completed, emit the report, and release the browser.
func (r *Registry) finalize(ctx context.Context, j *job, usedSavedSession bool) error {
	if !j.flow.VerifyLoggedIn(ctx) {
		return fmt.Errorf("login verification failed")
	}
	if err := j.flow.PersistSession(ctx, j.snap.Phone); err != nil {
		return err
	}

	r.mu.Lock()
	j.snap.Status = StatusCompleted
	j.snap.Error = ""
	j.snap.UpdatedAt = time.Now().UTC()
	r.mu.Unlock()

	j.tracer.LogOperation("login", "login_with_phone", telemetry.StatusCompleted,
		map[string]any{"phone": j.snap.Phone, "used_saved_session": usedSavedSession})
	if err := j.tracer.Finish(); err != nil {
		r.log.Warn("Failed to persist run data", zap.String("job_id", j.snap.ID), zap.Error(err))
	}
	if _, err := telemetry.WriteReport(r.opts.ReportsDir, j.tracer.Snapshot()); err != nil {
		r.log.Warn("Failed to write run report", zap.String("job_id", j.snap.ID), zap.Error(err))
	}

	r.closeBrowser(j)
	r.observer.JobCompleted()

	r.log.Info("Login job completed",
		zap.String("job_id", j.snap.ID),
		zap.Bool("used_saved_session", usedSavedSession))
	return nil
}

// fail moves the job to its terminal failed state. Callers own the job's
// in-flight transition (driver goroutine or a claimed submit), so the write
// is unconditional.
func (r *Registry) fail(j *job, msg string) {
	r.mu.Lock()
	j.snap.Status = StatusFailed
	j.snap.Error = msg
	j.snap.UpdatedAt = time.Now().UTC()
	r.mu.Unlock()

	r.failCleanup(j, msg)
}

// failCleanup is best-effort: a close or report failure never masks the
// original error.
func (r *Registry) failCleanup(j *job, msg string) {
	j.tracer.LogError("login", "login_job", msg)
	if err := j.tracer.Finish(); err != nil {
		r.log.Warn("Failed to persist run data", zap.String("job_id", j.snap.ID), zap.Error(err))
	}
	if _, err := telemetry.WriteReport(r.opts.ReportsDir, j.tracer.Snapshot()); err != nil {
		r.log.Warn("Failed to write run report", zap.String("job_id", j.snap.ID), zap.Error(err))
	}

	r.closeBrowser(j)
	r.observer.JobFailed()

	r.log.Error("Login job failed",
		zap.String("job_id", j.snap.ID),
		zap.String("error", msg))
}

func (r *Registry) closeBrowser(j *job) {
	closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := j.browser.Close(closeCtx); err != nil {
		r.log.Warn("Browser close failed", zap.String("job_id", j.snap.ID), zap.Error(err))
	}
	r.observer.BrowserClosed()
}

func (r *Registry) setStatus(j *job, s Status) {
	r.mu.Lock()
	j.snap.Status = s
	j.snap.UpdatedAt = time.Now().UTC()
	r.mu.Unlock()
}

func (r *Registry) snapshot(j *job) LoginJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return j.snap
}

// runJanitor fails jobs that sat in a waiting state past IdleTimeout so
// their browsers are released. Without it a caller that stops polling
// holds a browser forever.
func (r *Registry) runJanitor() {
	defer r.wg.Done()

	interval := r.opts.IdleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.reapIdle()
		}
	}
}

func (r *Registry) reapIdle() {
	cutoff := time.Now().UTC().Add(-r.opts.IdleTimeout)
	msg := fmt.Sprintf("abandoned: no submission within %s", r.opts.IdleTimeout)

	r.mu.Lock()
	var candidates []*job
	for _, j := range r.jobs {
		waiting := j.snap.Status == StatusWaitingForOTP || j.snap.Status == StatusWaitingFor2FA
		if waiting && j.snap.UpdatedAt.Before(cutoff) {
			candidates = append(candidates, j)
		}
	}
	r.mu.Unlock()

	for _, j := range candidates {
		// Re-check under the lock: a submit may have claimed the job since
		// the scan. The janitor only fails jobs still waiting.
		r.mu.Lock()
		waiting := j.snap.Status == StatusWaitingForOTP || j.snap.Status == StatusWaitingFor2FA
		if !waiting || !j.snap.UpdatedAt.Before(cutoff) {
			r.mu.Unlock()
			continue
		}
		j.snap.Status = StatusFailed
		j.snap.Error = msg
		j.snap.UpdatedAt = time.Now().UTC()
		r.mu.Unlock()

		r.failCleanup(j, msg)
	}
}
