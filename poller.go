package clubauth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/robfig/cron/v3"
)

// PollerPhase is the poller's state: Idle when a role is assigned (or nothing
// is pending), Polling while the role set is empty and the timer is active.
type PollerPhase string

const (
	PollerIdle    PollerPhase = "idle"
	PollerPolling PollerPhase = "polling"
)

// Scheduler runs fn at a fixed cadence until stopped. The default is backed
// by cron; tests inject a manual one.
type Scheduler interface {
	Start(fn func()) error
	Stop()
}

type cronScheduler struct {
	cron  *cron.Cron
	every time.Duration
}

func newCronScheduler(every time.Duration) *cronScheduler {
	return &cronScheduler{cron: cron.New(), every: every}
}

func (s *cronScheduler) Start(fn func()) error {
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.every), fn); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *cronScheduler) Stop() {
	s.cron.Stop()
}

// ApprovalPoller re-checks server-side role assignment for users who have
// registered but not yet been granted a role. Timer ticks are silent; the
// explicit CheckNow surfaces failures. The timer is always torn down on
// resolution, Stop, and logout, so no background poll outlives the screen
// that started it.
type ApprovalPoller struct {
	mu        sync.Mutex
	phase     PollerPhase
	scheduler Scheduler

	state      *SessionState
	fetcher    ProfileFetcher
	interval   time.Duration
	newSched   func(time.Duration) Scheduler
	logger     Logger
	sink       ActivitySink
	onResolved func(Resolution)

	ctx         context.Context
	unsubscribe func()
}

// PollerOption customizes an ApprovalPoller.
type PollerOption func(*ApprovalPoller)

// WithPollInterval sets the tick interval (default 30s).
func WithPollInterval(d time.Duration) PollerOption {
	return func(p *ApprovalPoller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithPollScheduler injects a custom scheduler (useful for tests).
func WithPollScheduler(s Scheduler) PollerOption {
	return func(p *ApprovalPoller) {
		if s != nil {
			p.newSched = func(time.Duration) Scheduler { return s }
		}
	}
}

// WithPollerLogger overrides the default logger.
func WithPollerLogger(logger Logger) PollerOption {
	return func(p *ApprovalPoller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPollerActivitySink sets the ActivitySink for approval events.
func WithPollerActivitySink(sink ActivitySink) PollerOption {
	return func(p *ApprovalPoller) {
		p.sink = normalizeActivitySink(sink)
	}
}

// WithResolvedHandler registers fn to run once a role is granted and
// resolved. It fires outside the poller's lock.
func WithResolvedHandler(fn func(Resolution)) PollerOption {
	return func(p *ApprovalPoller) {
		p.onResolved = fn
	}
}

// NewApprovalPoller builds a poller over the session state and a profile
// fetcher (normally the Client).
func NewApprovalPoller(state *SessionState, fetcher ProfileFetcher, opts ...PollerOption) *ApprovalPoller {
	p := &ApprovalPoller{
		phase:    PollerIdle,
		state:    state,
		fetcher:  fetcher,
		interval: 30 * time.Second,
		newSched: func(d time.Duration) Scheduler { return newCronScheduler(d) },
		logger:   defLogger{},
		sink:     noopActivitySink{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start begins polling when the session holds no role yet; with roles already
// assigned it stays idle. A logout while polling tears the timer down.
func (p *ApprovalPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.phase == PollerPolling {
		return nil
	}
	if len(p.state.Roles()) > 0 {
		return nil
	}

	sched := p.newSched(p.interval)
	if err := sched.Start(func() { p.tick() }); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to start approval poll timer")
	}

	p.ctx = ctx
	p.scheduler = sched
	p.phase = PollerPolling
	p.unsubscribe = p.state.Subscribe(func(snap SessionSnapshot) {
		if snap.Status == LoginStatusLoggedOut {
			p.Stop()
		}
	})
	p.logger.Debug("approval poller started, interval %s", p.interval)
	return nil
}

// Stop cancels the timer. Safe to call any number of times, in any phase.
func (p *ApprovalPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// Phase returns the current poller phase.
func (p *ApprovalPoller) Phase() PollerPhase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// CheckNow performs the same re-check as a timer tick, but surfaces failure:
// a fetch error propagates, and a still-empty role set reports
// ErrNoRoleAssigned so the screen can notify the user.
func (p *ApprovalPoller) CheckNow(ctx context.Context) error {
	profile, err := p.fetcher.FetchProfile(ctx)
	if err != nil {
		return err
	}
	if len(profile.Roles) == 0 {
		return ErrNoRoleAssigned
	}
	p.resolve(ctx, profile)
	return nil
}

// tick is the silent recurring re-check: failures and still-empty role sets
// are logged, never surfaced.
func (p *ApprovalPoller) tick() {
	ctx := p.pollContext()
	profile, err := p.fetcher.FetchProfile(ctx)
	if err != nil {
		p.logger.Debug("approval poll fetch failed: %v", err)
		return
	}
	if len(profile.Roles) == 0 {
		return
	}
	p.resolve(ctx, profile)
}

// resolve handles the first non-empty role set: cancel the timer exactly
// once, resolve the active role, and notify.
func (p *ApprovalPoller) resolve(ctx context.Context, profile *Profile) {
	p.mu.Lock()
	wasPolling := p.phase == PollerPolling
	p.stopLocked()
	p.mu.Unlock()

	res, err := ResolveAssignments(profile.Roles, profile.PreferredRole)
	if err != nil {
		p.logger.Warn("approval granted but role resolution failed: %v", err)
		return
	}

	p.state.ApplyProfile(ctx, profile)
	p.state.SetCurrentRole(ctx, res.Role)

	if wasPolling {
		p.emit(ctx, ActivityEventApprovalGranted, map[string]any{"role": string(res.Role)})
	}
	if p.onResolved != nil {
		p.onResolved(res)
	}
}

func (p *ApprovalPoller) stopLocked() {
	if p.phase != PollerPolling {
		return
	}
	p.phase = PollerIdle
	if p.scheduler != nil {
		p.scheduler.Stop()
		p.scheduler = nil
	}
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
}

func (p *ApprovalPoller) pollContext() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx != nil {
		return p.ctx
	}
	return context.Background()
}

func (p *ApprovalPoller) emit(ctx context.Context, eventType ActivityEventType, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if d := p.state.Details(); d != nil {
		event.UserID = d.Username
	}
	if err := normalizeActivitySink(p.sink).Record(ctx, event); err != nil {
		p.logger.Warn("activity sink record error: %v", err)
	}
}
