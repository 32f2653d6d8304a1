package scheduler

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"aimawatch-backend/lib/timezone"
	"aimawatch-backend/services/userstore"

	"github.com/mazen160/go-random"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("services/scheduler")

// All triggers evaluate in Lisbon time regardless of host timezone.
const (
	hourlySpec  = "0 * * * *"
	morningSpec = "0 10 * * *"
	eveningSpec = "0 19 * * *"
)

// Lister provides the users eligible for periodic checks.
// userstore.Service is the production implementation.
type Lister interface {
	ListPeriodicEnabled(ctx context.Context) ([]userstore.User, error)
}

// Runner executes one check for one user. checker.Service is the
// production implementation.
type Runner interface {
	RunForUser(ctx context.Context, user userstore.User, scheduled bool)
}

type Options struct {
	// SweepWindow is how much of the hour the hourly sweep spreads
	// users across. Defaults to 50 minutes, leaving a buffer before
	// the next trigger.
	SweepWindow time.Duration
	// JitterRange bounds the per-user offset jitter. Defaults to 120s.
	JitterRange time.Duration
	// NotifyPause separates users during the fixed daily runs.
	// Defaults to 1s.
	NotifyPause time.Duration
}

// Service owns the periodic check triggers. Start and Stop are
// idempotent; the zero state is stopped.
type Service struct {
	store  Lister
	runner Runner
	opts   Options

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

func NewService(store Lister, runner Runner, options Options) *Service {
	if options.SweepWindow == 0 {
		options.SweepWindow = time.Minute * 50
	}
	if options.JitterRange == 0 {
		options.JitterRange = time.Second * 120
	}
	if options.NotifyPause == 0 {
		options.NotifyPause = time.Second
	}
	return &Service{
		store:  store,
		runner: runner,
		opts:   options,
	}
}

func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	c := cron.New(
		cron.WithLogger(cronLogger{}),
		cron.WithLocation(timezone.Location),
	)
	add := func(spec string, job func(context.Context)) {
		_, err := c.AddFunc(spec, func() { job(ctx) })
		if err != nil {
			// the specs are compile-time constants
			panic(err)
		}
	}
	add(hourlySpec, s.hourlySweep)
	add(morningSpec, s.dailyRun)
	add(eveningSpec, s.dailyRun)
	c.Start()

	s.cron = c
	s.running = true
	slog.Info("status check scheduler started")
}

// Stop cancels the triggers and any in-flight sweep, then waits for
// running jobs to wind down.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}

	s.cancel()
	<-s.cron.Stop().Done()

	s.cron = nil
	s.cancel = nil
	s.running = false
	slog.Info("status check scheduler stopped")
}

// hourlySweep checks every eligible user once, paced across the sweep
// window so the portal never sees a burst. Checks run with
// scheduled=false: only status changes notify.
func (s *Service) hourlySweep(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "hourlySweep")
	defer span.End()

	users, err := s.store.ListPeriodicEnabled(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list users for hourly sweep", "err", err)
		return
	}
	if len(users) == 0 {
		slog.InfoContext(ctx, "no users with periodic checks enabled")
		return
	}
	slog.InfoContext(ctx, "starting hourly checks", "users", len(users))

	users = shuffledCopy(users)
	offsets := planSweep(len(users), s.opts.SweepWindow, s.opts.JitterRange)

	start := time.Now()
	for i, user := range users {
		if !sleepUntil(ctx, start.Add(offsets[i])) {
			slog.InfoContext(ctx, "hourly sweep cancelled", "remaining", len(users)-i)
			return
		}
		s.runOne(ctx, user, false)
	}
	slog.InfoContext(ctx, "hourly checks completed")
}

// dailyRun notifies every eligible user of their current status, with a
// short pause between users to respect the notification channel's rate.
func (s *Service) dailyRun(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "dailyRun")
	defer span.End()

	users, err := s.store.ListPeriodicEnabled(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list users for daily run", "err", err)
		return
	}
	slog.InfoContext(ctx, "sending scheduled notifications", "users", len(users))

	for i, user := range users {
		if i > 0 {
			if !sleepUntil(ctx, time.Now().Add(s.opts.NotifyPause)) {
				slog.InfoContext(ctx, "daily run cancelled", "remaining", len(users)-i)
				return
			}
		}
		s.runOne(ctx, user, true)
	}
	slog.InfoContext(ctx, "scheduled notifications completed")
}

// runOne shields the batch from a single user's failure.
func (s *Service) runOne(ctx context.Context, user userstore.User, scheduled bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic during scheduled check", "chat_id", user.ChatID, "panic", r)
		}
	}()
	s.runner.RunForUser(ctx, user, scheduled)
}

func shuffledCopy(users []userstore.User) []userstore.User {
	out := make([]userstore.User, len(users))
	copy(out, users)
	rand.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// planSweep returns each position's start offset from the beginning of
// the sweep. Offsets are absolute, not inter-user gaps, so jitter
// cannot accumulate and the last user still lands inside the window.
func planSweep(n int, window, jitterRange time.Duration) []time.Duration {
	spacing := window / time.Duration(n)
	offsets := make([]time.Duration, n)
	for i := range offsets {
		if i == 0 {
			// the first user runs immediately
			continue
		}
		offset := time.Duration(i)*spacing + drawJitter(jitterRange)
		if offset < 0 {
			offset = 0
		}
		offsets[i] = offset
	}
	return offsets
}

func drawJitter(jitterRange time.Duration) time.Duration {
	bound := int(jitterRange / time.Millisecond)
	if bound <= 0 {
		return 0
	}
	ms, err := random.IntRange(-bound, bound+1)
	if err != nil {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// sleepUntil waits for a deadline but gives up as soon as ctx is
// cancelled. Reports whether the deadline was reached.
func sleepUntil(ctx context.Context, target time.Time) bool {
	wait := time.Until(target)
	if wait <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
