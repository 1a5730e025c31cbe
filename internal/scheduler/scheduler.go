package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/McdWebs/WA-bot-sub000/internal/domain"
	"github.com/McdWebs/WA-bot-sub000/internal/metrics"
	"github.com/McdWebs/WA-bot-sub000/internal/store"
	"github.com/McdWebs/WA-bot-sub000/internal/zmanim"
)

// Sender delivers a message to a phone number.
// whatsapp.Client implements this.
type Sender interface {
	Send(ctx context.Context, phone, text string) error
	SendTemplated(ctx context.Context, phone, templateID string, vars map[string]string) error
}

// Resolver yields event times for a user's location; it never fails.
type Resolver interface {
	Resolve(ctx context.Context, location, tz string, date time.Time) zmanim.Resolution
}

// Repo is the part of store.Repo the scheduler needs.
type Repo interface {
	EnabledRemindersWithUsers(ctx context.Context) ([]domain.ScheduledReminder, error)
	UpdateReminderSetting(ctx context.Context, id int64, upd domain.ReminderUpdate) error
	UpdateUser(ctx context.Context, phone string, upd domain.UserUpdate) error
}

// Options tune a Scheduler. Zero values get defaults.
type Options struct {
	Interval  time.Duration // default one minute
	Workers   int           // concurrent users per tick, default 8
	Evaluator domain.Evaluator
	// Templates maps a reminder type to a content template id.
	Templates map[domain.ReminderType]string
	Claimer   Claimer
	Metrics   metrics.Recorder
	Now       func() time.Time
}

// Scheduler periodically loads enabled reminders and delivers the due ones.
type Scheduler struct {
	repo     Repo
	resolver Resolver
	sender   Sender
	log      *zap.Logger
	opts     Options

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped Scheduler.
func New(repo Repo, resolver Resolver, sender Sender, log *zap.Logger, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.Claimer == nil {
		opts.Claimer = NopClaimer{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{repo: repo, resolver: resolver, sender: sender, log: log, opts: opts}
}

// Start runs the loop in the background until Stop or ctx is canceled.
// Calling Start on a running scheduler only logs a warning.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.log.Warn("scheduler already running")
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
}

// Stop cancels the loop and waits for the current tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// run ticks immediately, then re-arms the timer after each tick returns,
// so ticks never overlap.
func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	s.log.Info("scheduler started",
		zap.Duration("interval", s.opts.Interval),
		zap.Int("workers", s.opts.Workers),
		zap.Bool("test_mode", s.opts.Evaluator.TestMode),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopping")
			return
		case <-timer.C:
			s.tick(ctx)
			timer.Reset(s.opts.Interval)
		}
	}
}

type userBatch struct {
	user      domain.User
	reminders []domain.ReminderSetting
}

// groupByUser keeps the order of rows, which the store sorts by user id.
func groupByUser(rows []domain.ScheduledReminder) []userBatch {
	var (
		batches []userBatch
		index   = make(map[int64]int)
	)
	for _, row := range rows {
		i, ok := index[row.User.ID]
		if !ok {
			i = len(batches)
			index[row.User.ID] = i
			batches = append(batches, userBatch{user: row.User})
		}
		batches[i].reminders = append(batches[i].reminders, row.Reminder)
	}
	return batches
}

// tick performs one scheduling cycle.
func (s *Scheduler) tick(ctx context.Context) {
	start := time.Now()
	now := s.opts.Now()
	log := s.log.With(zap.String("tick", uuid.NewString()))

	rows, err := s.repo.EnabledRemindersWithUsers(ctx)
	if err != nil {
		if store.IsNetworkError(err) {
			log.Warn("store unreachable, skipping tick", zap.Error(err))
			s.opts.Metrics.RecordTickSkipped("store-unreachable")
			return
		}
		log.Error("load reminders failed", zap.Error(err))
		s.opts.Metrics.RecordTickSkipped("store-error")
		return
	}

	batches := groupByUser(rows)
	s.opts.Metrics.SetDueUsers(len(batches))

	sem := make(chan struct{}, s.opts.Workers)
	var wg sync.WaitGroup
loop:
	for _, b := range batches {
		select {
		case <-ctx.Done():
			break loop
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(b userBatch) {
			defer wg.Done()
			defer func() { <-sem }()
			s.processUser(ctx, log, b, now)
		}(b)
	}
	wg.Wait()

	s.opts.Metrics.RecordTick(time.Since(start))
	log.Debug("tick done", zap.Int("users", len(batches)), zap.Int("reminders", len(rows)), zap.Duration("took", time.Since(start)))
}

func (s *Scheduler) processUser(ctx context.Context, log *zap.Logger, b userBatch, now time.Time) {
	u := b.user
	log = log.With(zap.Int64("user_id", u.ID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while processing user", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	var ev domain.EventTimes
	if needsEvents(b.reminders) {
		res := s.resolver.Resolve(ctx, u.Location, u.Timezone, now)
		s.opts.Metrics.RecordResolverSource(res.Times.Source.String())
		if res.Corrected && res.Location != "" && res.Location != u.Location {
			loc := res.Location
			if err := s.repo.UpdateUser(ctx, u.Phone, domain.UserUpdate{Location: &loc}); err != nil {
				log.Warn("persist corrected location failed", zap.Error(err))
			} else {
				log.Info("user location corrected", zap.String("from", u.Location), zap.String("to", loc))
				u.Location = loc
			}
		}
		ev = res.Times
	}

	for _, r := range b.reminders {
		s.processReminder(ctx, log, u, r, ev, now)
	}
}

func needsEvents(rs []domain.ReminderSetting) bool {
	for _, r := range rs {
		if !r.Type.Weekly() {
			return true
		}
	}
	return false
}

func (s *Scheduler) processReminder(ctx context.Context, log *zap.Logger, u domain.User, r domain.ReminderSetting, ev domain.EventTimes, now time.Time) {
	log = log.With(zap.Int64("reminder_id", r.ID), zap.String("type", string(r.Type)))
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("panic while processing reminder", zap.Any("panic", rec), zap.Stack("stack"))
		}
	}()

	if !s.opts.Evaluator.IsDue(r, u, ev, now) {
		return
	}
	occurrence := s.opts.Evaluator.OccurrenceKey(r, u, ev, now)
	if r.LastSentAt != nil && s.opts.Evaluator.OccurrenceKey(r, u, ev, *r.LastSentAt) == occurrence {
		log.Debug("occurrence already sent", zap.String("occurrence", occurrence))
		return
	}

	claimed, err := s.opts.Claimer.Claim(ctx, r.ID, occurrence)
	switch {
	case err != nil:
		log.Warn("claim failed, delivering anyway", zap.Error(err))
	case !claimed:
		log.Debug("occurrence already claimed", zap.String("occurrence", occurrence))
		return
	}

	if err := s.deliver(ctx, log, u, r, ev, now); err != nil {
		s.opts.Metrics.RecordSendFailure(string(r.Type))
		log.Error("send failed", zap.Error(err))
		if claimed {
			if err := s.opts.Claimer.Release(ctx, r.ID, occurrence); err != nil {
				log.Warn("release claim failed", zap.Error(err))
			}
		}
		return
	}
	s.opts.Metrics.RecordSent(string(r.Type))
	log.Info("reminder sent")

	sentAt := now.UTC()
	if err := s.repo.UpdateReminderSetting(ctx, r.ID, domain.ReminderUpdate{LastSentAt: &sentAt}); err != nil {
		log.Error("persist last_sent_at failed", zap.Error(err))
	}
}

// deliver tries the configured template first and falls back to plain text.
func (s *Scheduler) deliver(ctx context.Context, log *zap.Logger, u domain.User, r domain.ReminderSetting, ev domain.EventTimes, now time.Time) error {
	event, hasEvent := eventForUser(r, u, ev, now)
	if tpl, ok := s.opts.Templates[r.Type]; ok && tpl != "" {
		err := s.sender.SendTemplated(ctx, u.Phone, tpl, templateVars(r.Type, event, hasEvent))
		if err == nil {
			return nil
		}
		log.Warn("templated send failed, falling back to text", zap.Error(err))
	}
	return s.sender.Send(ctx, u.Phone, reminderText(r.Type, event, hasEvent, r.OffsetMinutes))
}

// eventForUser returns the anchor event clock in the user's zone.
func eventForUser(r domain.ReminderSetting, u domain.User, ev domain.EventTimes, now time.Time) (domain.Clock, bool) {
	kind, ok := r.Type.Event()
	if !ok {
		return 0, false
	}
	at, ok := ev.At(kind)
	if !ok {
		return 0, false
	}
	if ev.TZ == "" || u.Timezone == "" || ev.TZ == u.Timezone {
		return at, true
	}
	conv, err := domain.ConvertTimezone(at, ev.TZ, u.Timezone, now)
	if err != nil {
		return at, true
	}
	return conv, true
}
