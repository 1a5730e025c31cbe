package scheduler

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/McdWebs/WA-bot-sub000/internal/domain"
	"github.com/McdWebs/WA-bot-sub000/internal/store"
	"github.com/McdWebs/WA-bot-sub000/internal/zmanim"
)

type sent struct {
	phone, text, template string
}

type fakeSender struct {
	mu          sync.Mutex
	msgs        []sent
	failText    bool
	failTpl     bool
	panicOnUser string
}

func (f *fakeSender) Send(_ context.Context, phone, text string) error {
	if phone == f.panicOnUser {
		panic("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failText {
		return errors.New("twilio down")
	}
	f.msgs = append(f.msgs, sent{phone: phone, text: text})
	return nil
}

func (f *fakeSender) SendTemplated(_ context.Context, phone, tpl string, _ map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTpl {
		return errors.New("template rejected")
	}
	f.msgs = append(f.msgs, sent{phone: phone, template: tpl})
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

type fakeResolver struct {
	calls int32
	res   zmanim.Resolution
}

func (f *fakeResolver) Resolve(context.Context, string, string, time.Time) zmanim.Resolution {
	atomic.AddInt32(&f.calls, 1)
	return f.res
}

func jerusalem(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Jerusalem")
	if err != nil {
		t.Fatalf("load tz: %v", err)
	}
	return loc
}

func sunsetAt(clock string) zmanim.Resolution {
	return zmanim.Resolution{
		Location: "Jerusalem",
		Times: domain.EventTimes{
			Date:      "2025-06-01",
			TZ:        "Asia/Jerusalem",
			Sunrise:   domain.MustParseClock("05:34"),
			Sunset:    domain.MustParseClock(clock),
			Nightfall: domain.MustParseClock("20:19"),
			Source:    domain.SourceLive,
		},
	}
}

type fixture struct {
	repo     *store.SQLRepo
	user     *domain.User
	reminder *domain.ReminderSetting
}

func newFixture(t *testing.T, typ domain.ReminderType, offset int) fixture {
	t.Helper()
	ctx := context.Background()
	repo, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "sched.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	u := &domain.User{Phone: "+972500000001", Status: domain.StatusActive, Timezone: "Asia/Jerusalem", Location: "Jerusalem"}
	if err := repo.CreateUser(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	r := &domain.ReminderSetting{UserID: u.ID, Type: typ, Enabled: true, OffsetMinutes: offset}
	if err := repo.UpsertReminderSetting(ctx, r); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	return fixture{repo: repo, user: u, reminder: r}
}

func TestTick_DeliversOncePerOccurrence(t *testing.T) {
	fx := newFixture(t, domain.ReminderTefillin, -30)
	sender := &fakeSender{}
	now := time.Date(2025, time.June, 1, 17, 30, 0, 0, jerusalem(t))

	s := New(fx.repo, &fakeResolver{res: sunsetAt("18:00")}, sender, zap.NewNop(), Options{
		Now: func() time.Time { return now },
	})

	s.tick(context.Background())
	if sender.count() != 1 {
		t.Fatalf("want 1 delivery, got %d", sender.count())
	}
	if msg := sender.msgs[0]; msg.phone != fx.user.Phone || msg.text == "" {
		t.Fatalf("unexpected message %+v", msg)
	}

	list, _ := fx.repo.ReminderSettings(context.Background(), fx.user.ID)
	if list[0].LastSentAt == nil || !list[0].LastSentAt.Equal(now) {
		t.Fatalf("last_sent_at not persisted: %v", list[0].LastSentAt)
	}

	// Next tick is still inside the tolerance window.
	now = now.Add(time.Minute)
	s.tick(context.Background())
	if sender.count() != 1 {
		t.Fatalf("reminder fired twice for one occurrence: %d", sender.count())
	}
}

func TestTick_MidnightTargetFiresOnce(t *testing.T) {
	fx := newFixture(t, domain.ReminderTefillin, -30)
	sender := &fakeSender{}
	now := time.Date(2025, time.June, 1, 23, 59, 0, 0, jerusalem(t))

	s := New(fx.repo, &fakeResolver{res: sunsetAt("00:30")}, sender, zap.NewNop(), Options{
		Now: func() time.Time { return now },
	})
	for i := 0; i < 3; i++ {
		s.tick(context.Background())
		now = now.Add(time.Minute)
	}
	if sender.count() != 1 {
		t.Fatalf("target 00:00 across 23:59, 00:00, 00:01: want 1 delivery, got %d", sender.count())
	}
}

func TestTick_MidnightClaimSharedAcrossInstances(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	fx := newFixture(t, domain.ReminderTefillin, -30)
	rows, _ := fx.repo.EnabledRemindersWithUsers(context.Background())
	snapshot := snapshotRepo{Repo: fx.repo, rows: rows}
	sender := &fakeSender{}

	// One instance ticks before midnight, the other right after.
	before := time.Date(2025, time.June, 1, 23, 59, 0, 0, jerusalem(t))
	after := before.Add(2 * time.Minute)
	for _, at := range []time.Time{before, after} {
		at := at
		New(snapshot, &fakeResolver{res: sunsetAt("00:30")}, sender, zap.NewNop(), Options{
			Now:     func() time.Time { return at },
			Claimer: NewRedisClaimer(rdb, 0),
		}).tick(context.Background())
	}
	if sender.count() != 1 {
		t.Fatalf("claim must cover both sides of midnight, got %d deliveries", sender.count())
	}
	if !mr.Exists(claimKey(fx.reminder.ID, "2025-06-02")) {
		t.Fatalf("claim should be keyed by the target date")
	}
}

func TestTick_OutsideToleranceDoesNotFire(t *testing.T) {
	fx := newFixture(t, domain.ReminderTefillin, -30)
	sender := &fakeSender{}
	now := time.Date(2025, time.June, 1, 17, 32, 0, 0, jerusalem(t))

	s := New(fx.repo, &fakeResolver{res: sunsetAt("18:00")}, sender, zap.NewNop(), Options{
		Now: func() time.Time { return now },
	})
	s.tick(context.Background())
	if sender.count() != 0 {
		t.Fatalf("2 minutes off target must not fire, got %d", sender.count())
	}
}

func TestTick_FiresAgainNextDay(t *testing.T) {
	fx := newFixture(t, domain.ReminderTefillin, 0)
	sender := &fakeSender{}
	now := time.Date(2025, time.June, 1, 18, 0, 0, 0, jerusalem(t))
	s := New(fx.repo, &fakeResolver{res: sunsetAt("18:00")}, sender, zap.NewNop(), Options{
		Now: func() time.Time { return now },
	})

	s.tick(context.Background())
	now = now.AddDate(0, 0, 1)
	s.tick(context.Background())
	if sender.count() != 2 {
		t.Fatalf("want one delivery per day, got %d", sender.count())
	}
}

func TestTick_TemplateFallsBackToText(t *testing.T) {
	fx := newFixture(t, domain.ReminderTefillin, 0)
	sender := &fakeSender{failTpl: true}
	now := time.Date(2025, time.June, 1, 18, 0, 0, 0, jerusalem(t))

	s := New(fx.repo, &fakeResolver{res: sunsetAt("18:00")}, sender, zap.NewNop(), Options{
		Now:       func() time.Time { return now },
		Templates: map[domain.ReminderType]string{domain.ReminderTefillin: "HX123"},
	})
	s.tick(context.Background())
	if sender.count() != 1 || sender.msgs[0].template != "" || sender.msgs[0].text == "" {
		t.Fatalf("expected plain-text fallback, got %+v", sender.msgs)
	}
}

func TestTick_FailedSendIsNotRecorded(t *testing.T) {
	fx := newFixture(t, domain.ReminderTefillin, 0)
	sender := &fakeSender{failText: true}
	now := time.Date(2025, time.June, 1, 18, 0, 0, 0, jerusalem(t))

	s := New(fx.repo, &fakeResolver{res: sunsetAt("18:00")}, sender, zap.NewNop(), Options{
		Now: func() time.Time { return now },
	})
	s.tick(context.Background())

	list, _ := fx.repo.ReminderSettings(context.Background(), fx.user.ID)
	if list[0].LastSentAt != nil {
		t.Fatalf("failed delivery must not mark the occurrence as sent")
	}
}

func TestTick_WeeklySkipsResolver(t *testing.T) {
	fx := newFixture(t, domain.ReminderShabbat, 0)
	sender := &fakeSender{}
	resolver := &fakeResolver{}
	friday := time.Date(2025, time.June, 6, 10, 0, 0, 0, jerusalem(t))

	s := New(fx.repo, resolver, sender, zap.NewNop(), Options{
		Now:       func() time.Time { return friday },
		Evaluator: domain.Evaluator{WeeklyDay: time.Friday, WeeklyHour: 10},
	})
	s.tick(context.Background())
	if sender.count() != 1 {
		t.Fatalf("weekly reminder should fire on Friday 10:00, got %d", sender.count())
	}
	if atomic.LoadInt32(&resolver.calls) != 0 {
		t.Fatalf("weekly-only users need no event times")
	}
}

func TestTick_PersistsCorrectedLocation(t *testing.T) {
	fx := newFixture(t, domain.ReminderTefillin, -30)
	res := sunsetAt("18:00")
	res.Corrected = true
	res.Location = "Tel Aviv"
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, jerusalem(t))

	s := New(fx.repo, &fakeResolver{res: res}, &fakeSender{}, zap.NewNop(), Options{
		Now: func() time.Time { return now },
	})
	s.tick(context.Background())

	u, _ := fx.repo.GetUserByPhone(context.Background(), fx.user.Phone)
	if u.Location != "Tel Aviv" {
		t.Fatalf("corrected location not persisted: %q", u.Location)
	}
}

type flakyRepo struct {
	Repo
	err error
}

func (f flakyRepo) EnabledRemindersWithUsers(context.Context) ([]domain.ScheduledReminder, error) {
	return nil, f.err
}

type skipRecorder struct {
	fakeRecorder
	reasons []string
}

func (r *skipRecorder) RecordTickSkipped(reason string) { r.reasons = append(r.reasons, reason) }

type fakeRecorder struct{}

func (fakeRecorder) RecordTick(time.Duration)    {}
func (fakeRecorder) RecordTickSkipped(string)    {}
func (fakeRecorder) RecordSent(string)           {}
func (fakeRecorder) RecordSendFailure(string)    {}
func (fakeRecorder) RecordResolverSource(string) {}
func (fakeRecorder) SetDueUsers(int)             {}

func TestTick_NetworkErrorSkipsTick(t *testing.T) {
	rec := &skipRecorder{}
	repo := flakyRepo{err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}}
	s := New(repo, &fakeResolver{}, &fakeSender{}, zap.NewNop(), Options{Metrics: rec})

	s.tick(context.Background())
	if len(rec.reasons) != 1 || rec.reasons[0] != "store-unreachable" {
		t.Fatalf("unexpected skip reasons %v", rec.reasons)
	}
}

func TestTick_PanicIsIsolatedPerUser(t *testing.T) {
	fx := newFixture(t, domain.ReminderTefillin, 0)
	ctx := context.Background()
	other := &domain.User{Phone: "+972500000002", Status: domain.StatusActive, Timezone: "Asia/Jerusalem", Location: "Jerusalem"}
	if err := fx.repo.CreateUser(ctx, other); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := fx.repo.UpsertReminderSetting(ctx, &domain.ReminderSetting{UserID: other.ID, Type: domain.ReminderTefillin, Enabled: true}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	sender := &fakeSender{panicOnUser: fx.user.Phone}
	now := time.Date(2025, time.June, 1, 18, 0, 0, 0, jerusalem(t))
	s := New(fx.repo, &fakeResolver{res: sunsetAt("18:00")}, sender, zap.NewNop(), Options{
		Now:     func() time.Time { return now },
		Workers: 1,
	})
	s.tick(ctx)
	if sender.count() != 1 || sender.msgs[0].phone != other.Phone {
		t.Fatalf("sibling user should still be served, got %+v", sender.msgs)
	}
}

func TestTick_RedisClaimBlocksSecondInstance(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	fx := newFixture(t, domain.ReminderTefillin, 0)
	now := time.Date(2025, time.June, 1, 18, 0, 0, 0, jerusalem(t))
	sender := &fakeSender{}
	opts := Options{Now: func() time.Time { return now }, Claimer: NewRedisClaimer(rdb, 0)}

	// Both instances load the reminder before either persists last_sent_at.
	rows, _ := fx.repo.EnabledRemindersWithUsers(context.Background())
	snapshot := snapshotRepo{Repo: fx.repo, rows: rows}

	New(snapshot, &fakeResolver{res: sunsetAt("18:00")}, sender, zap.NewNop(), opts).tick(context.Background())
	New(snapshot, &fakeResolver{res: sunsetAt("18:00")}, sender, zap.NewNop(), opts).tick(context.Background())
	if sender.count() != 1 {
		t.Fatalf("claim should allow exactly one delivery, got %d", sender.count())
	}
}

type snapshotRepo struct {
	Repo
	rows []domain.ScheduledReminder
}

func (s snapshotRepo) EnabledRemindersWithUsers(context.Context) ([]domain.ScheduledReminder, error) {
	return s.rows, nil
}

func TestRedisClaimer_ClaimRelease(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	c := NewRedisClaimer(rdb, time.Hour)
	ctx := context.Background()
	if ok, err := c.Claim(ctx, 7, "2025-06-01"); err != nil || !ok {
		t.Fatalf("first claim: %v %v", ok, err)
	}
	if ok, _ := c.Claim(ctx, 7, "2025-06-01"); ok {
		t.Fatalf("second claim must fail")
	}
	if ok, _ := c.Claim(ctx, 7, "2025-06-02"); !ok {
		t.Fatalf("another date is another occurrence")
	}
	if err := c.Release(ctx, 7, "2025-06-01"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := c.Claim(ctx, 7, "2025-06-01"); !ok {
		t.Fatalf("claim after release should succeed")
	}
	mr.FastForward(2 * time.Hour)
	if mr.Exists(claimKey(7, "2025-06-01")) {
		t.Fatalf("claim should expire")
	}
}

type countingRepo struct {
	Repo
	calls int32
}

func (c *countingRepo) EnabledRemindersWithUsers(context.Context) ([]domain.ScheduledReminder, error) {
	atomic.AddInt32(&c.calls, 1)
	return nil, nil
}

func TestStartStop(t *testing.T) {
	repo := &countingRepo{}
	s := New(repo, &fakeResolver{}, &fakeSender{}, zap.NewNop(), Options{Interval: 5 * time.Millisecond})

	s.Start(context.Background())
	s.Start(context.Background()) // no-op
	if !s.Running() {
		t.Fatalf("expected running")
	}

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&repo.calls) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("scheduler did not tick, calls=%d", atomic.LoadInt32(&repo.calls))
		}
		time.Sleep(time.Millisecond)
	}

	s.Stop()
	if s.Running() {
		t.Fatalf("expected stopped")
	}
	after := atomic.LoadInt32(&repo.calls)
	time.Sleep(30 * time.Millisecond)
	if atomic.LoadInt32(&repo.calls) != after {
		t.Fatalf("ticks continued after Stop")
	}
	s.Stop() // idempotent
}

func TestGroupByUser(t *testing.T) {
	rows := []domain.ScheduledReminder{
		{User: domain.User{ID: 1}, Reminder: domain.ReminderSetting{ID: 10}},
		{User: domain.User{ID: 1}, Reminder: domain.ReminderSetting{ID: 11}},
		{User: domain.User{ID: 2}, Reminder: domain.ReminderSetting{ID: 20}},
	}
	got := groupByUser(rows)
	if len(got) != 2 || len(got[0].reminders) != 2 || got[1].user.ID != 2 {
		t.Fatalf("unexpected grouping %+v", got)
	}
}
