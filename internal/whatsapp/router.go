package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/McdWebs/WA-bot-sub000/internal/domain"
	"github.com/McdWebs/WA-bot-sub000/internal/reminders"
	"github.com/McdWebs/WA-bot-sub000/internal/session"
	"github.com/McdWebs/WA-bot-sub000/internal/store"
	"github.com/McdWebs/WA-bot-sub000/internal/zmanim"
)

// Messenger sends a text reply. Client implements this.
type Messenger interface {
	Send(ctx context.Context, phone, text string) error
}

// Locator checks that a location resolves to event times.
type Locator interface {
	Lookup(ctx context.Context, location, tz string, date time.Time) (domain.EventTimes, error)
}

// Repo is the part of store.Repo the router needs.
type Repo interface {
	GetUserByPhone(ctx context.Context, phone string) (*domain.User, error)
	CreateUser(ctx context.Context, u *domain.User) error
	UpdateUser(ctx context.Context, phone string, upd domain.UserUpdate) error
	ReminderSettings(ctx context.Context, userID int64) ([]domain.ReminderSetting, error)
	UpdateReminderSetting(ctx context.Context, id int64, upd domain.ReminderUpdate) error
}

// RouterOptions configure inbound handling.
type RouterOptions struct {
	DefaultTZ string
	// TestMode enables the "test HH:MM" command.
	TestMode bool
}

// Router turns inbound WhatsApp messages into conversation steps.
type Router struct {
	repo     Repo
	svc      *reminders.Service
	sessions session.Store
	locator  Locator
	out      Messenger
	log      *zap.Logger
	opts     RouterOptions
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*phoneLock
}

type phoneLock struct {
	mu   sync.Mutex
	refs int
}

// NewRouter creates a Router.
func NewRouter(repo Repo, svc *reminders.Service, sessions session.Store, locator Locator, out Messenger, log *zap.Logger, opts RouterOptions) *Router {
	if opts.DefaultTZ == "" {
		opts.DefaultTZ = "Asia/Jerusalem"
	}
	return &Router{
		repo:     repo,
		svc:      svc,
		sessions: sessions,
		locator:  locator,
		out:      out,
		log:      log,
		opts:     opts,
		now:      time.Now,
		locks:    make(map[string]*phoneLock),
	}
}

// lock serializes turns of one conversation.
func (r *Router) lock(phone string) func() {
	r.mu.Lock()
	l, ok := r.locks[phone]
	if !ok {
		l = &phoneLock{}
		r.locks[phone] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, phone)
		}
		r.mu.Unlock()
	}
}

func (r *Router) sendText(ctx context.Context, phone, text string) {
	if text == "" {
		return
	}
	if err := r.out.Send(ctx, phone, text); err != nil {
		r.log.Error("reply failed", zap.String("phone", phone), zap.Error(err))
	}
}

// HandleMessage processes one inbound message.
func (r *Router) HandleMessage(ctx context.Context, phone, text string) {
	unlock := r.lock(phone)
	defer unlock()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic while handling message", zap.String("phone", phone), zap.Any("panic", rec), zap.Stack("stack"))
			_ = r.sessions.Clear(ctx, phone)
			r.sendText(ctx, phone, errorText)
		}
	}()

	text = strings.TrimSpace(text)
	u, created, err := r.ensureUser(ctx, phone)
	if err != nil {
		r.log.Error("ensureUser failed", zap.String("phone", phone), zap.Error(err))
		r.sendText(ctx, phone, errorText)
		return
	}
	if created {
		r.sendText(ctx, phone, welcomeText)
		return
	}
	if u.Status == domain.StatusPending {
		r.handleRegistration(ctx, u, text)
		return
	}

	cmd, arg := splitCommand(text)
	if cmd == "menu" {
		_ = r.sessions.Clear(ctx, phone)
		r.sendText(ctx, phone, menuText)
		return
	}

	st, err := r.sessions.Get(ctx, phone)
	if err != nil {
		r.log.Error("load session failed", zap.String("phone", phone), zap.Error(err))
		r.sendText(ctx, phone, errorText)
		return
	}
	if st != nil {
		r.render(ctx, phone, r.dispatch(ctx, phone, st.Mode, text))
		return
	}

	switch cmd {
	case "reminders", "list":
		r.render(ctx, phone, r.svc.List(ctx, phone))
	case "add", "new":
		r.render(ctx, phone, r.svc.StartCreate(ctx, phone))
	case "status":
		r.handleStatus(ctx, u)
	case "pause":
		r.handleSetStatus(ctx, u, domain.StatusInactive, pausedText)
	case "resume":
		r.handleSetStatus(ctx, u, domain.StatusActive, resumedText)
	case "city":
		r.handleCity(ctx, u, arg)
	case "tz":
		r.handleTZ(ctx, u, arg)
	case "test":
		if !r.opts.TestMode {
			r.sendText(ctx, phone, menuText)
			return
		}
		r.handleTestTime(ctx, u, arg)
	default:
		r.sendText(ctx, phone, menuText)
	}
}

// dispatch routes a reply according to the conversation mode.
func (r *Router) dispatch(ctx context.Context, phone string, mode session.Mode, text string) reminders.Reply {
	switch mode {
	case session.ModeChoosing:
		return r.svc.Select(ctx, phone, text)
	case session.ModeActing:
		return r.svc.Act(ctx, phone, reminders.ParseAction(text))
	case session.ModeEditing, session.ModeChoosingOffset:
		return r.svc.SubmitOffset(ctx, phone, text)
	case session.ModeConfirmingDelete:
		return r.svc.ConfirmDelete(ctx, phone, text)
	case session.ModeChoosingType:
		return r.svc.ChooseType(ctx, phone, text)
	default:
		r.log.Warn("unknown conversation mode", zap.String("phone", phone), zap.Stringer("mode", mode))
		_ = r.sessions.Clear(ctx, phone)
		return reminders.Reply{Next: reminders.NextShowMenu}
	}
}

func (r *Router) render(ctx context.Context, phone string, rep reminders.Reply) {
	r.sendText(ctx, phone, rep.Text)
	switch rep.Next {
	case reminders.NextShowMenu:
		r.sendText(ctx, phone, menuText)
	case reminders.NextAskOffset:
		r.sendText(ctx, phone, reminders.OffsetPrompt(rep.Type))
	case reminders.NextNone:
	}
}

func splitCommand(text string) (string, string) {
	cmd, arg, _ := strings.Cut(text, " ")
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}

// ensureUser returns the sender's user, creating a pending one on first contact.
func (r *Router) ensureUser(ctx context.Context, phone string) (*domain.User, bool, error) {
	u, err := r.repo.GetUserByPhone(ctx, phone)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}
	u = &domain.User{
		Phone:    phone,
		Status:   domain.StatusPending,
		Timezone: r.opts.DefaultTZ,
	}
	if err := r.repo.CreateUser(ctx, u); err != nil {
		return nil, false, err
	}
	r.log.Info("user created", zap.Int64("user_id", u.ID))
	return u, true, nil
}

// locate validates a city and returns its display name and zone.
func (r *Router) locate(ctx context.Context, city, fallbackTZ string) (string, string, bool) {
	city = strings.Join(strings.Fields(city), " ")
	if city == "" {
		return "", "", false
	}
	if _, tz, ok := zmanim.LookupCity(city); ok {
		return titleCase(city), tz, true
	}
	if r.locator == nil {
		return "", "", false
	}
	if _, err := r.locator.Lookup(ctx, city, fallbackTZ, r.now()); err != nil {
		r.log.Info("city lookup failed", zap.String("city", city), zap.Error(err))
		return "", "", false
	}
	return city, fallbackTZ, true
}

func (r *Router) handleRegistration(ctx context.Context, u *domain.User, text string) {
	city, tz, ok := r.locate(ctx, text, u.Timezone)
	if !ok {
		r.sendText(ctx, u.Phone, unknownCityText)
		return
	}
	active := domain.StatusActive
	if err := r.repo.UpdateUser(ctx, u.Phone, domain.UserUpdate{Status: &active, Location: &city, Timezone: &tz}); err != nil {
		r.log.Error("registration failed", zap.String("phone", u.Phone), zap.Error(err))
		r.sendText(ctx, u.Phone, errorText)
		return
	}
	r.log.Info("user registered", zap.Int64("user_id", u.ID), zap.String("location", city), zap.String("tz", tz))
	r.sendText(ctx, u.Phone, fmt.Sprintf(registeredFmt, city, tz)+"\n\n"+menuText)
}

func (r *Router) handleCity(ctx context.Context, u *domain.User, arg string) {
	city, tz, ok := r.locate(ctx, arg, u.Timezone)
	if !ok {
		r.sendText(ctx, u.Phone, unknownCityText)
		return
	}
	if err := r.repo.UpdateUser(ctx, u.Phone, domain.UserUpdate{Location: &city, Timezone: &tz}); err != nil {
		r.log.Error("update city failed", zap.String("phone", u.Phone), zap.Error(err))
		r.sendText(ctx, u.Phone, errorText)
		return
	}
	r.sendText(ctx, u.Phone, fmt.Sprintf(registeredFmt, city, tz))
}

func (r *Router) handleTZ(ctx context.Context, u *domain.User, arg string) {
	tz, err := domain.ValidateTZ(arg)
	if err != nil {
		r.sendText(ctx, u.Phone, badTZText)
		return
	}
	if err := r.repo.UpdateUser(ctx, u.Phone, domain.UserUpdate{Timezone: &tz}); err != nil {
		r.log.Error("update tz failed", zap.String("phone", u.Phone), zap.Error(err))
		r.sendText(ctx, u.Phone, errorText)
		return
	}
	r.sendText(ctx, u.Phone, fmt.Sprintf(tzUpdatedFmt, tz))
}

func (r *Router) handleSetStatus(ctx context.Context, u *domain.User, status domain.UserStatus, reply string) {
	if err := r.repo.UpdateUser(ctx, u.Phone, domain.UserUpdate{Status: &status}); err != nil {
		r.log.Error("update status failed", zap.String("phone", u.Phone), zap.Error(err))
		r.sendText(ctx, u.Phone, errorText)
		return
	}
	r.sendText(ctx, u.Phone, reply)
}

func (r *Router) handleStatus(ctx context.Context, u *domain.User) {
	settings, err := r.repo.ReminderSettings(ctx, u.ID)
	if err != nil {
		r.log.Error("read settings failed", zap.String("phone", u.Phone), zap.Error(err))
		r.sendText(ctx, u.Phone, errorText)
		return
	}
	enabled := 0
	for _, s := range settings {
		if s.Enabled {
			enabled++
		}
	}
	state := "✅ Enabled"
	if u.Status != domain.StatusActive {
		state = "⏸ Paused"
	}
	location := u.Location
	if location == "" {
		location = "—"
	}
	r.sendText(ctx, u.Phone, statusTitle+"\n\n"+fmt.Sprintf(statusFmt, location, u.Timezone, state, enabled))
}

// handleTestTime sets or clears a fixed firing time on every enabled reminder.
func (r *Router) handleTestTime(ctx context.Context, u *domain.User, arg string) {
	var upd domain.ReminderUpdate
	format := testSetFmt
	switch strings.ToLower(arg) {
	case "off", "clear":
		upd.ClearTestTime = true
		format = testClearedFmt
	default:
		c, err := domain.ParseClock(arg)
		if err != nil {
			r.sendText(ctx, u.Phone, testUsageText)
			return
		}
		upd.TestTime = &c
	}

	settings, err := r.repo.ReminderSettings(ctx, u.ID)
	if err != nil {
		r.log.Error("read settings failed", zap.String("phone", u.Phone), zap.Error(err))
		r.sendText(ctx, u.Phone, errorText)
		return
	}
	n := 0
	for _, s := range settings {
		if !s.Enabled {
			continue
		}
		if err := r.repo.UpdateReminderSetting(ctx, s.ID, upd); err != nil {
			r.log.Error("set test time failed", zap.Int64("reminder_id", s.ID), zap.Error(err))
			continue
		}
		n++
	}
	if upd.ClearTestTime {
		r.sendText(ctx, u.Phone, fmt.Sprintf(format, n))
		return
	}
	r.sendText(ctx, u.Phone, fmt.Sprintf(format, upd.TestTime.String(), n))
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
