// Package reminders implements the reminder management conversation:
// list, select, act, confirm or edit.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/McdWebs/WA-bot-sub000/internal/domain"
	"github.com/McdWebs/WA-bot-sub000/internal/session"
)

// Next tells the caller what to render after a reply.
type Next int

const (
	NextNone Next = iota
	NextShowMenu
	NextAskOffset
)

// Reply is the outcome of one conversation turn.
type Reply struct {
	Text string
	Next Next
	// Type is set with NextAskOffset so the caller can render the prompt.
	Type domain.ReminderType
}

// Repo is the part of store.Repo the service needs.
type Repo interface {
	GetUserByPhone(ctx context.Context, phone string) (*domain.User, error)
	ReminderSettings(ctx context.Context, userID int64) ([]domain.ReminderSetting, error)
	UpsertReminderSetting(ctx context.Context, s *domain.ReminderSetting) error
	UpdateReminderSetting(ctx context.Context, id int64, upd domain.ReminderUpdate) error
	DeleteReminderSetting(ctx context.Context, id int64) error
}

// Options configure how weekly reminders are described.
type Options struct {
	WeeklyDay  time.Weekday
	WeeklyHour int
}

// Service drives the reminder management conversation for one phone at a time.
type Service struct {
	repo     Repo
	sessions session.Store
	log      *zap.Logger
	opts     Options
}

func New(repo Repo, sessions session.Store, log *zap.Logger, opts Options) *Service {
	return &Service{repo: repo, sessions: sessions, log: log, opts: opts}
}

var errNotOwned = errors.New("reminder not owned by caller")

// fail resets the conversation and returns the apology.
func (s *Service) fail(ctx context.Context, phone, op string, err error) Reply {
	s.log.Error("reminder conversation failed", zap.String("op", op), zap.String("phone", phone), zap.Error(err))
	s.discard(ctx, phone)
	return Reply{Text: textApology}
}

// discard clears the conversation when the reply does not depend on it.
func (s *Service) discard(ctx context.Context, phone string) {
	if err := s.sessions.Clear(ctx, phone); err != nil {
		s.log.Warn("clear session failed", zap.String("phone", phone), zap.Error(err))
	}
}

func (s *Service) reset(ctx context.Context, phone string) error {
	return s.sessions.Clear(ctx, phone)
}

// owned returns the caller's setting with the given id.
func (s *Service) owned(ctx context.Context, phone string, id int64) (*domain.User, domain.ReminderSetting, error) {
	u, err := s.repo.GetUserByPhone(ctx, phone)
	if err != nil {
		return nil, domain.ReminderSetting{}, fmt.Errorf("get user: %w", err)
	}
	settings, err := s.repo.ReminderSettings(ctx, u.ID)
	if err != nil {
		return nil, domain.ReminderSetting{}, fmt.Errorf("reminder settings: %w", err)
	}
	for _, r := range settings {
		if r.ID == id {
			return u, r, nil
		}
	}
	return u, domain.ReminderSetting{}, errNotOwned
}

func enabledOnly(rs []domain.ReminderSetting) []domain.ReminderSetting {
	out := rs[:0:0]
	for _, r := range rs {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

// List shows the caller's enabled reminders and enters choosing mode.
func (s *Service) List(ctx context.Context, phone string) Reply {
	u, err := s.repo.GetUserByPhone(ctx, phone)
	if err != nil {
		return s.fail(ctx, phone, "list", err)
	}
	all, err := s.repo.ReminderSettings(ctx, u.ID)
	if err != nil {
		return s.fail(ctx, phone, "list", err)
	}
	active := enabledOnly(all)
	if len(active) == 0 {
		if err := s.reset(ctx, phone); err != nil {
			return s.fail(ctx, phone, "list", err)
		}
		return Reply{Text: textNoReminders}
	}

	selection := make(map[int]int64, len(active))
	var b strings.Builder
	b.WriteString("📋 Your reminders:\n")
	for i, r := range active {
		selection[i+1] = r.ID
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, r.Type.Title(), describeSchedule(r, s.opts.WeeklyDay, s.opts.WeeklyHour))
	}
	b.WriteString("\nReply with a number to manage a reminder, or \"cancel\".")

	if err := s.sessions.Set(ctx, phone, session.State{Mode: session.ModeChoosing, Selection: selection}); err != nil {
		return s.fail(ctx, phone, "list", err)
	}
	return Reply{Text: b.String()}
}

func isCancel(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "cancel", "back", "exit":
		return true
	}
	return false
}

// leadingInt parses "2", "2.", "2) tefillin".
func leadingInt(input string) (int, bool) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimRight(fields[0], ".)"))
	return n, err == nil
}

// Select resolves a list number and shows the reminder with its actions.
func (s *Service) Select(ctx context.Context, phone, input string) Reply {
	ok, err := session.IsInMode(ctx, s.sessions, phone, session.ModeChoosing)
	if err != nil {
		return s.fail(ctx, phone, "select", err)
	}
	if !ok {
		return Reply{Text: textListFirst}
	}
	if isCancel(input) {
		if err := s.reset(ctx, phone); err != nil {
			return s.fail(ctx, phone, "select", err)
		}
		return Reply{Next: NextShowMenu}
	}
	idx, ok := leadingInt(input)
	if !ok {
		return Reply{Text: textPickNumber}
	}
	id, err := session.ResolveSelection(ctx, s.sessions, phone, idx)
	if errors.Is(err, session.ErrNoSelection) {
		return Reply{Text: textOutOfRange}
	}
	if err != nil {
		return s.fail(ctx, phone, "select", err)
	}

	_, r, err := s.owned(ctx, phone, id)
	if errors.Is(err, errNotOwned) {
		if err := s.reset(ctx, phone); err != nil {
			return s.fail(ctx, phone, "select", err)
		}
		return Reply{Text: textGone}
	}
	if err != nil {
		return s.fail(ctx, phone, "select", err)
	}

	if err := s.sessions.Set(ctx, phone, session.State{Mode: session.ModeActing, ReminderID: r.ID}); err != nil {
		return s.fail(ctx, phone, "select", err)
	}
	text := fmt.Sprintf("%s\n⏰ %s\n\n%s",
		r.Type.Title(), describeSchedule(r, s.opts.WeeklyDay, s.opts.WeeklyHour), textPickAction)
	return Reply{Text: text}
}

// Action is what the caller wants to do with a selected reminder.
type Action int

const (
	ActionUnknown Action = iota
	ActionEdit
	ActionDelete
	ActionCancel
)

// ParseAction accepts the menu number or the action word.
func ParseAction(input string) Action {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "edit", "change":
		return ActionEdit
	case "2", "delete", "remove":
		return ActionDelete
	case "3", "cancel", "back":
		return ActionCancel
	default:
		return ActionUnknown
	}
}

// Act applies an action to the selected reminder.
func (s *Service) Act(ctx context.Context, phone string, action Action) Reply {
	st, err := s.sessions.Get(ctx, phone)
	if err != nil {
		return s.fail(ctx, phone, "act", err)
	}
	if st == nil || st.Mode != session.ModeActing {
		return Reply{Text: textListFirst}
	}

	switch action {
	case ActionCancel:
		if err := s.reset(ctx, phone); err != nil {
			return s.fail(ctx, phone, "act", err)
		}
		return Reply{Next: NextShowMenu}
	case ActionDelete:
		if err := s.sessions.Set(ctx, phone, session.State{Mode: session.ModeConfirmingDelete, ReminderID: st.ReminderID}); err != nil {
			return s.fail(ctx, phone, "act", err)
		}
		return Reply{Text: textConfirmDelete}
	case ActionEdit:
		_, r, err := s.owned(ctx, phone, st.ReminderID)
		if errors.Is(err, errNotOwned) {
			s.discard(ctx, phone)
			return Reply{Text: textGone}
		}
		if err != nil {
			return s.fail(ctx, phone, "act", err)
		}
		if r.Type.Weekly() {
			s.discard(ctx, phone)
			return Reply{Text: fixedTimeText(r, s.opts.WeeklyDay, s.opts.WeeklyHour), Next: NextShowMenu}
		}
		if err := s.sessions.Set(ctx, phone, session.State{Mode: session.ModeEditing, ReminderID: st.ReminderID}); err != nil {
			return s.fail(ctx, phone, "act", err)
		}
		return Reply{Next: NextAskOffset, Type: r.Type}
	case ActionUnknown:
		return Reply{Text: textPickAction}
	default:
		return Reply{Text: textPickAction}
	}
}

// ConfirmDelete handles the yes/no answer in confirming-delete mode.
func (s *Service) ConfirmDelete(ctx context.Context, phone, input string) Reply {
	st, err := s.sessions.Get(ctx, phone)
	if err != nil {
		return s.fail(ctx, phone, "confirm-delete", err)
	}
	if st == nil || st.Mode != session.ModeConfirmingDelete {
		return Reply{Text: textListFirst}
	}
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "yes", "y", "1":
		return s.Delete(ctx, phone, st.ReminderID)
	case "no", "n", "2", "cancel":
		if err := s.reset(ctx, phone); err != nil {
			return s.fail(ctx, phone, "confirm-delete", err)
		}
		return Reply{Text: textDeleteKept, Next: NextShowMenu}
	default:
		return Reply{Text: textYesOrNo}
	}
}

// Delete removes a reminder the caller owns and verifies it is gone.
func (s *Service) Delete(ctx context.Context, phone string, id int64) Reply {
	u, _, err := s.owned(ctx, phone, id)
	if errors.Is(err, errNotOwned) {
		s.discard(ctx, phone)
		return Reply{Text: textNotOwned}
	}
	if err != nil {
		return s.fail(ctx, phone, "delete", err)
	}

	if err := s.repo.DeleteReminderSetting(ctx, id); err != nil {
		return s.fail(ctx, phone, "delete", err)
	}
	after, err := s.repo.ReminderSettings(ctx, u.ID)
	if err != nil {
		return s.fail(ctx, phone, "delete", err)
	}
	if err := s.reset(ctx, phone); err != nil {
		return s.fail(ctx, phone, "delete", err)
	}
	for _, r := range after {
		if r.ID == id {
			s.log.Error("delete did not take effect", zap.String("phone", phone), zap.Int64("reminder_id", id))
			return Reply{Text: textDeleteFailed}
		}
	}
	s.log.Info("reminder deleted", zap.Int64("user_id", u.ID), zap.Int64("reminder_id", id))
	return Reply{Text: textDeleted}
}

// UpdateOffset changes only the offset of a reminder the caller owns.
func (s *Service) UpdateOffset(ctx context.Context, phone string, id int64, minutes int) Reply {
	_, r, err := s.owned(ctx, phone, id)
	if errors.Is(err, errNotOwned) {
		s.discard(ctx, phone)
		return Reply{Text: textNotOwned}
	}
	if err != nil {
		return s.fail(ctx, phone, "update-offset", err)
	}
	if r.Type.Weekly() {
		s.discard(ctx, phone)
		return Reply{Text: fixedTimeText(r, s.opts.WeeklyDay, s.opts.WeeklyHour), Next: NextShowMenu}
	}
	if err := s.repo.UpdateReminderSetting(ctx, id, domain.ReminderUpdate{OffsetMinutes: &minutes}); err != nil {
		return s.fail(ctx, phone, "update-offset", err)
	}
	if err := s.reset(ctx, phone); err != nil {
		return s.fail(ctx, phone, "update-offset", err)
	}
	r.OffsetMinutes = minutes
	return Reply{Text: fmt.Sprintf("✅ %s: now %s.", r.Type.Title(), describeSchedule(r, s.opts.WeeklyDay, s.opts.WeeklyHour))}
}

// SubmitOffset handles a reply to the offset prompt, either for an edit
// or for a reminder being created.
func (s *Service) SubmitOffset(ctx context.Context, phone, input string) Reply {
	st, err := s.sessions.Get(ctx, phone)
	if err != nil {
		return s.fail(ctx, phone, "submit-offset", err)
	}
	if st == nil || (st.Mode != session.ModeEditing && st.Mode != session.ModeChoosingOffset) {
		return Reply{Text: textListFirst}
	}
	if isCancel(input) {
		if err := s.reset(ctx, phone); err != nil {
			return s.fail(ctx, phone, "submit-offset", err)
		}
		return Reply{Next: NextShowMenu}
	}
	minutes, err := domain.ParseOffset(input)
	if err != nil {
		return Reply{Text: textBadOffset}
	}

	if st.Mode == session.ModeEditing {
		return s.UpdateOffset(ctx, phone, st.ReminderID, minutes)
	}
	return s.create(ctx, phone, st.PendingType, minutes)
}

// StartCreate offers the reminder types to add.
func (s *Service) StartCreate(ctx context.Context, phone string) Reply {
	if err := s.sessions.Set(ctx, phone, session.State{Mode: session.ModeChoosingType}); err != nil {
		return s.fail(ctx, phone, "start-create", err)
	}
	return Reply{Text: typeMenu()}
}

// ChooseType picks the type of the reminder being created.
func (s *Service) ChooseType(ctx context.Context, phone, input string) Reply {
	ok, err := session.IsInMode(ctx, s.sessions, phone, session.ModeChoosingType)
	if err != nil {
		return s.fail(ctx, phone, "choose-type", err)
	}
	if !ok {
		return Reply{Text: textListFirst}
	}
	if isCancel(input) {
		if err := s.reset(ctx, phone); err != nil {
			return s.fail(ctx, phone, "choose-type", err)
		}
		return Reply{Next: NextShowMenu}
	}

	var t domain.ReminderType
	if n, ok := leadingInt(input); ok {
		if n < 1 || n > len(domain.ReminderTypes) {
			return Reply{Text: textBadType}
		}
		t = domain.ReminderTypes[n-1]
	} else if t, err = domain.ParseReminderType(input); err != nil {
		return Reply{Text: textBadType}
	}

	if t.Weekly() {
		return s.create(ctx, phone, t, 0)
	}
	if err := s.sessions.Set(ctx, phone, session.State{Mode: session.ModeChoosingOffset, PendingType: t}); err != nil {
		return s.fail(ctx, phone, "choose-type", err)
	}
	return Reply{Next: NextAskOffset, Type: t}
}

func (s *Service) create(ctx context.Context, phone string, t domain.ReminderType, minutes int) Reply {
	if _, err := domain.ParseReminderType(string(t)); err != nil {
		return s.fail(ctx, phone, "create", err)
	}
	u, err := s.repo.GetUserByPhone(ctx, phone)
	if err != nil {
		return s.fail(ctx, phone, "create", err)
	}
	r := &domain.ReminderSetting{UserID: u.ID, Type: t, Enabled: true, OffsetMinutes: minutes}
	if err := s.repo.UpsertReminderSetting(ctx, r); err != nil {
		return s.fail(ctx, phone, "create", err)
	}
	if err := s.reset(ctx, phone); err != nil {
		return s.fail(ctx, phone, "create", err)
	}
	s.log.Info("reminder saved", zap.Int64("user_id", u.ID), zap.String("type", string(t)), zap.Int("offset", minutes))
	return Reply{Text: fmt.Sprintf("✅ Reminder set: %s, %s.", t.Title(), describeSchedule(*r, s.opts.WeeklyDay, s.opts.WeeklyHour))}
}
