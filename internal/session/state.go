// Package session holds per-phone conversation state for the reminder
// management flow. It contains no business logic.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/McdWebs/WA-bot-sub000/internal/domain"
)

// Mode is the current step of the reminder management dialogue.
type Mode int

const (
	ModeChoosing         Mode = iota + 1 // a numbered list was shown; waiting for an index
	ModeActing                           // a reminder is selected; waiting for edit/delete/cancel
	ModeEditing                          // waiting for a new offset for the focused reminder
	ModeConfirmingDelete                 // waiting for yes/no
	ModeChoosingType                     // creating: waiting for a reminder type
	ModeChoosingOffset                   // creating: waiting for the offset of PendingType
)

func (m Mode) String() string {
	switch m {
	case ModeChoosing:
		return "choosing"
	case ModeActing:
		return "acting"
	case ModeEditing:
		return "editing"
	case ModeConfirmingDelete:
		return "confirming-delete"
	case ModeChoosingType:
		return "choosing-type"
	case ModeChoosingOffset:
		return "choosing-offset"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ErrNoSelection is returned when an index cannot be resolved.
var ErrNoSelection = errors.New("no such selection")

// State is the whole conversation state of one phone number.
// Setting a new State replaces the previous one.
type State struct {
	Mode        Mode                `json:"mode"`
	ReminderID  int64               `json:"reminder_id,omitempty"`
	Selection   map[int]int64       `json:"selection,omitempty"` // 1-based index -> reminder id, choosing only
	PendingType domain.ReminderType `json:"pending_type,omitempty"`
}

// Store keeps one State per phone number.
type Store interface {
	// Get returns the current state or nil when there is none.
	Get(ctx context.Context, phone string) (*State, error)
	Set(ctx context.Context, phone string, st State) error
	Clear(ctx context.Context, phone string) error
}

// IsInMode reports whether phone currently has a state in the given mode.
func IsInMode(ctx context.Context, s Store, phone string, mode Mode) (bool, error) {
	st, err := s.Get(ctx, phone)
	if err != nil {
		return false, err
	}
	return st != nil && st.Mode == mode, nil
}

// ResolveSelection maps a 1-based index to the reminder id recorded at list time.
// It only succeeds while the conversation is in ModeChoosing.
func ResolveSelection(ctx context.Context, s Store, phone string, index int) (int64, error) {
	st, err := s.Get(ctx, phone)
	if err != nil {
		return 0, err
	}
	if st == nil || st.Mode != ModeChoosing {
		return 0, ErrNoSelection
	}
	id, ok := st.Selection[index]
	if !ok {
		return 0, ErrNoSelection
	}
	return id, nil
}

// cloneState copies the selection map so callers cannot mutate stored state.
func cloneState(st State) State {
	if st.Selection != nil {
		sel := make(map[int]int64, len(st.Selection))
		for k, v := range st.Selection {
			sel[k] = v
		}
		st.Selection = sel
	}
	return st
}
