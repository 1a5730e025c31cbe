package store

import (
	"database/sql"
	"time"

	"github.com/McdWebs/WA-bot-sub000/internal/domain"
)

func toNullInt64(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().Unix(), Valid: true}
}

func fromNullInt64(ns sql.NullInt64) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := time.Unix(ns.Int64, 0).UTC()
	return &t
}

func toNullClock(c *domain.Clock) sql.NullString {
	if c == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: c.String(), Valid: true}
}

func fromNullClock(ns sql.NullString) (*domain.Clock, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	c, err := domain.ParseClock(ns.String)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// boolToInt converts a boolean to 1/0; enabled is an INTEGER column in both dialects.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type rowScanner interface {
	Scan(dest ...any) error
}

const userColumns = `u.id, u.phone, u.status, u.timezone, u.location, u.tag, u.created_at`

const reminderColumns = `r.id, r.user_id, r.reminder_type, r.enabled, r.offset_minutes,
	r.last_sent_at, r.test_time, r.created_at`

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u         domain.User
		status    string
		createdAt int64
	)
	if err := row.Scan(&u.ID, &u.Phone, &status, &u.Timezone, &u.Location, &u.Tag, &createdAt); err != nil {
		return nil, err
	}
	st, err := domain.ParseUserStatus(status)
	if err != nil {
		return nil, err
	}
	u.Status = st
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &u, nil
}

// reminderDest collects scan targets for a reminder row.
type reminderDest struct {
	id, userID    int64
	typ           string
	enabledInt    int
	offset        int
	lastNS        sql.NullInt64
	testNS        sql.NullString
	createdAtUnix int64
}

func (d *reminderDest) targets() []any {
	return []any{&d.id, &d.userID, &d.typ, &d.enabledInt, &d.offset, &d.lastNS, &d.testNS, &d.createdAtUnix}
}

func (d *reminderDest) reminder() (domain.ReminderSetting, error) {
	typ, err := domain.ParseReminderType(d.typ)
	if err != nil {
		return domain.ReminderSetting{}, err
	}
	tt, err := fromNullClock(d.testNS)
	if err != nil {
		return domain.ReminderSetting{}, err
	}
	return domain.ReminderSetting{
		ID:            d.id,
		UserID:        d.userID,
		Type:          typ,
		Enabled:       d.enabledInt != 0,
		OffsetMinutes: d.offset,
		LastSentAt:    fromNullInt64(d.lastNS),
		TestTime:      tt,
		CreatedAt:     time.Unix(d.createdAtUnix, 0).UTC(),
	}, nil
}
