package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4/database"

	"github.com/McdWebs/WA-bot-sub000/internal/domain"
)

// dialect captures the few differences between the supported engines.
type dialect struct {
	name            string
	rebind          bool // use $1..$n placeholders instead of ?
	// migrationDriver returns the migrate driver and a func releasing
	// whatever it holds without closing db.
	migrationDriver func(ctx context.Context, db *sql.DB) (database.Driver, func() error, error)
}

// q rewrites ? placeholders for engines that need numbered ones.
func (d dialect) q(query string) string {
	if !d.rebind {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLRepo implements Repo on database/sql for SQLite and PostgreSQL.
type SQLRepo struct {
	db *sql.DB
	d  dialect
}

// Close releases the underlying database resources.
func (r *SQLRepo) Close() error {
	return r.db.Close()
}

// CreateUser inserts a new user and sets u.ID.
func (r *SQLRepo) CreateUser(ctx context.Context, u *domain.User) error {
	if u == nil {
		return errors.New("nil user")
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.Status == "" {
		u.Status = domain.StatusPending
	}
	row := r.db.QueryRowContext(ctx, r.d.q(`
		INSERT INTO users (phone, status, timezone, location, tag, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`),
		u.Phone, string(u.Status), u.Timezone, u.Location, u.Tag, u.CreatedAt.UTC().Unix(),
	)
	return row.Scan(&u.ID)
}

// GetUserByPhone returns a user by phone number or ErrNotFound.
func (r *SQLRepo) GetUserByPhone(ctx context.Context, phone string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, r.d.q(`
		SELECT `+userColumns+`
		FROM users u
		WHERE u.phone = ?`),
		phone,
	)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ActiveUsers returns every user whose status is active.
func (r *SQLRepo) ActiveUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, r.d.q(`
		SELECT `+userColumns+`
		FROM users u
		WHERE u.status = ?
		ORDER BY u.id ASC`),
		string(domain.StatusActive),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// UpdateUser changes the non-nil fields of the user with the given phone.
func (r *SQLRepo) UpdateUser(ctx context.Context, phone string, upd domain.UserUpdate) error {
	var (
		sets []string
		args []any
	)
	if upd.Status != nil {
		sets, args = append(sets, "status = ?"), append(args, string(*upd.Status))
	}
	if upd.Timezone != nil {
		sets, args = append(sets, "timezone = ?"), append(args, *upd.Timezone)
	}
	if upd.Location != nil {
		sets, args = append(sets, "location = ?"), append(args, *upd.Location)
	}
	if upd.Tag != nil {
		sets, args = append(sets, "tag = ?"), append(args, *upd.Tag)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, phone)
	return r.execOne(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE phone = ?`, args...)
}

// ReminderSettings returns all settings of a user, enabled or not, ordered by id.
func (r *SQLRepo) ReminderSettings(ctx context.Context, userID int64) ([]domain.ReminderSetting, error) {
	rows, err := r.db.QueryContext(ctx, r.d.q(`
		SELECT `+reminderColumns+`
		FROM reminder_settings r
		WHERE r.user_id = ?
		ORDER BY r.id ASC`),
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.ReminderSetting
	for rows.Next() {
		var d reminderDest
		if err := rows.Scan(d.targets()...); err != nil {
			return nil, err
		}
		rs, err := d.reminder()
		if err != nil {
			return nil, err
		}
		res = append(res, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// UpsertReminderSetting inserts a setting or, if the (user, type) pair exists,
// updates it in place. s.ID is set to the stored row id.
func (r *SQLRepo) UpsertReminderSetting(ctx context.Context, s *domain.ReminderSetting) error {
	if s == nil {
		return errors.New("nil reminder setting")
	}
	if _, err := domain.ParseReminderType(string(s.Type)); err != nil {
		return err
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	row := r.db.QueryRowContext(ctx, r.d.q(`
		INSERT INTO reminder_settings (
			user_id, reminder_type, enabled, offset_minutes, last_sent_at, test_time, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, reminder_type) DO UPDATE SET
			enabled        = excluded.enabled,
			offset_minutes = excluded.offset_minutes,
			test_time      = excluded.test_time
		RETURNING id`),
		s.UserID, string(s.Type), boolToInt(s.Enabled), s.OffsetMinutes,
		toNullInt64(s.LastSentAt), toNullClock(s.TestTime), s.CreatedAt.UTC().Unix(),
	)
	return row.Scan(&s.ID)
}

// UpdateReminderSetting changes the non-nil fields of a setting by id.
func (r *SQLRepo) UpdateReminderSetting(ctx context.Context, id int64, upd domain.ReminderUpdate) error {
	var (
		sets []string
		args []any
	)
	if upd.Enabled != nil {
		sets, args = append(sets, "enabled = ?"), append(args, boolToInt(*upd.Enabled))
	}
	if upd.OffsetMinutes != nil {
		sets, args = append(sets, "offset_minutes = ?"), append(args, *upd.OffsetMinutes)
	}
	if upd.LastSentAt != nil {
		sets, args = append(sets, "last_sent_at = ?"), append(args, toNullInt64(upd.LastSentAt))
	}
	switch {
	case upd.ClearTestTime:
		sets, args = append(sets, "test_time = ?"), append(args, sql.NullString{})
	case upd.TestTime != nil:
		sets, args = append(sets, "test_time = ?"), append(args, toNullClock(upd.TestTime))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	return r.execOne(ctx, `UPDATE reminder_settings SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
}

// DeleteReminderSetting hard-deletes a setting by id.
func (r *SQLRepo) DeleteReminderSetting(ctx context.Context, id int64) error {
	return r.execOne(ctx, `DELETE FROM reminder_settings WHERE id = ?`, id)
}

// EnabledRemindersWithUsers returns enabled settings of active users, grouped by user id.
func (r *SQLRepo) EnabledRemindersWithUsers(ctx context.Context) ([]domain.ScheduledReminder, error) {
	rows, err := r.db.QueryContext(ctx, r.d.q(`
		SELECT `+reminderColumns+`, `+userColumns+`
		FROM reminder_settings r
		JOIN users u ON u.id = r.user_id
		WHERE r.enabled = 1
		  AND u.status = ?
		ORDER BY u.id ASC, r.id ASC`),
		string(domain.StatusActive),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.ScheduledReminder
	for rows.Next() {
		var (
			d         reminderDest
			u         domain.User
			status    string
			createdAt int64
		)
		dest := append(d.targets(), &u.ID, &u.Phone, &status, &u.Timezone, &u.Location, &u.Tag, &createdAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		rs, err := d.reminder()
		if err != nil {
			return nil, err
		}
		if u.Status, err = domain.ParseUserStatus(status); err != nil {
			return nil, err
		}
		u.CreatedAt = time.Unix(createdAt, 0).UTC()
		res = append(res, domain.ScheduledReminder{Reminder: rs, User: u})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// execOne runs a statement that must touch exactly one row.
func (r *SQLRepo) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, r.d.q(query), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
