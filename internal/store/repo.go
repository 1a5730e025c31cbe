package store

import (
	"context"
	"errors"
	"net"

	"github.com/McdWebs/WA-bot-sub000/internal/domain"
)

// ErrNotFound is returned when a user or reminder setting does not exist.
var ErrNotFound = errors.New("not found")

// Repo defines storage operations for users and their reminder settings.
type Repo interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUserByPhone(ctx context.Context, phone string) (*domain.User, error)
	ActiveUsers(ctx context.Context) ([]domain.User, error)
	UpdateUser(ctx context.Context, phone string, upd domain.UserUpdate) error

	ReminderSettings(ctx context.Context, userID int64) ([]domain.ReminderSetting, error)
	UpsertReminderSetting(ctx context.Context, s *domain.ReminderSetting) error
	UpdateReminderSetting(ctx context.Context, id int64, upd domain.ReminderUpdate) error
	DeleteReminderSetting(ctx context.Context, id int64) error

	// EnabledRemindersWithUsers joins enabled settings with their active owners.
	EnabledRemindersWithUsers(ctx context.Context) ([]domain.ScheduledReminder, error)

	Close() error
}

// IsNetworkError reports whether err comes from reaching the database server
// (DNS or dial failures) rather than from the data itself.
func IsNetworkError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
