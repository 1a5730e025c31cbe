package domain

import (
	"fmt"
	"time"
)

// UserStatus is the registration lifecycle of a user.
type UserStatus string

const (
	StatusPending  UserStatus = "pending"
	StatusActive   UserStatus = "active"
	StatusInactive UserStatus = "inactive"
)

// ParseUserStatus validates a stored status tag.
func ParseUserStatus(s string) (UserStatus, error) {
	switch UserStatus(s) {
	case StatusPending, StatusActive, StatusInactive:
		return UserStatus(s), nil
	default:
		return "", fmt.Errorf("unknown user status %q", s)
	}
}

// User is a WhatsApp contact identified by phone number.
type User struct {
	ID        int64
	Phone     string // E.164, unique
	Status    UserStatus
	Timezone  string // IANA zone
	Location  string // free-text city name
	Tag       string // optional demographic tag
	CreatedAt time.Time
}

// UserUpdate carries the fields to change; nil fields are left untouched.
type UserUpdate struct {
	Status   *UserStatus
	Timezone *string
	Location *string
	Tag      *string
}
