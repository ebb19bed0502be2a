package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	Fullname     string    `json:"fullname,omitempty"`
	Avatar       string    `json:"avatar,omitempty"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Room struct {
	Id         int       `json:"id"`
	Name       string    `json:"name"`
	GameTypeId int       `json:"game_type_id"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// Session is the wire form of a room's current session. CanJoin is
// derived, never stored: status == scheduled and count below cap.
type Session struct {
	Id                int       `json:"id"`
	Status            string    `json:"status"`
	TimeStart         time.Time `json:"time_start"`
	Name              string    `json:"session"`
	ParticipantsCount int       `json:"participants_count"`
	MaxParticipants   int       `json:"max_participants"`
	CanJoin           bool      `json:"can_join"`
}

type EarlyJoiner struct {
	UserId   int       `json:"user_id"`
	Username string    `json:"username"`
	Fullname string    `json:"fullname"`
	Avatar   string    `json:"avatar"`
	JoinedAt time.Time `json:"joined_at"`
	Amount   float64   `json:"amount"`
	Status   string    `json:"status"`
}

// NewJoiner is the abbreviated joiner record carried by join results
// and roster broadcasts.
type NewJoiner struct {
	UserId   int       `json:"user_id"`
	Username string    `json:"username"`
	Fullname string    `json:"fullname"`
	JoinedAt time.Time `json:"joined_at"`
}
