package database

import "time"

const (
	SessionScheduled = "scheduled"
	SessionRunning   = "running"
	SessionEnded     = "ended"
	SessionCancelled = "cancelled"
)

const (
	JoinerConfirmed = "confirmed"
	JoinerPending   = "pending"
)

type User struct {
	Id           int
	Username     string
	Fullname     string
	Avatar       string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Room struct {
	Id         int
	Name       string
	GameTypeId int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Session struct {
	Id                int
	RoomId            int
	Name              string
	Status            string
	TimeStart         time.Time
	DurationMin       int
	MaxParticipants   int
	ParticipantsCount int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type EarlyJoiner struct {
	Id        int
	SessionId int
	UserId    int
	Username  string
	Fullname  string
	Avatar    string
	JoinedAt  time.Time
	Amount    float64
	Status    string
}

// SessionCounts buckets a game type's sessions by status:
// pending=scheduled, running=running, out=cancelled, end=ended.
type SessionCounts struct {
	Pending int
	Running int
	Out     int
	End     int
}

func (c SessionCounts) Total() int {
	return c.Pending + c.Running + c.Out + c.End
}

type CreateAccountParams struct {
	Username     string
	Fullname     string
	EmailAddress string
	PasswordHash string
}

type CreateEarlyJoinerParams struct {
	SessionId int
	UserId    int
	JoinedAt  time.Time
	Amount    float64
	Status    string
}
