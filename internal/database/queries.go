package database

import (
	"time"
)

func (db *PgGameRoomRepository) CreateAccount(params CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, fullname, email, password_hash, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id, username, fullname, email",
		params.Username,
		params.Fullname,
		params.EmailAddress,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.Fullname,
		&u.EmailAddress,
	)

	return u, err
}

func (db *PgGameRoomRepository) GetAccountById(accountId int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, fullname, avatar, email FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		accountId,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.Fullname,
		&user.Avatar,
		&user.EmailAddress,
	)

	return user, err
}

func (db *PgGameRoomRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, fullname, avatar, email, password_hash FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.Fullname,
		&user.Avatar,
		&user.EmailAddress,
		&user.PasswordHash,
	)

	return user, err
}

func (db *PgGameRoomRepository) GetRoomById(roomId int) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, game_type_id, created_at, updated_at FROM rooms "+
			"WHERE id = $1 LIMIT 1",
		roomId,
	)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.Name,
		&room.GameTypeId,
		&room.CreatedAt,
		&room.UpdatedAt,
	)

	return room, err
}

func (db *PgGameRoomRepository) ListRoomsByGameType(gameTypeId int) ([]Room, error) {
	rows, err := db.conn.Query(
		"SELECT id, name, game_type_id, created_at, updated_at FROM rooms "+
			"WHERE game_type_id = $1 ORDER BY id",
		gameTypeId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		if err := rows.Scan(
			&room.Id,
			&room.Name,
			&room.GameTypeId,
			&room.CreatedAt,
			&room.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

// GetCurrentSession returns the room's newest session still in the
// scheduled or running state. sql.ErrNoRows means the room has no
// current session, which is a valid steady state.
func (db *PgGameRoomRepository) GetCurrentSession(roomId int) (Session, error) {
	row := db.conn.QueryRow(
		"SELECT id, room_id, name, status, time_start, duration_min, max_participants, participants_count "+
			"FROM sessions WHERE room_id = $1 AND status IN ($2, $3) "+
			"ORDER BY time_start DESC LIMIT 1",
		roomId,
		SessionScheduled,
		SessionRunning,
	)

	return scanSession(row)
}

func (db *PgGameRoomRepository) GetSessionById(sessionId int) (Session, error) {
	row := db.conn.QueryRow(
		"SELECT id, room_id, name, status, time_start, duration_min, max_participants, participants_count "+
			"FROM sessions WHERE id = $1 LIMIT 1",
		sessionId,
	)

	return scanSession(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var s Session
	err := row.Scan(
		&s.Id,
		&s.RoomId,
		&s.Name,
		&s.Status,
		&s.TimeStart,
		&s.DurationMin,
		&s.MaxParticipants,
		&s.ParticipantsCount,
	)

	return s, err
}

func (db *PgGameRoomRepository) ListEarlyJoiners(sessionId int) ([]EarlyJoiner, error) {
	rows, err := db.conn.Query(
		"SELECT j.id, j.session_id, j.account_id, a.username, a.fullname, a.avatar, j.joined_at, j.amount, j.status "+
			"FROM early_joiners j JOIN accounts a ON a.id = j.account_id "+
			"WHERE j.session_id = $1 ORDER BY j.joined_at ASC",
		sessionId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var joiners []EarlyJoiner
	for rows.Next() {
		var j EarlyJoiner
		if err := rows.Scan(
			&j.Id,
			&j.SessionId,
			&j.UserId,
			&j.Username,
			&j.Fullname,
			&j.Avatar,
			&j.JoinedAt,
			&j.Amount,
			&j.Status,
		); err != nil {
			return nil, err
		}
		joiners = append(joiners, j)
	}

	return joiners, rows.Err()
}

// CreateEarlyJoiner inserts the joiner row and bumps the session's
// participant count in one transaction.
func (db *PgGameRoomRepository) CreateEarlyJoiner(params CreateEarlyJoinerParams) (EarlyJoiner, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return EarlyJoiner{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRow(
		"INSERT INTO early_joiners (session_id, account_id, joined_at, amount, status) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id",
		params.SessionId,
		params.UserId,
		params.JoinedAt,
		params.Amount,
		params.Status,
	)

	j := EarlyJoiner{
		SessionId: params.SessionId,
		UserId:    params.UserId,
		JoinedAt:  params.JoinedAt,
		Amount:    params.Amount,
		Status:    params.Status,
	}
	if err := row.Scan(&j.Id); err != nil {
		return EarlyJoiner{}, err
	}

	if _, err := tx.Exec(
		"UPDATE sessions SET participants_count = participants_count + 1, updated_at = $2 WHERE id = $1",
		params.SessionId,
		time.Now().UTC(),
	); err != nil {
		return EarlyJoiner{}, err
	}

	if err := tx.QueryRow(
		"SELECT username, fullname, avatar FROM accounts WHERE id = $1",
		params.UserId,
	).Scan(&j.Username, &j.Fullname, &j.Avatar); err != nil {
		return EarlyJoiner{}, err
	}

	return j, tx.Commit()
}

// TouchEarlyJoiner refreshes an existing joiner row on an idempotent
// re-join without changing the participant count.
func (db *PgGameRoomRepository) TouchEarlyJoiner(sessionId, userId int) (EarlyJoiner, error) {
	row := db.conn.QueryRow(
		"UPDATE early_joiners SET status = $3 "+
			"WHERE session_id = $1 AND account_id = $2 "+
			"RETURNING id, session_id, account_id, joined_at, amount, status",
		sessionId,
		userId,
		JoinerConfirmed,
	)

	var j EarlyJoiner
	err := row.Scan(
		&j.Id,
		&j.SessionId,
		&j.UserId,
		&j.JoinedAt,
		&j.Amount,
		&j.Status,
	)

	return j, err
}

func (db *PgGameRoomRepository) UpdateSessionStatus(sessionId int, status string) (Session, error) {
	row := db.conn.QueryRow(
		"UPDATE sessions SET status = $2, updated_at = $3 WHERE id = $1 "+
			"RETURNING id, room_id, name, status, time_start, duration_min, max_participants, participants_count",
		sessionId,
		status,
		time.Now().UTC(),
	)

	return scanSession(row)
}

// CountSessionsByGameType aggregates session statuses for every room
// of the game type. A game type with no rooms scans zero rows and
// yields all-zero counts.
func (db *PgGameRoomRepository) CountSessionsByGameType(gameTypeId int) (SessionCounts, error) {
	row := db.conn.QueryRow(
		"SELECT "+
			"COUNT(*) FILTER (WHERE s.status = $2), "+
			"COUNT(*) FILTER (WHERE s.status = $3), "+
			"COUNT(*) FILTER (WHERE s.status = $4), "+
			"COUNT(*) FILTER (WHERE s.status = $5) "+
			"FROM sessions s JOIN rooms r ON r.id = s.room_id "+
			"WHERE r.game_type_id = $1",
		gameTypeId,
		SessionScheduled,
		SessionRunning,
		SessionCancelled,
		SessionEnded,
	)

	var c SessionCounts
	err := row.Scan(
		&c.Pending,
		&c.Running,
		&c.Out,
		&c.End,
	)

	return c, err
}
