package database

type GameRoomRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)
	GetRoomById(roomId int) (Room, error)
	ListRoomsByGameType(gameTypeId int) ([]Room, error)
	GetCurrentSession(roomId int) (Session, error)
	GetSessionById(sessionId int) (Session, error)
	ListEarlyJoiners(sessionId int) ([]EarlyJoiner, error)
	CreateEarlyJoiner(params CreateEarlyJoinerParams) (EarlyJoiner, error)
	TouchEarlyJoiner(sessionId, userId int) (EarlyJoiner, error)
	UpdateSessionStatus(sessionId int, status string) (Session, error)
	CountSessionsByGameType(gameTypeId int) (SessionCounts, error)
}
