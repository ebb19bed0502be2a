package database

import (
	"github.com/stretchr/testify/mock"
)

type MockGameRoomRepository struct {
	mock.Mock
}

func (m *MockGameRoomRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockGameRoomRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGameRoomRepository) GetAccountById(accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGameRoomRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGameRoomRepository) GetRoomById(roomId int) (Room, error) {
	args := m.Called(roomId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockGameRoomRepository) ListRoomsByGameType(gameTypeId int) ([]Room, error) {
	args := m.Called(gameTypeId)
	if rooms, ok := args.Get(0).([]Room); ok {
		return rooms, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockGameRoomRepository) GetCurrentSession(roomId int) (Session, error) {
	args := m.Called(roomId)
	return args.Get(0).(Session), args.Error(1)
}
func (m *MockGameRoomRepository) GetSessionById(sessionId int) (Session, error) {
	args := m.Called(sessionId)
	return args.Get(0).(Session), args.Error(1)
}
func (m *MockGameRoomRepository) ListEarlyJoiners(sessionId int) ([]EarlyJoiner, error) {
	args := m.Called(sessionId)
	if joiners, ok := args.Get(0).([]EarlyJoiner); ok {
		return joiners, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockGameRoomRepository) CreateEarlyJoiner(params CreateEarlyJoinerParams) (EarlyJoiner, error) {
	args := m.Called(params)
	return args.Get(0).(EarlyJoiner), args.Error(1)
}
func (m *MockGameRoomRepository) TouchEarlyJoiner(sessionId, userId int) (EarlyJoiner, error) {
	args := m.Called(sessionId, userId)
	return args.Get(0).(EarlyJoiner), args.Error(1)
}
func (m *MockGameRoomRepository) UpdateSessionStatus(sessionId int, status string) (Session, error) {
	args := m.Called(sessionId, status)
	return args.Get(0).(Session), args.Error(1)
}
func (m *MockGameRoomRepository) CountSessionsByGameType(gameTypeId int) (SessionCounts, error) {
	args := m.Called(gameTypeId)
	return args.Get(0).(SessionCounts), args.Error(1)
}
