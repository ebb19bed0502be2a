package gateway

import (
	"time"

	"github.com/playhall/game-room-gateway/internal/types"
)

// ClientMessage is the closed set of inbound events. Exactly one
// field is set per message; the JSON key is the event name.
type ClientMessage struct {
	SubscribeRoomCounts     *SubscribeRoomCounts     `json:"subscribeRoomCountByGameType,omitempty"`
	SubscribeCurrentSession *SubscribeCurrentSession `json:"subscribeCurrentSession,omitempty"`
	GameJoinRoom            *JoinRequest             `json:"gameJoinRoom,omitempty"`
	JoinWithEarlyJoiners    *JoinRequest             `json:"joinRoomWithEarlyJoiners,omitempty"`
	GetEarlyJoinersList     *EarlyJoinersRequest     `json:"getEarlyJoinersList,omitempty"`
	client                  *Client
}

type SubscribeRoomCounts struct {
	GameTypeId int `json:"gameTypeId"`
}

type SubscribeCurrentSession struct {
	RoomId int `json:"roomId"`
}

type JoinRequest struct {
	RoomId int `json:"roomId"`
}

type EarlyJoinersRequest struct {
	RoomId    int  `json:"roomId"`
	SessionId *int `json:"sessionId,omitempty"`
}

// roomId reports the room an inbound message is addressed to, if any.
func (m *ClientMessage) roomId() (int, bool) {
	switch {
	case m.SubscribeCurrentSession != nil:
		return m.SubscribeCurrentSession.RoomId, true
	case m.GameJoinRoom != nil:
		return m.GameJoinRoom.RoomId, true
	case m.JoinWithEarlyJoiners != nil:
		return m.JoinWithEarlyJoiners.RoomId, true
	case m.GetEarlyJoinersList != nil:
		return m.GetEarlyJoinersList.RoomId, true
	}
	return 0, false
}

// ServerMessage is the closed set of outbound events. The JSON keys
// are the stable event names of the wire contract.
type ServerMessage struct {
	Connected               *Connected                  `json:"connected,omitempty"`
	GameRoomCounts          *GameRoomCounts             `json:"gameRoomCounts,omitempty"`
	CurrentSession          *CurrentSessionEvent        `json:"currentSession,omitempty"`
	CurrentSessionUpdated   *CurrentSessionEvent        `json:"currentSessionUpdated,omitempty"`
	GameJoinRoomResult      *GameJoinRoomResult         `json:"gameJoinRoomResult,omitempty"`
	GameJoinRoomUpdated     *GameJoinRoomUpdated        `json:"gameJoinRoomUpdated,omitempty"`
	JoinResult              *JoinWithEarlyJoinersResult `json:"joinRoomWithEarlyJoinersResult,omitempty"`
	EarlyJoinersListResult  *EarlyJoinersListResult     `json:"earlyJoinersListResult,omitempty"`
	RoomEarlyJoinersUpdated *RoomEarlyJoinersUpdated    `json:"roomEarlyJoinersUpdated,omitempty"`
	SkipClient              *Client                     `json:"-"`
}

type Connected struct {
	Message   string `json:"message"`
	ClientId  string `json:"clientId"`
	Namespace string `json:"namespace"`
	UserId    *int   `json:"userId"`
}

type GameRoomCounts struct {
	Pending     int       `json:"pending"`
	Running     int       `json:"running"`
	Out         int       `json:"out"`
	End         int       `json:"end"`
	Total       int       `json:"total"`
	LastUpdated time.Time `json:"lastUpdated"`
	Error       string    `json:"error,omitempty"`
}

type CurrentSessionEvent struct {
	RoomId         int            `json:"roomId"`
	CurrentSession *types.Session `json:"current_session"`
	Error          string         `json:"error,omitempty"`
}

type GameJoinRoomResult struct {
	Success   bool                `json:"success"`
	RoomId    int                 `json:"roomId,omitempty"`
	SessionId int                 `json:"sessionId,omitempty"`
	JoinList  []types.EarlyJoiner `json:"joinList,omitempty"`
	Error     string              `json:"error,omitempty"`
}

type GameJoinRoomUpdated struct {
	RoomId    int                 `json:"roomId"`
	SessionId int                 `json:"sessionId"`
	JoinList  []types.EarlyJoiner `json:"joinList"`
}

type JoinWithEarlyJoinersResult struct {
	Success      bool                `json:"success"`
	RoomId       int                 `json:"roomId,omitempty"`
	SessionId    int                 `json:"sessionId,omitempty"`
	EarlyJoiners []types.EarlyJoiner `json:"earlyJoiners,omitempty"`
	TotalCount   int                 `json:"totalCount,omitempty"`
	UserJoined   *types.NewJoiner    `json:"userJoined,omitempty"`
	Timestamp    *time.Time          `json:"timestamp,omitempty"`
	Error        string              `json:"error,omitempty"`
}

type EarlyJoinersListResult struct {
	Success      bool                `json:"success"`
	RoomId       int                 `json:"roomId,omitempty"`
	SessionId    int                 `json:"sessionId,omitempty"`
	EarlyJoiners []types.EarlyJoiner `json:"earlyJoiners,omitempty"`
	TotalCount   int                 `json:"totalCount,omitempty"`
	Timestamp    *time.Time          `json:"timestamp,omitempty"`
	Error        string              `json:"error,omitempty"`
}

type RoomEarlyJoinersUpdated struct {
	RoomId       int                 `json:"roomId"`
	SessionId    int                 `json:"sessionId"`
	EarlyJoiners []types.EarlyJoiner `json:"earlyJoiners"`
	TotalCount   int                 `json:"totalCount"`
	NewJoiner    types.NewJoiner     `json:"newJoiner"`
	Timestamp    time.Time           `json:"timestamp"`
}

// errorResultFor builds the failure payload matching the inbound
// message's result event, so the caller always hears back on the
// channel it asked on.
func errorResultFor(msg *ClientMessage, errStr string) *ServerMessage {
	switch {
	case msg.GameJoinRoom != nil:
		return &ServerMessage{GameJoinRoomResult: &GameJoinRoomResult{Error: errStr}}
	case msg.JoinWithEarlyJoiners != nil:
		return &ServerMessage{JoinResult: &JoinWithEarlyJoinersResult{Error: errStr}}
	case msg.GetEarlyJoinersList != nil:
		return &ServerMessage{EarlyJoinersListResult: &EarlyJoinersListResult{Error: errStr}}
	case msg.SubscribeCurrentSession != nil:
		return &ServerMessage{CurrentSession: &CurrentSessionEvent{
			RoomId: msg.SubscribeCurrentSession.RoomId,
			Error:  errStr,
		}}
	case msg.SubscribeRoomCounts != nil:
		return &ServerMessage{GameRoomCounts: &GameRoomCounts{
			LastUpdated: Now(),
			Error:       errStr,
		}}
	}
	return &ServerMessage{GameJoinRoomResult: &GameJoinRoomResult{Error: errStr}}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
