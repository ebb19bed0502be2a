package gateway

// Business error strings surfaced in result payloads. These never
// terminate the connection.
const (
	ErrRoomNotFound    = "RoomNotFound"
	ErrRoomNotJoinable = "RoomNotJoinable"
	ErrRoomFull        = "RoomFull"
	ErrSessionNotFound = "SessionNotFound"
	ErrUnauthenticated = "Unauthenticated"
	ErrInternalError   = "InternalError"
	ErrInvalidMessage  = "InvalidMessage"
	ErrTooBusy         = "TooBusy"
)
