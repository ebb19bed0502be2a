package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/playhall/game-room-gateway/internal/database"
	"github.com/playhall/game-room-gateway/internal/gateway"
	"github.com/playhall/game-room-gateway/internal/types"
)

func (s *GameRoomApp) writeJson(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Println("write json:", err)
	}
}

func (s *GameRoomApp) listRooms(w http.ResponseWriter, r *http.Request) {
	gameTypeId, err := strconv.Atoi(r.URL.Query().Get("game_type"))
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbRooms, err := s.db.ListRoomsByGameType(gameTypeId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rooms := make([]types.Room, 0, len(dbRooms))
	for _, room := range dbRooms {
		rooms = append(rooms, types.Room{
			Id:         room.Id,
			Name:       room.Name,
			GameTypeId: room.GameTypeId,
			CreatedAt:  room.CreatedAt,
			UpdatedAt:  room.UpdatedAt,
		})
	}

	s.writeJson(w, http.StatusOK, rooms)
}

func (s *GameRoomApp) currentSession(w http.ResponseWriter, r *http.Request) {
	roomId, err := strconv.Atoi(r.URL.Query().Get("room_id"))
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	session, err := s.db.GetCurrentSession(roomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeJson(w, http.StatusOK, map[string]any{
				"roomId":          roomId,
				"current_session": nil,
			})
			return
		}
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]any{
		"roomId": roomId,
		"current_session": types.Session{
			Id:                session.Id,
			Status:            session.Status,
			TimeStart:         session.TimeStart,
			Name:              session.Name,
			ParticipantsCount: session.ParticipantsCount,
			MaxParticipants:   session.MaxParticipants,
			CanJoin:           session.Status == database.SessionScheduled && session.ParticipantsCount < session.MaxParticipants,
		},
	})
}

// serveWs upgrades the connection and registers it with the gateway.
// Identity is optional here: anonymous connections may subscribe, and
// join attempts without identity fail at admission.
func (s *GameRoomApp) serveWs(w http.ResponseWriter, r *http.Request) {
	var user types.User
	if userId := s.resolveIdentity(r); userId != 0 {
		account, err := s.db.GetAccountById(userId)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		user = types.User{
			Id:       account.Id,
			Username: account.Username,
			Fullname: account.Fullname,
			Avatar:   account.Avatar,
		}
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := gateway.NewClient(uuid.NewString(), user, conn, s.gw, s.log)

	s.gw.RegisterClient(client)
	go client.Write()
	go client.Read()
}
