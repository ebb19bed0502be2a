package gateway

import (
	"database/sql"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/playhall/game-room-gateway/internal/database"
	"github.com/playhall/game-room-gateway/internal/types"
)

const idleRoomTimeout = 5 * time.Minute

type exitReq struct {
	done chan struct{}
}

// Room is the per-room actor. All session mutations happen inside
// start's loop, which makes the admission check the single serialized
// critical section for the room.
type Room struct {
	id         int
	gameTypeId int
	gw         *GatewayServer
	session    *database.Session
	joiners    []database.EarlyJoiner
	clients    map[*Client]struct{}
	clientLock sync.RWMutex
	reqChan    chan *ClientMessage
	leaveChan  chan *Client
	// transitionChan accepts externally triggered status changes,
	// the same path the room's own timer drives.
	transitionChan  chan string
	exit            chan exitReq
	done            chan struct{}
	killTimer       *time.Timer
	transitionTimer *time.Timer
	log             *log.Logger
}

func newRoom(gw *GatewayServer, dbRoom database.Room) (*Room, error) {
	r := &Room{
		id:             dbRoom.Id,
		gameTypeId:     dbRoom.GameTypeId,
		gw:             gw,
		clients:        make(map[*Client]struct{}),
		reqChan:        make(chan *ClientMessage, 256),
		leaveChan:      make(chan *Client, 256),
		transitionChan: make(chan string, 8),
		exit:           make(chan exitReq),
		done:           make(chan struct{}),
		log:            gw.log,
	}

	if err := r.hydrate(); err != nil {
		return nil, err
	}

	return r, nil
}

// hydrate loads the room's current session and roster from the
// repository. No rows means the room has no current session.
func (r *Room) hydrate() error {
	session, err := r.gw.db.GetCurrentSession(r.id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}

	joiners, err := r.gw.db.ListEarlyJoiners(session.Id)
	if err != nil {
		return err
	}

	r.session = &session
	r.joiners = joiners
	return nil
}

func (r *Room) start() {
	r.log.Printf("starting room %d", r.id)
	r.killTimer = time.NewTimer(idleRoomTimeout)
	r.killTimer.Stop()
	r.armKillTimerIfIdle()
	r.transitionTimer = time.NewTimer(time.Hour)
	r.transitionTimer.Stop()
	r.armTransitionTimer()

	for {
		select {
		case msg := <-r.reqChan:
			r.killTimer.Stop()
			r.handleMessage(msg)
			r.armKillTimerIfIdle()
		case c := <-r.leaveChan:
			r.removeClient(c)
		case status := <-r.transitionChan:
			r.applyTransition(status)
		case <-r.transitionTimer.C:
			r.advanceSession()
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case e := <-r.exit:
			r.handleRoomExit(e)
			return
		}
	}
}

func (r *Room) handleMessage(msg *ClientMessage) {
	switch {
	case msg.SubscribeCurrentSession != nil:
		r.handleSubscribe(msg)
	case msg.GameJoinRoom != nil:
		r.handleLegacyJoin(msg)
	case msg.JoinWithEarlyJoiners != nil:
		r.handleJoin(msg)
	case msg.GetEarlyJoinersList != nil:
		r.handleListJoiners(msg)
	}
}

// handleSubscribe registers the client on the room channel and
// immediately replies with the current session snapshot, so a new
// subscriber always has data before any update event.
func (r *Room) handleSubscribe(msg *ClientMessage) {
	r.addClient(msg.client)

	msg.client.queueMessage(&ServerMessage{
		CurrentSession: &CurrentSessionEvent{
			RoomId:         r.id,
			CurrentSession: r.wireSession(),
		},
	})
}

// admission is the outcome of the one capacity-checked join path.
type admission struct {
	errKind   string
	sessionId int
	joiner    database.EarlyJoiner
	roster    []types.EarlyJoiner
	total     int
	rejoined  bool
}

// admit is the single enforcement point for the capacity invariant.
// Both join events funnel through it; only the response payload each
// handler builds from the result differs.
func (r *Room) admit(c *Client) admission {
	if c.user.Id == 0 {
		return admission{errKind: ErrUnauthenticated}
	}

	if r.session == nil || r.session.Status != database.SessionScheduled {
		return admission{errKind: ErrRoomNotJoinable}
	}

	for i, j := range r.joiners {
		if j.UserId == c.user.Id {
			refreshed, err := r.gw.db.TouchEarlyJoiner(r.session.Id, c.user.Id)
			if err != nil {
				r.log.Println("TouchEarlyJoiner:", err)
				return admission{errKind: ErrInternalError}
			}

			r.joiners[i].Amount = refreshed.Amount
			r.joiners[i].Status = refreshed.Status

			return admission{
				sessionId: r.session.Id,
				joiner:    r.joiners[i],
				roster:    r.wireJoiners(),
				total:     r.session.ParticipantsCount,
				rejoined:  true,
			}
		}
	}

	if r.session.ParticipantsCount >= r.session.MaxParticipants {
		return admission{errKind: ErrRoomFull}
	}

	joiner, err := r.gw.db.CreateEarlyJoiner(database.CreateEarlyJoinerParams{
		SessionId: r.session.Id,
		UserId:    c.user.Id,
		JoinedAt:  Now(),
		Amount:    0,
		Status:    database.JoinerConfirmed,
	})
	if err != nil {
		r.log.Println("CreateEarlyJoiner:", err)
		return admission{errKind: ErrInternalError}
	}

	r.joiners = append(r.joiners, joiner)
	r.session.ParticipantsCount++
	r.gw.stats.Incr("TotalJoinsAdmitted")

	return admission{
		sessionId: r.session.Id,
		joiner:    joiner,
		roster:    r.wireJoiners(),
		total:     r.session.ParticipantsCount,
	}
}

func (r *Room) handleJoin(msg *ClientMessage) {
	adm := r.admit(msg.client)
	if adm.errKind != "" {
		msg.client.queueMessage(&ServerMessage{
			JoinResult: &JoinWithEarlyJoinersResult{Error: adm.errKind},
		})
		return
	}

	now := Now()
	msg.client.queueMessage(&ServerMessage{
		JoinResult: &JoinWithEarlyJoinersResult{
			Success:      true,
			RoomId:       r.id,
			SessionId:    adm.sessionId,
			EarlyJoiners: adm.roster,
			TotalCount:   adm.total,
			UserJoined: &types.NewJoiner{
				UserId:   adm.joiner.UserId,
				Username: adm.joiner.Username,
				Fullname: adm.joiner.Fullname,
				JoinedAt: adm.joiner.JoinedAt,
			},
			Timestamp: &now,
		},
	})

	if !adm.rejoined {
		r.broadcastRosterUpdate(msg.client, adm)
	}
}

func (r *Room) handleLegacyJoin(msg *ClientMessage) {
	adm := r.admit(msg.client)
	if adm.errKind != "" {
		msg.client.queueMessage(&ServerMessage{
			GameJoinRoomResult: &GameJoinRoomResult{Error: adm.errKind},
		})
		return
	}

	msg.client.queueMessage(&ServerMessage{
		GameJoinRoomResult: &GameJoinRoomResult{
			Success:   true,
			RoomId:    r.id,
			SessionId: adm.sessionId,
			JoinList:  adm.roster,
		},
	})

	if !adm.rejoined {
		r.broadcastRosterUpdate(msg.client, adm)
	}
}

// broadcastRosterUpdate pushes the post-join roster delta to every
// room subscriber except the joiner, which already has it in its
// result payload.
func (r *Room) broadcastRosterUpdate(joinerClient *Client, adm admission) {
	r.broadcast(&ServerMessage{
		RoomEarlyJoinersUpdated: &RoomEarlyJoinersUpdated{
			RoomId:       r.id,
			SessionId:    adm.sessionId,
			EarlyJoiners: adm.roster,
			TotalCount:   adm.total,
			NewJoiner: types.NewJoiner{
				UserId:   adm.joiner.UserId,
				Username: adm.joiner.Username,
				Fullname: adm.joiner.Fullname,
				JoinedAt: adm.joiner.JoinedAt,
			},
			Timestamp: Now(),
		},
		SkipClient: joinerClient,
	})

	r.broadcast(&ServerMessage{
		GameJoinRoomUpdated: &GameJoinRoomUpdated{
			RoomId:    r.id,
			SessionId: adm.sessionId,
			JoinList:  adm.roster,
		},
		SkipClient: joinerClient,
	})

	r.broadcast(&ServerMessage{
		CurrentSessionUpdated: &CurrentSessionEvent{
			RoomId:         r.id,
			CurrentSession: r.wireSession(),
		},
		SkipClient: joinerClient,
	})
}

func (r *Room) handleListJoiners(msg *ClientMessage) {
	req := msg.GetEarlyJoinersList

	if req.SessionId == nil {
		if r.session == nil {
			msg.client.queueMessage(&ServerMessage{
				EarlyJoinersListResult: &EarlyJoinersListResult{Error: ErrSessionNotFound},
			})
			return
		}

		now := Now()
		msg.client.queueMessage(&ServerMessage{
			EarlyJoinersListResult: &EarlyJoinersListResult{
				Success:      true,
				RoomId:       r.id,
				SessionId:    r.session.Id,
				EarlyJoiners: r.wireJoiners(),
				TotalCount:   len(r.joiners),
				Timestamp:    &now,
			},
		})
		return
	}

	// Explicit session id: serve from memory when it names the
	// current session, otherwise read the historical roster.
	if r.session != nil && *req.SessionId == r.session.Id {
		now := Now()
		msg.client.queueMessage(&ServerMessage{
			EarlyJoinersListResult: &EarlyJoinersListResult{
				Success:      true,
				RoomId:       r.id,
				SessionId:    r.session.Id,
				EarlyJoiners: r.wireJoiners(),
				TotalCount:   len(r.joiners),
				Timestamp:    &now,
			},
		})
		return
	}

	session, err := r.gw.db.GetSessionById(*req.SessionId)
	if err != nil || session.RoomId != r.id {
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			r.log.Println("GetSessionById:", err)
		}
		msg.client.queueMessage(&ServerMessage{
			EarlyJoinersListResult: &EarlyJoinersListResult{Error: ErrSessionNotFound},
		})
		return
	}

	joiners, err := r.gw.db.ListEarlyJoiners(session.Id)
	if err != nil {
		r.log.Println("ListEarlyJoiners:", err)
		msg.client.queueMessage(&ServerMessage{
			EarlyJoinersListResult: &EarlyJoinersListResult{Error: ErrInternalError},
		})
		return
	}

	now := Now()
	msg.client.queueMessage(&ServerMessage{
		EarlyJoinersListResult: &EarlyJoinersListResult{
			Success:      true,
			RoomId:       r.id,
			SessionId:    session.Id,
			EarlyJoiners: wireJoiners(joiners),
			TotalCount:   len(joiners),
			Timestamp:    &now,
		},
	})
}

// advanceSession moves the current session to its next lifecycle
// state when the transition timer fires.
func (r *Room) advanceSession() {
	if r.session == nil {
		return
	}

	switch r.session.Status {
	case database.SessionScheduled:
		r.applyTransition(database.SessionRunning)
	case database.SessionRunning:
		r.applyTransition(database.SessionEnded)
	}
}

// applyTransition persists a status change, updates the in-memory
// session, and fans the delta out to room and game-type subscribers.
func (r *Room) applyTransition(status string) {
	if r.session == nil {
		return
	}

	session, err := r.gw.db.UpdateSessionStatus(r.session.Id, status)
	if err != nil {
		r.log.Println("UpdateSessionStatus:", err)
		return
	}

	r.session = &session

	if status == database.SessionEnded || status == database.SessionCancelled {
		// Broadcast the terminal state, then clear the current
		// session so later snapshots see null.
		r.broadcast(&ServerMessage{
			CurrentSessionUpdated: &CurrentSessionEvent{
				RoomId:         r.id,
				CurrentSession: r.wireSession(),
			},
		})
		r.session = nil
		r.joiners = nil
	} else {
		r.broadcast(&ServerMessage{
			CurrentSessionUpdated: &CurrentSessionEvent{
				RoomId:         r.id,
				CurrentSession: r.wireSession(),
			},
		})
		r.armTransitionTimer()
	}

	select {
	case r.gw.countsDirtyChan <- r.gameTypeId:
	default:
		r.log.Println("countsDirtyChan full")
	}
}

// armTransitionTimer schedules the next automatic status change:
// time_start for scheduled sessions, time_start plus duration for
// running ones.
func (r *Room) armTransitionTimer() {
	if r.session == nil {
		return
	}

	var at time.Time
	switch r.session.Status {
	case database.SessionScheduled:
		at = r.session.TimeStart
	case database.SessionRunning:
		at = r.session.TimeStart.Add(time.Duration(r.session.DurationMin) * time.Minute)
	default:
		return
	}

	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	r.transitionTimer.Reset(delay)
}

// armKillTimerIfIdle starts the unload countdown whenever the room has
// no subscribers. Every request restarts it, so a room serving only
// join or list traffic stays loaded while it is in use.
func (r *Room) armKillTimerIfIdle() {
	r.clientLock.RLock()
	idle := len(r.clients) == 0
	r.clientLock.RUnlock()

	if idle {
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handleRoomTimeout() {
	r.log.Printf("room %d timed out", r.id)
	select {
	case r.gw.unloadRoomChan <- r.id:
	default:
		// retry on the next tick if the server loop is busy
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handleRoomExit(e exitReq) {
	r.log.Printf("room %d is exiting", r.id)

	// answer requests routed here before the exit won the select, so
	// no client is left waiting for a result
drain:
	for {
		select {
		case msg := <-r.reqChan:
			msg.client.queueMessage(errorResultFor(msg, ErrTooBusy))
		default:
			break drain
		}
	}

	r.clientLock.Lock()
	for c := range r.clients {
		c.delRoom(r.id)
	}
	r.clientLock.Unlock()

	if e.done != nil {
		close(e.done)
	}
	close(r.done)
}

func (r *Room) addClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.killTimer.Stop()
	r.clients[c] = struct{}{}
	c.addRoom(r)
}

func (r *Room) removeClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		return
	}

	delete(r.clients, c)
	c.delRoom(r.id)

	if len(r.clients) == 0 {
		r.log.Printf("no clients in room %d, starting kill timer", r.id)
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) broadcast(msg *ServerMessage) {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	for client := range r.clients {
		if client == msg.SkipClient {
			continue
		}

		client.queueMessage(msg)
	}
	r.gw.stats.Incr("TotalBroadcasts")
}

// wireSession snapshots the current session for a payload. can_join
// is derived here so every payload agrees with the store.
func (r *Room) wireSession() *types.Session {
	if r.session == nil {
		return nil
	}

	s := r.session
	return &types.Session{
		Id:                s.Id,
		Status:            s.Status,
		TimeStart:         s.TimeStart,
		Name:              s.Name,
		ParticipantsCount: s.ParticipantsCount,
		MaxParticipants:   s.MaxParticipants,
		CanJoin:           s.Status == database.SessionScheduled && s.ParticipantsCount < s.MaxParticipants,
	}
}

func (r *Room) wireJoiners() []types.EarlyJoiner {
	return wireJoiners(r.joiners)
}

func wireJoiners(joiners []database.EarlyJoiner) []types.EarlyJoiner {
	out := make([]types.EarlyJoiner, len(joiners))
	for i, j := range joiners {
		out[i] = types.EarlyJoiner{
			UserId:   j.UserId,
			Username: j.Username,
			Fullname: j.Fullname,
			Avatar:   j.Avatar,
			JoinedAt: j.JoinedAt,
			Amount:   j.Amount,
			Status:   j.Status,
		}
	}
	return out
}
