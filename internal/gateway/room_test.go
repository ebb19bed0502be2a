package gateway

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/playhall/game-room-gateway/internal/database"
	"github.com/playhall/game-room-gateway/internal/stats"
	"github.com/playhall/game-room-gateway/internal/testutil"
	"github.com/playhall/game-room-gateway/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestRoom(t *testing.T, gw *GatewayServer, session *database.Session) *Room {
	killTimer := time.NewTimer(idleRoomTimeout)
	killTimer.Stop()
	transitionTimer := time.NewTimer(time.Hour)
	transitionTimer.Stop()

	return &Room{
		id:              5,
		gameTypeId:      7,
		gw:              gw,
		session:         session,
		clients:         make(map[*Client]struct{}),
		reqChan:         make(chan *ClientMessage, 256),
		leaveChan:       make(chan *Client, 256),
		transitionChan:  make(chan string, 8),
		exit:            make(chan exitReq),
		done:            make(chan struct{}),
		killTimer:       killTimer,
		transitionTimer: transitionTimer,
		log:             testutil.TestLogger(t),
	}
}

func newTestClient(t *testing.T, userId int, username string) *Client {
	return &Client{
		id:    fmt.Sprintf("client-%d", userId),
		user:  types.User{Id: userId, Username: username},
		send:  make(chan *ServerMessage, 256),
		rooms: make(map[int]*Room),
		stop:  make(chan struct{}),
		log:   testutil.TestLogger(t),
	}
}

func recvMessage(t *testing.T, c *Client) *ServerMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func scheduledSession(maxParticipants int) *database.Session {
	return &database.Session{
		Id:              42,
		RoomId:          5,
		Name:            "evening game",
		Status:          database.SessionScheduled,
		TimeStart:       time.Now().Add(time.Hour),
		DurationMin:     60,
		MaxParticipants: maxParticipants,
	}
}

func expectCreateJoiner(db *database.MockGameRoomRepository, userId int) {
	db.On("CreateEarlyJoiner", mock.MatchedBy(func(p database.CreateEarlyJoinerParams) bool {
		return p.UserId == userId && p.SessionId == 42
	})).Return(database.EarlyJoiner{
		SessionId: 42,
		UserId:    userId,
		Username:  fmt.Sprintf("user%d", userId),
		JoinedAt:  Now(),
		Status:    database.JoinerConfirmed,
	}, nil)
}

func Test_admit(t *testing.T) {
	t.Run("admits up to capacity then rejects", func(t *testing.T) {
		db := &database.MockGameRoomRepository{}
		expectCreateJoiner(db, 1)
		expectCreateJoiner(db, 2)

		gw := newTestGateway(t, db, &stats.MockStatsUpdater{})
		room := newTestRoom(t, gw, scheduledSession(2))

		admA := room.admit(newTestClient(t, 1, "alice"))
		assert.Empty(t, admA.errKind, "expected first join to succeed")
		assert.Equal(t, 1, admA.total, "expected one participant after first join")

		admB := room.admit(newTestClient(t, 2, "bob"))
		assert.Empty(t, admB.errKind, "expected second join to succeed")
		assert.Equal(t, 2, admB.total, "expected two participants after second join")
		assert.Len(t, admB.roster, 2, "expected roster of two")

		admC := room.admit(newTestClient(t, 3, "carol"))
		assert.Equal(t, ErrRoomFull, admC.errKind, "expected third join to fail with RoomFull")
		assert.Equal(t, 2, room.session.ParticipantsCount, "expected count to stay at cap")

		db.AssertExpectations(t)
	})

	t.Run("rejoin is idempotent", func(t *testing.T) {
		db := &database.MockGameRoomRepository{}
		db.On("TouchEarlyJoiner", 42, 1).Return(database.EarlyJoiner{
			SessionId: 42,
			UserId:    1,
			Status:    database.JoinerConfirmed,
		}, nil)

		gw := newTestGateway(t, db, &stats.MockStatsUpdater{})
		session := scheduledSession(2)
		session.ParticipantsCount = 1
		room := newTestRoom(t, gw, session)
		room.joiners = []database.EarlyJoiner{
			{SessionId: 42, UserId: 1, Username: "alice", JoinedAt: Now()},
		}

		adm := room.admit(newTestClient(t, 1, "alice"))
		assert.Empty(t, adm.errKind, "expected rejoin to succeed")
		assert.True(t, adm.rejoined, "expected rejoin flag")
		assert.Equal(t, 1, adm.total, "expected count unchanged on rejoin")
		assert.Len(t, room.joiners, 1, "expected no duplicate roster entry")

		db.AssertExpectations(t)
	})

	t.Run("anonymous client cannot join", func(t *testing.T) {
		gw := newTestGateway(t, &database.MockGameRoomRepository{}, &stats.MockStatsUpdater{})
		room := newTestRoom(t, gw, scheduledSession(2))

		adm := room.admit(newTestClient(t, 0, ""))
		assert.Equal(t, ErrUnauthenticated, adm.errKind, "expected Unauthenticated for anonymous join")
	})

	t.Run("no current session is not joinable", func(t *testing.T) {
		gw := newTestGateway(t, &database.MockGameRoomRepository{}, &stats.MockStatsUpdater{})
		room := newTestRoom(t, gw, nil)

		adm := room.admit(newTestClient(t, 1, "alice"))
		assert.Equal(t, ErrRoomNotJoinable, adm.errKind, "expected RoomNotJoinable without a session")
	})

	t.Run("running session is not joinable", func(t *testing.T) {
		gw := newTestGateway(t, &database.MockGameRoomRepository{}, &stats.MockStatsUpdater{})
		session := scheduledSession(2)
		session.Status = database.SessionRunning
		room := newTestRoom(t, gw, session)

		adm := room.admit(newTestClient(t, 1, "alice"))
		assert.Equal(t, ErrRoomNotJoinable, adm.errKind, "expected RoomNotJoinable for running session")
	})
}

func Test_concurrentJoins_respectCapacity(t *testing.T) {
	const maxSeats = 2
	const attempts = 6

	db := &database.MockGameRoomRepository{}
	for i := 1; i <= attempts; i++ {
		expectCreateJoiner(db, i)
	}

	gw := newTestGateway(t, db, &stats.MockStatsUpdater{})
	room := newTestRoom(t, gw, scheduledSession(maxSeats))
	go room.start()
	defer stopRoom(t, room)

	clients := make([]*Client, attempts)
	var wg sync.WaitGroup
	for i := range clients {
		clients[i] = newTestClient(t, i+1, fmt.Sprintf("user%d", i+1))
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			room.reqChan <- &ClientMessage{
				JoinWithEarlyJoiners: &JoinRequest{RoomId: 5},
				client:               c,
			}
		}(clients[i])
	}
	wg.Wait()

	var admitted, full int
	for _, c := range clients {
		msg := recvMessage(t, c)
		if assert.NotNil(t, msg.JoinResult, "expected a join result") {
			if msg.JoinResult.Success {
				admitted++
				assert.Equal(t, 42, msg.JoinResult.SessionId, "expected session id in result")
			} else {
				full++
				assert.Equal(t, ErrRoomFull, msg.JoinResult.Error, "expected RoomFull error")
			}
		}
	}

	assert.Equal(t, maxSeats, admitted, "expected admissions to equal capacity")
	assert.Equal(t, attempts-maxSeats, full, "expected remaining joins to be rejected")
}

func stopRoom(t *testing.T, room *Room) {
	t.Helper()
	done := make(chan struct{})
	select {
	case room.exit <- exitReq{done: done}:
		<-done
	case <-time.After(time.Second):
		t.Error("timeout stopping room")
	}
}

func Test_handleSubscribe(t *testing.T) {
	t.Run("immediately emits current session snapshot", func(t *testing.T) {
		gw := newTestGateway(t, &database.MockGameRoomRepository{}, &stats.MockStatsUpdater{})
		room := newTestRoom(t, gw, scheduledSession(4))

		c := newTestClient(t, 1, "alice")
		room.handleSubscribe(&ClientMessage{
			SubscribeCurrentSession: &SubscribeCurrentSession{RoomId: 5},
			client:                  c,
		})

		msg := recvMessage(t, c)
		if assert.NotNil(t, msg.CurrentSession, "expected currentSession event") {
			assert.Equal(t, 5, msg.CurrentSession.RoomId, "expected room id in snapshot")
			if assert.NotNil(t, msg.CurrentSession.CurrentSession, "expected session in snapshot") {
				assert.Equal(t, 42, msg.CurrentSession.CurrentSession.Id, "expected session id")
				assert.True(t, msg.CurrentSession.CurrentSession.CanJoin, "expected can_join derived true")
			}
		}
		assert.Contains(t, room.clients, c, "expected client registered on room channel")
		assert.Contains(t, c.rooms, room.id, "expected room tracked on client")
	})

	t.Run("snapshot shows null when room has no session", func(t *testing.T) {
		gw := newTestGateway(t, &database.MockGameRoomRepository{}, &stats.MockStatsUpdater{})
		room := newTestRoom(t, gw, nil)

		c := newTestClient(t, 1, "alice")
		room.handleSubscribe(&ClientMessage{
			SubscribeCurrentSession: &SubscribeCurrentSession{RoomId: 5},
			client:                  c,
		})

		msg := recvMessage(t, c)
		if assert.NotNil(t, msg.CurrentSession, "expected currentSession event") {
			assert.Nil(t, msg.CurrentSession.CurrentSession, "expected null session")
		}
	})

	t.Run("resubscribe is idempotent", func(t *testing.T) {
		gw := newTestGateway(t, &database.MockGameRoomRepository{}, &stats.MockStatsUpdater{})
		room := newTestRoom(t, gw, scheduledSession(4))

		c := newTestClient(t, 1, "alice")
		msg := &ClientMessage{
			SubscribeCurrentSession: &SubscribeCurrentSession{RoomId: 5},
			client:                  c,
		}
		room.handleSubscribe(msg)
		room.handleSubscribe(msg)

		assert.Len(t, room.clients, 1, "expected a single registration")
	})
}

func Test_joinBroadcast(t *testing.T) {
	db := &database.MockGameRoomRepository{}
	expectCreateJoiner(db, 2)

	gw := newTestGateway(t, db, &stats.MockStatsUpdater{})
	room := newTestRoom(t, gw, scheduledSession(4))

	subscriber := newTestClient(t, 1, "alice")
	room.handleSubscribe(&ClientMessage{
		SubscribeCurrentSession: &SubscribeCurrentSession{RoomId: 5},
		client:                  subscriber,
	})
	// drain the snapshot so the broadcast is next in line
	recvMessage(t, subscriber)

	joiner := newTestClient(t, 2, "bob")
	room.handleJoin(&ClientMessage{
		JoinWithEarlyJoiners: &JoinRequest{RoomId: 5},
		client:               joiner,
	})

	result := recvMessage(t, joiner)
	if assert.NotNil(t, result.JoinResult, "expected join result for joiner") {
		assert.True(t, result.JoinResult.Success, "expected successful join")
		assert.Equal(t, 1, result.JoinResult.TotalCount, "expected total count of one")
	}

	update := recvMessage(t, subscriber)
	if assert.NotNil(t, update.RoomEarlyJoinersUpdated, "expected roster broadcast to subscriber") {
		assert.Equal(t, 5, update.RoomEarlyJoinersUpdated.RoomId, "expected room id")
		assert.Equal(t, 42, update.RoomEarlyJoinersUpdated.SessionId, "expected session id")
		assert.Equal(t, 1, update.RoomEarlyJoinersUpdated.TotalCount, "expected live count in broadcast")
		assert.Equal(t, 2, update.RoomEarlyJoinersUpdated.NewJoiner.UserId, "expected new joiner identity")
	}

	legacyUpdate := recvMessage(t, subscriber)
	assert.NotNil(t, legacyUpdate.GameJoinRoomUpdated, "expected legacy roster broadcast")

	sessionUpdate := recvMessage(t, subscriber)
	if assert.NotNil(t, sessionUpdate.CurrentSessionUpdated, "expected session delta broadcast") {
		assert.Equal(t, 1, sessionUpdate.CurrentSessionUpdated.CurrentSession.ParticipantsCount,
			"expected updated participant count")
	}

	// the joiner is skipped: its only message was the result
	select {
	case msg := <-joiner.send:
		t.Errorf("joiner should not receive the broadcast, got %+v", msg)
	default:
	}

	db.AssertExpectations(t)
}

func Test_handleLegacyJoin(t *testing.T) {
	db := &database.MockGameRoomRepository{}
	expectCreateJoiner(db, 1)

	gw := newTestGateway(t, db, &stats.MockStatsUpdater{})
	room := newTestRoom(t, gw, scheduledSession(4))

	c := newTestClient(t, 1, "alice")
	room.handleLegacyJoin(&ClientMessage{
		GameJoinRoom: &JoinRequest{RoomId: 5},
		client:       c,
	})

	msg := recvMessage(t, c)
	if assert.NotNil(t, msg.GameJoinRoomResult, "expected legacy result event") {
		assert.True(t, msg.GameJoinRoomResult.Success, "expected successful join")
		assert.Equal(t, 42, msg.GameJoinRoomResult.SessionId, "expected session id")
		assert.Len(t, msg.GameJoinRoomResult.JoinList, 1, "expected roster in joinList")
	}
}

func Test_handleListJoiners(t *testing.T) {
	t.Run("resolves current session and orders by join time", func(t *testing.T) {
		gw := newTestGateway(t, &database.MockGameRoomRepository{}, &stats.MockStatsUpdater{})
		session := scheduledSession(4)
		session.ParticipantsCount = 2
		room := newTestRoom(t, gw, session)

		first := Now().Add(-2 * time.Minute)
		second := Now().Add(-time.Minute)
		room.joiners = []database.EarlyJoiner{
			{SessionId: 42, UserId: 1, Username: "alice", JoinedAt: first},
			{SessionId: 42, UserId: 2, Username: "bob", JoinedAt: second},
		}

		c := newTestClient(t, 3, "carol")
		room.handleListJoiners(&ClientMessage{
			GetEarlyJoinersList: &EarlyJoinersRequest{RoomId: 5},
			client:              c,
		})

		msg := recvMessage(t, c)
		if assert.NotNil(t, msg.EarlyJoinersListResult, "expected list result") {
			res := msg.EarlyJoinersListResult
			assert.True(t, res.Success, "expected success")
			assert.Equal(t, 42, res.SessionId, "expected resolved session id")
			assert.Equal(t, 2, res.TotalCount, "expected total count")
			if assert.Len(t, res.EarlyJoiners, 2, "expected both joiners") {
				assert.Equal(t, 1, res.EarlyJoiners[0].UserId, "expected earliest joiner first")
				assert.Equal(t, 2, res.EarlyJoiners[1].UserId, "expected later joiner second")
			}
		}
	})

	t.Run("no current session and no session id fails", func(t *testing.T) {
		gw := newTestGateway(t, &database.MockGameRoomRepository{}, &stats.MockStatsUpdater{})
		room := newTestRoom(t, gw, nil)

		c := newTestClient(t, 1, "alice")
		room.handleListJoiners(&ClientMessage{
			GetEarlyJoinersList: &EarlyJoinersRequest{RoomId: 5},
			client:              c,
		})

		msg := recvMessage(t, c)
		if assert.NotNil(t, msg.EarlyJoinersListResult, "expected list result") {
			assert.Equal(t, ErrSessionNotFound, msg.EarlyJoinersListResult.Error,
				"expected SessionNotFound error")
		}
	})

	t.Run("explicit historical session id reads the repository", func(t *testing.T) {
		db := &database.MockGameRoomRepository{}
		db.On("GetSessionById", 41).Return(database.Session{
			Id: 41, RoomId: 5, Status: database.SessionEnded,
		}, nil)
		db.On("ListEarlyJoiners", 41).Return([]database.EarlyJoiner{
			{SessionId: 41, UserId: 9, Username: "zed", JoinedAt: Now()},
		}, nil)

		gw := newTestGateway(t, db, &stats.MockStatsUpdater{})
		room := newTestRoom(t, gw, scheduledSession(4))

		sessionId := 41
		c := newTestClient(t, 1, "alice")
		room.handleListJoiners(&ClientMessage{
			GetEarlyJoinersList: &EarlyJoinersRequest{RoomId: 5, SessionId: &sessionId},
			client:              c,
		})

		msg := recvMessage(t, c)
		if assert.NotNil(t, msg.EarlyJoinersListResult, "expected list result") {
			assert.True(t, msg.EarlyJoinersListResult.Success, "expected success")
			assert.Equal(t, 41, msg.EarlyJoinersListResult.SessionId, "expected requested session id")
		}
		db.AssertExpectations(t)
	})
}

func Test_applyTransition(t *testing.T) {
	t.Run("scheduled to running broadcasts and marks counts dirty", func(t *testing.T) {
		db := &database.MockGameRoomRepository{}
		db.On("UpdateSessionStatus", 42, database.SessionRunning).Return(database.Session{
			Id: 42, RoomId: 5, Status: database.SessionRunning,
			TimeStart: time.Now(), DurationMin: 60, MaxParticipants: 4,
		}, nil)

		gw := newTestGateway(t, db, &stats.MockStatsUpdater{})
		room := newTestRoom(t, gw, scheduledSession(4))

		subscriber := newTestClient(t, 1, "alice")
		room.handleSubscribe(&ClientMessage{
			SubscribeCurrentSession: &SubscribeCurrentSession{RoomId: 5},
			client:                  subscriber,
		})
		recvMessage(t, subscriber)

		room.applyTransition(database.SessionRunning)

		update := recvMessage(t, subscriber)
		if assert.NotNil(t, update.CurrentSessionUpdated, "expected session update broadcast") {
			session := update.CurrentSessionUpdated.CurrentSession
			if assert.NotNil(t, session, "expected session in update") {
				assert.Equal(t, database.SessionRunning, session.Status, "expected running status")
				assert.False(t, session.CanJoin, "expected can_join false once running")
			}
		}

		select {
		case gameTypeId := <-gw.countsDirtyChan:
			assert.Equal(t, 7, gameTypeId, "expected counts recompute for the room's game type")
		default:
			t.Error("expected countsDirtyChan signal")
		}
		db.AssertExpectations(t)
	})

	t.Run("ended clears the current session", func(t *testing.T) {
		db := &database.MockGameRoomRepository{}
		db.On("UpdateSessionStatus", 42, database.SessionEnded).Return(database.Session{
			Id: 42, RoomId: 5, Status: database.SessionEnded,
		}, nil)

		gw := newTestGateway(t, db, &stats.MockStatsUpdater{})
		session := scheduledSession(4)
		session.Status = database.SessionRunning
		room := newTestRoom(t, gw, session)
		room.joiners = []database.EarlyJoiner{{SessionId: 42, UserId: 1}}

		room.applyTransition(database.SessionEnded)

		assert.Nil(t, room.session, "expected current session cleared")
		assert.Nil(t, room.joiners, "expected roster cleared")

		c := newTestClient(t, 2, "bob")
		room.handleSubscribe(&ClientMessage{
			SubscribeCurrentSession: &SubscribeCurrentSession{RoomId: 5},
			client:                  c,
		})
		msg := recvMessage(t, c)
		assert.Nil(t, msg.CurrentSession.CurrentSession, "expected null snapshot after session end")
	})
}

func Test_roomExitAnswersPendingRequests(t *testing.T) {
	gw := newTestGateway(t, &database.MockGameRoomRepository{}, &stats.MockStatsUpdater{})
	room := newTestRoom(t, gw, scheduledSession(4))

	c := newTestClient(t, 1, "alice")
	room.reqChan <- &ClientMessage{
		JoinWithEarlyJoiners: &JoinRequest{RoomId: 5},
		client:               c,
	}

	room.handleRoomExit(exitReq{done: make(chan struct{})})

	msg := recvMessage(t, c)
	if assert.NotNil(t, msg.JoinResult, "expected a result for the request pending at unload") {
		assert.False(t, msg.JoinResult.Success, "expected failure result")
		assert.Equal(t, ErrTooBusy, msg.JoinResult.Error, "expected retryable error")
	}
}

func Test_killTimerFollowsActivity(t *testing.T) {
	gw := newTestGateway(t, &database.MockGameRoomRepository{}, &stats.MockStatsUpdater{})
	room := newTestRoom(t, gw, scheduledSession(4))

	// with no subscribers the unload countdown is armed
	room.armKillTimerIfIdle()
	assert.True(t, room.killTimer.Stop(), "expected kill timer armed while room is idle")

	// a subscriber keeps the room loaded
	c := newTestClient(t, 1, "alice")
	room.addClient(c)
	room.armKillTimerIfIdle()
	assert.False(t, room.killTimer.Stop(), "expected kill timer stopped while subscribed")

	// losing the last subscriber re-arms it
	room.removeClient(c)
	assert.True(t, room.killTimer.Stop(), "expected kill timer re-armed once empty")
}

func Test_removeClient(t *testing.T) {
	gw := newTestGateway(t, &database.MockGameRoomRepository{}, &stats.MockStatsUpdater{})
	room := newTestRoom(t, gw, scheduledSession(4))

	c := newTestClient(t, 1, "alice")
	room.addClient(c)
	assert.Contains(t, room.clients, c, "expected client in room")

	room.removeClient(c)
	assert.NotContains(t, room.clients, c, "expected client removed")
	assert.NotContains(t, c.rooms, room.id, "expected room removed from client")

	// removing twice is a no-op
	room.removeClient(c)
}

func Test_disconnectedClientMissesBroadcast(t *testing.T) {
	db := &database.MockGameRoomRepository{}
	expectCreateJoiner(db, 2)

	gw := newTestGateway(t, db, &stats.MockStatsUpdater{})
	room := newTestRoom(t, gw, scheduledSession(4))

	ghost := newTestClient(t, 1, "alice")
	room.addClient(ghost)
	room.removeClient(ghost)

	joiner := newTestClient(t, 2, "bob")
	room.handleJoin(&ClientMessage{
		JoinWithEarlyJoiners: &JoinRequest{RoomId: 5},
		client:               joiner,
	})

	result := recvMessage(t, joiner)
	assert.NotNil(t, result.JoinResult, "expected join to proceed after a disconnect")
	assert.True(t, result.JoinResult.Success, "expected join success")

	select {
	case msg := <-ghost.send:
		t.Errorf("removed client should not receive broadcasts, got %+v", msg)
	default:
	}
}
